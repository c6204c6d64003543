// Package scheduler runs background maintenance jobs on fixed intervals.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"docchat/internal/logging"
)

// Scheduler wraps a gocron scheduler. Jobs receive a context that is
// cancelled by Stop.
type Scheduler struct {
	cron   *gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{cron: s, ctx: ctx, cancel: cancel, log: logging.OrDiscard(logger).With("component", "scheduler")}
}

// Every registers job under tag. The first run happens one interval after
// Start, and a run is skipped while the previous one is still going.
func (s *Scheduler) Every(tag string, interval time.Duration, job func(ctx context.Context) error) error {
	_, err := s.cron.Every(interval).Tag(tag).SingletonMode().WaitForSchedule().Do(func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.log.Warn("job failed", "job", tag, "err", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		s.log.Debug("job done", "job", tag, "duration_ms", time.Since(start).Milliseconds())
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.cancel()
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}
