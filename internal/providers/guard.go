package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"docchat/internal/logging"
	"docchat/internal/metrics"
)

// GuardOptions bound how hard a provider is driven. Zero values disable the
// corresponding guard.
type GuardOptions struct {
	RequestsPerMinute int
	BreakerFailures   int
	BreakerCooldown   time.Duration
}

// guard rate limits calls and trips a circuit breaker after consecutive
// failures. Calls are never retried.
type guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuard(name string, opts GuardOptions, logger *slog.Logger) *guard {
	g := &guard{name: name}
	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst)
	}
	if opts.BreakerFailures > 0 {
		log := logging.OrDiscard(logger)
		threshold := uint32(opts.BreakerFailures)
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("provider circuit breaker", "provider", name, "from", from.String(), "to", to.String())
				open := 0.0
				if to == gobreaker.StateOpen {
					open = 1
				}
				metrics.BreakerOpen.WithLabelValues(name).Set(open)
			},
		})
	}
	return g
}

func (g *guard) do(ctx context.Context, call string, fn func() (any, error)) (any, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.ProviderCalls.WithLabelValues(g.name, call, "rejected").Inc()
			return nil, fmt.Errorf("%s rate limiter: %w", g.name, err)
		}
	}
	var out any
	var err error
	if g.breaker == nil {
		out, err = fn()
	} else {
		out, err = g.breaker.Execute(fn)
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderCalls.WithLabelValues(g.name, call, "rejected").Inc()
		return nil, fmt.Errorf("%s unavailable, circuit breaker open: %w", g.name, err)
	case err != nil:
		metrics.ProviderCalls.WithLabelValues(g.name, call, "error").Inc()
		return nil, err
	}
	metrics.ProviderCalls.WithLabelValues(g.name, call, "ok").Inc()
	return out, nil
}

type guardedLLM struct {
	LLMProvider
	g *guard
}

// GuardLLM wraps p so every Complete call goes through a rate limiter and a
// circuit breaker.
func GuardLLM(p LLMProvider, opts GuardOptions, logger *slog.Logger) LLMProvider {
	if opts.RequestsPerMinute <= 0 && opts.BreakerFailures <= 0 {
		return p
	}
	return &guardedLLM{LLMProvider: p, g: newGuard(p.Info().Name+"/llm", opts, logger)}
}

func (l *guardedLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	out, err := l.g.do(ctx, "complete", func() (any, error) {
		return l.LLMProvider.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type guardedEmbedder struct {
	EmbeddingProvider
	g *guard
}

func GuardEmbedder(p EmbeddingProvider, opts GuardOptions, logger *slog.Logger) EmbeddingProvider {
	if opts.RequestsPerMinute <= 0 && opts.BreakerFailures <= 0 {
		return p
	}
	return &guardedEmbedder{EmbeddingProvider: p, g: newGuard(p.Info().Name+"/embed", opts, logger)}
}

func (e *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.g.do(ctx, "embed", func() (any, error) {
		return e.EmbeddingProvider.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

func (e *guardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.g.do(ctx, "embed_batch", func() (any, error) {
		return e.EmbeddingProvider.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return out.([][]float32), nil
}
