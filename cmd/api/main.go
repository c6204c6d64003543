package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"docchat/internal/api"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/pipeline"
	"docchat/internal/scheduler"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc, cleanup, err := pipeline.Bootstrap(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	if cfg.KeepLatestSessions > 0 {
		if res, err := svc.Evict(ctx, cfg.KeepLatestSessions); err != nil {
			logger.Warn("startup eviction incomplete", "evicted", len(res.Evicted), "err", err)
		} else if len(res.Evicted) > 0 {
			logger.Info("startup eviction", "evicted", len(res.Evicted))
		}
	}

	var tc tclient.Client
	if cfg.TemporalAddress != "" {
		tc, err = tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
		if err != nil {
			log.Fatal(err)
		}
		defer tc.Close()
	}

	h := api.NewServer(cfg, svc, tc, logger)

	if cfg.EvictEveryMins > 0 && cfg.KeepLatestSessions > 0 {
		sched := scheduler.New(logger)
		err := sched.Every("evict-sessions", time.Duration(cfg.EvictEveryMins)*time.Minute, func(ctx context.Context) error {
			res, err := h.Evict(ctx, cfg.KeepLatestSessions)
			if len(res.Evicted) > 0 {
				logger.Info("periodic eviction", "evicted", len(res.Evicted))
			}
			return err
		})
		if err != nil {
			log.Fatal(err)
		}
		sched.Start()
		defer sched.Stop()
	}

	logger.Info("docchat api listening",
		"addr", cfg.APIAddr,
		"temporal", cfg.TemporalAddress,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
