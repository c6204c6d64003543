package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"docchat/internal/activities"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/pipeline"
	"docchat/internal/workflows"
)

const defaultTemporalAddress = "localhost:7233"

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg)
	if cfg.TemporalAddress == "" {
		cfg.TemporalAddress = defaultTemporalAddress
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc, cleanup, err := pipeline.Bootstrap(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(svc))

	logger.Info("docchat worker listening",
		"temporal", cfg.TemporalAddress,
		"queue", cfg.TemporalTaskQueue,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
