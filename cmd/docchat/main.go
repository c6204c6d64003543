package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/pipeline"
)

func main() {
	_ = godotenv.Load(".env")
	root := newRootCmd(func(ctx context.Context) (*pipeline.Service, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		return pipeline.Bootstrap(ctx, cfg, logging.New(cfg))
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
