package pipeline

import (
	"context"
	"log/slog"
	"time"

	"docchat/internal/config"
	"docchat/internal/extraction"
	"docchat/internal/logging"
	"docchat/internal/providers"
	"docchat/internal/session"
	"docchat/internal/storage"
	"docchat/internal/util"
	"docchat/internal/vector"
)

// Bootstrap wires providers, the configured index backend and the history
// backend into a Service. The returned func releases the database pool and
// the Redis client, if they were opened.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Service, func(), error) {
	log := logging.OrDiscard(logger)
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, nil, err
	}
	var blobs vector.BlobStorage = vector.NewFileBlobStorage(cfg.DataRoot)
	var auditor extraction.Auditor
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if cfg.IndexBackend == config.BackendPostgres {
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, util.NewError(util.ErrInitialization, "pipeline.Bootstrap", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, util.NewError(util.ErrInitialization, "pipeline.Bootstrap", err)
		}
		blobs = storage.NewIndexBlobRepo(db.Pool)
		auditor = storage.NewLLMAuditRepo(db.Pool)
		closers = append(closers, db.Close)
	}

	var history session.History
	if cfg.HistoryBackend == config.HistoryRedis {
		rdb, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			cleanup()
			return nil, nil, util.NewError(util.ErrInitialization, "pipeline.Bootstrap", err)
		}
		history = session.NewRedisStore(rdb)
		closers = append(closers, func() { _ = rdb.Close() })
	}

	guard := providers.GuardOptions{
		RequestsPerMinute: cfg.ProviderRPM,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerCooldown:   time.Duration(cfg.BreakerCooldownSecs) * time.Second,
	}
	plog := log.With("component", "providers")
	llm := providers.GuardLLM(pm.LLM(), guard, plog)
	embedder := providers.GuardEmbedder(pm.Embedder(), guard, plog)

	log.Info("pipeline ready",
		"llm", llm.Info().Name, "embedder", embedder.Info().Name,
		"llm_configured", refNames(pm.LLMRefs()), "embed_configured", refNames(pm.EmbedRefs()),
		"index_backend", cfg.IndexBackend, "history_backend", cfg.HistoryBackend,
		"data_root", cfg.DataRoot)
	svc := New(Deps{
		Config:   cfg,
		LLM:      llm,
		Embedder: embedder,
		Blobs:    blobs,
		Auditor:  auditor,
		History:  history,
		Logger:   logger,
	})
	return svc, cleanup, nil
}

func refNames(refs []providers.ProviderRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.String())
	}
	return out
}
