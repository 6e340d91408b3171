package main

import (
	"context"
	"fmt"
	"log/slog"

	"recipe_importer/internal/config"
	"recipe_importer/internal/progress"
	"recipe_importer/internal/ratelimit"
	"recipe_importer/internal/service"
	"recipe_importer/internal/source/static"
	"recipe_importer/internal/source/tasty"
	"recipe_importer/internal/storage/file"
	"recipe_importer/internal/storage/memory"
	"recipe_importer/internal/storage/postgres"
	"recipe_importer/internal/storage/redis"
	"recipe_importer/internal/storage/sqlite"
)

func buildSource(cfg *config.Config, logger *slog.Logger) (service.Source, error) {
	gate := ratelimit.NewGate(cfg.Tasty.RequestDelay)

	switch cfg.Import.Source {
	case config.SourceTasty:
		return tasty.New(tasty.Config{
			BaseURL:        cfg.Tasty.BaseURL,
			APIKey:         cfg.Tasty.APIKey,
			APIHost:        cfg.Tasty.APIHost,
			PageSize:       cfg.Tasty.PageSize,
			Timeout:        cfg.Tasty.Timeout,
			MaxAttempts:    cfg.Tasty.Retry.MaxAttempts,
			InitialBackoff: cfg.Tasty.Retry.InitialBackoff,
			MaxBackoff:     cfg.Tasty.Retry.MaxBackoff,
		}, gate, logger), nil
	case config.SourceStatic:
		// a local dataset has no quota to respect
		return static.Load(cfg.Static.Path, nil, logger)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Import.Source)
	}
}

func openCheckpointStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (progress.Store, error) {
	cpCfg := cfg.Checkpoint
	logger.Info("opening checkpoint store", "backend", cpCfg.Backend)

	switch cpCfg.Backend {
	case config.BackendFile:
		return file.NewCheckpointStore(cpCfg.Dir)
	case config.BackendPostgres:
		store, err := postgres.NewCheckpointStore(ctx, cfg.Database.URL(), cpCfg.Table)
		if err != nil {
			return nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendSQLite:
		return sqlite.NewCheckpointStore(ctx, cpCfg.SQLitePath, cpCfg.Table)
	case config.BackendRedis:
		return redis.NewCheckpointStore(ctx, redis.Options{
			Addr:     cpCfg.Redis.Addr,
			Password: cpCfg.Redis.Password,
			DB:       cpCfg.Redis.DB,
			Prefix:   cpCfg.Redis.Prefix,
			TTL:      cpCfg.Redis.TTL,
		})
	case config.BackendMemory:
		logger.Warn("memory checkpoint store keeps no progress across runs")
		return memory.NewCheckpointStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cpCfg.Backend)
	}
}
