package store

import (
	"context"
	"fmt"

	"github.com/gcbaptista/go-doc-stats/config"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/services"
)

// Open returns the store selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.AppConfig) (services.Store, error) {
	log := logger.WithComponent("store")
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		if cfg.Storage.DataDir == "" {
			log.Info("using in-memory store without snapshots")
			return NewMemoryStore(), nil
		}
		log.Info("using in-memory store", "data_dir", cfg.Storage.DataDir)
		s, err := OpenMemoryStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := OpenRedisStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := OpenPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
