package main

import (
	"context"
	"fmt"

	"github.com/larder/larder-backend/internal/pantry/repository"
	"github.com/larder/larder-backend/pkg/cache"
	"github.com/larder/larder-backend/pkg/config"
	"github.com/larder/larder-backend/pkg/database"
	"github.com/larder/larder-backend/pkg/logger"
)

// storeSet is the configured item store plus the connections behind it
type storeSet struct {
	store repository.Store
	db    *database.DB
	redis *cache.Client
	log   *logger.Logger
}

// openStores builds the primary store from storage.backend and wraps it in
// a Redis mirror when storage.mirror is set
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storeSet, error) {
	s := &storeSet{log: log}

	switch cfg.Storage.Backend {
	case config.StorageSQL:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			return nil, err
		}
		s.db = db

		sqlStore := repository.NewSQLStore(db, log)
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		s.store = sqlStore
	case config.StorageFile, "":
		s.store = repository.NewFileStore(cfg.Storage.FilePath, log)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Redis.Enabled {
		client, err := cache.New(ctx, &cfg.Redis, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = client
	}

	if cfg.Storage.Mirror {
		if s.redis == nil {
			s.Close()
			return nil, fmt.Errorf("storage mirror requires redis to be enabled")
		}
		s.store = repository.NewMirrorStore(s.store, repository.NewRedisStore(s.redis, log), log)
	}

	log.Info().Str("store", s.store.Name()).Msg("pantry store ready")
	return s, nil
}

// Health reports the connections the store depends on
func (s *storeSet) Health(ctx context.Context) map[string]map[string]string {
	out := make(map[string]map[string]string)
	if s.db != nil {
		out["database"] = s.db.Health(ctx)
	}
	if s.redis != nil {
		out["redis"] = s.redis.Health(ctx)
	}
	return out
}

// Close releases the database and redis connections
func (s *storeSet) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Error().Err(err).Msg("failed to close redis")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error().Err(err).Msg("failed to close database")
		}
	}
}
