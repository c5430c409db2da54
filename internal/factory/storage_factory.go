// Package factory builds configured adapter instances for the detection
// service.
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/adapters/cache"
	"github.com/inboxguard/inboxguard/internal/adapters/storage"
	"github.com/inboxguard/inboxguard/internal/config"
	"github.com/inboxguard/inboxguard/internal/core"
)

// StorageFactory creates caches and stores based on configuration.
type StorageFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStorageFactory creates a new storage factory.
func NewStorageFactory(cfg *config.Config, logger *zap.Logger) *StorageFactory {
	return &StorageFactory{cfg: cfg, logger: logger}
}

// CreateCache creates the TTL cache based on the configuration.
func (f *StorageFactory) CreateCache(ctx context.Context) (core.TTLCache, error) {
	cacheType := f.cfg.GetString("cache.type")
	cleanupFreq, err := f.cfg.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return nil, fmt.Errorf("invalid cache cleanup frequency: %w", err)
	}

	switch cacheType {
	case "memory":
		return cache.NewMemoryCache(f.logger, cleanupFreq), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     f.cfg.GetString("cache.redis_addr"),
			Password: f.cfg.GetString("cache.redis_password"),
			DB:       f.cfg.GetInt("cache.redis_db"),
		}, f.logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
}

// CreateBaselineStore creates the baseline store based on the configuration.
func (f *StorageFactory) CreateBaselineStore() (core.BaselineStore, error) {
	storeType := f.cfg.GetString("baseline.store")

	switch storeType {
	case "memory":
		return storage.NewMemoryBaselineStore(), nil
	case "postgres":
		return storage.NewPostgresBaselineStore(f.cfg.GetString("baseline.postgres_dsn"), f.logger)
	case "mysql":
		return storage.NewMySQLBaselineStore(f.cfg.GetString("baseline.mysql_dsn"), f.logger)
	default:
		return nil, fmt.Errorf("unsupported baseline store: %s", storeType)
	}
}

// CreateFeedbackStore creates the feedback store based on the configuration.
func (f *StorageFactory) CreateFeedbackStore() (core.FeedbackStore, error) {
	storeType := f.cfg.GetString("feedback.store")

	switch storeType {
	case "memory":
		return storage.NewMemoryFeedbackStore(), nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("feedback.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return storage.NewSQLiteFeedbackStore(sqlitePath, f.logger)
	default:
		return nil, fmt.Errorf("unsupported feedback store: %s", storeType)
	}
}
