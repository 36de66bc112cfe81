package storage

import (
	"context"
	"time"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/database"
	"github.com/paywall-labs/paywall-go/internal/logger"
)

// Store is a scoped key/value store with per-key TTL. It backs every
// persisted SDK concern: user id, event outbox, placement selection, deep
// link, last-used provider, app-version stamp and attribution markers.
// Values shared across SDK instances are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New selects a store implementation from configuration. An explicit backend
// wins; otherwise the first configured URL decides, falling back to memory.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		switch {
		case cfg.RedisURL != "":
			backend = "redis"
		case cfg.PostgresURL != "":
			backend = "postgres"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "redis":
		return NewRedisStore(ctx, cfg.RedisURL)
	case "postgres":
		db, err := database.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, db)
	default:
		logger.Debug("Using in-memory store")
		return NewMemoryStore(), nil
	}
}
