package store

import (
	"context"
	"fmt"

	"github.com/relayforge/errwebhook/internal/config"
)

// Open builds the Store backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(cfg.BadgerPath)
	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresTable)
	default:
		return nil, fmt.Errorf("errwebhook: unknown store backend %q", cfg.Backend)
	}
}
