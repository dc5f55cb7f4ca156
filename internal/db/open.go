package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/config"
	"github.com/Guizzs26/gcm-presence/internal/store"
)

// OpenStore builds the backend selected by STORE_BACKEND. The returned func
// releases the store and anything it owns.
func OpenStore(ctx context.Context, cfg *config.Config, paths store.Paths, cal *clock.Calendar, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		st, err := NewRedisStore(ctx, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, func() {
			_ = st.Close()
			pool.Close()
		}, nil

	case config.BackendLocal:
		st, err := NewLocalStore(ctx, cfg.LocalStatePath, paths, cal, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case config.BackendMemory:
		st := store.NewMemoryStore()
		return st, func() { _ = st.Close() }, nil
	}
	return nil, nil, fmt.Errorf("backend de store desconhecido %q", cfg.StoreBackend)
}
