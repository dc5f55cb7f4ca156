package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

const (
	redisChannelPrefix = "kv:changed:"
	maxMergeRetries    = 10
)

// RedisStore keeps every path as one hash (entry key -> JSON document) and every scalar
// as a plain string key. Each mutation publishes the path on kv:changed:<path>.
type RedisStore struct {
	c      *redis.Client
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisStore(ctx context.Context, c *redis.Client, logger *slog.Logger) (*RedisStore, error) {
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("sem resposta do redis: %w", err)
	}
	sctx, cancel := context.WithCancel(context.Background())
	return &RedisStore{
		c:      c,
		logger: logger.With("backend", "redis"),
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

func changeChannel(path string) string {
	return redisChannelPrefix + path
}

func (r *RedisStore) ReadAll(ctx context.Context, path string) (store.Snapshot, error) {
	m, err := r.c.HGetAll(ctx, path).Result()
	if err != nil {
		return nil, fmt.Errorf("erro ao ler %s: %w", path, err)
	}
	snap := make(store.Snapshot, len(m))
	for k, v := range m {
		snap[k] = []byte(v)
	}
	return snap, nil
}

// WriteMerge reads, merges and writes one entry under WATCH, retrying when another
// client touched the hash in between.
func (r *RedisStore) WriteMerge(ctx context.Context, path, key string, partial map[string]any) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, path, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		merged, err := store.MergeJSON(current, partial)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, path, key, []byte(merged))
			pipe.Publish(ctx, changeChannel(path), key)
			return nil
		})
		return err
	}

	for range maxMergeRetries {
		err := r.c.Watch(ctx, txf, path)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("erro ao mesclar %s/%s: %w", path, key, err)
	}
	// desiste após esgotar as tentativas
	return fmt.Errorf("erro ao mesclar %s/%s: contenção excessiva", path, key)
}

func (r *RedisStore) Delete(ctx context.Context, path, key string) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, path, key)
		pipe.Publish(ctx, changeChannel(path), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("erro ao remover %s/%s: %w", path, key, err)
	}
	return nil
}

func (r *RedisStore) DeleteAll(ctx context.Context, path string) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, path)
		pipe.Publish(ctx, changeChannel(path), "*")
		return nil
	})
	if err != nil {
		return fmt.Errorf("erro ao limpar %s: %w", path, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, path string) (string, bool, error) {
	v, err := r.c.Get(ctx, path).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("erro ao ler %s: %w", path, err)
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, path, value string) error {
	_, err := r.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, path, value, 0)
		pipe.Publish(ctx, changeChannel(path), value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("erro ao gravar %s: %w", path, err)
	}
	return nil
}

// Subscribe confirms the SUBSCRIBE before the initial read so no change between the
// two can be missed. Every notification triggers a fresh HGETALL.
func (r *RedisStore) Subscribe(ctx context.Context, path string, fn store.ChangeFunc) (store.Unsubscribe, error) {
	if r.ctx.Err() != nil {
		return nil, store.ErrClosed
	}

	ps := r.c.Subscribe(ctx, changeChannel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("erro ao assinar %s: %w", path, err)
	}

	initial, err := r.ReadAll(ctx, path)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	fn(initial)

	done := make(chan struct{})
	msgs := ps.Channel()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-r.ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case <-done:
					return
				default:
				}
				snap, err := r.ReadAll(r.ctx, path)
				if err != nil {
					r.logger.Error("Failed to refresh subscribed path", "path", path, "error", err)
					metrics.StoreSubscriptionRestarts.WithLabelValues("redis").Inc()
					continue
				}
				fn(snap)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}, nil
}

func (r *RedisStore) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.c.Close()
}
