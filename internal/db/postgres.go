package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

const notifyChannel = "presence_kv_changed"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS presence_kv (
		path       TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		value      JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (path, key)
	)`,
	`CREATE TABLE IF NOT EXISTS presence_scalars (
		path       TEXT        PRIMARY KEY,
		value      TEXT        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS presence_history (
		event_id    UUID        PRIMARY KEY,
		type        TEXT        NOT NULL,
		post_id     TEXT,
		region_id   TEXT,
		record      JSONB,
		event_date  DATE        NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presence_history_date ON presence_history (event_date, post_id)`,
}

// NewPool opens and pings a pgx pool
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("erro ao configurar pool do postgres: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar pool do postgres: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("sem resposta do postgres: %w", err)
	}

	return p, nil
}

// EnsureSchema creates the presence tables when they are missing
func EnsureSchema(ctx context.Context, db execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("erro ao aplicar schema: %w", err)
		}
	}
	return nil
}

// pgxPool is the part of *pgxpool.Pool the store runs queries through
type pgxPool interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// listenConn is a connection dedicated to LISTEN. Discard drops it from the pool.
type listenConn interface {
	execer
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
	Discard()
}

type pooledListener struct {
	conn *pgxpool.Conn
}

func (l pooledListener) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return l.conn.Exec(ctx, sql, args...)
}

func (l pooledListener) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return l.conn.Conn().WaitForNotification(ctx)
}

func (l pooledListener) Release() { l.conn.Release() }

func (l pooledListener) Discard() {
	_ = l.conn.Conn().Close(context.Background())
	l.conn.Release()
}

// PostgresStore maps paths onto rows of presence_kv and presence_scalars. Every mutation
// issues pg_notify in the same transaction, so listeners see changes in commit order.
type PostgresStore struct {
	db      pgxPool
	acquire func(ctx context.Context) (listenConn, error)
	logger  *slog.Logger

	retryMin, retryMax time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	acquire := func(ctx context.Context) (listenConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledListener{conn: conn}, nil
	}
	return newPostgresStore(pool, acquire, logger), nil
}

func newPostgresStore(db pgxPool, acquire func(context.Context) (listenConn, error), logger *slog.Logger) *PostgresStore {
	sctx, cancel := context.WithCancel(context.Background())
	return &PostgresStore{
		db:       db,
		acquire:  acquire,
		logger:   logger.With("backend", "postgres"),
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
		ctx:      sctx,
		cancel:   cancel,
	}
}

func (p *PostgresStore) ReadAll(ctx context.Context, path string) (store.Snapshot, error) {
	rows, err := p.db.Query(ctx, `SELECT key, value FROM presence_kv WHERE path = $1`, path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler %s: %w", path, err)
	}
	defer rows.Close()

	snap := store.Snapshot{}
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("erro no scan de %s: %w", path, err)
		}
		snap[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("erro ao ler %s: %w", path, err)
	}
	return snap, nil
}

func (p *PostgresStore) WriteMerge(ctx context.Context, path, key string, partial map[string]any) error {
	doc, err := json.Marshal(partial)
	if err != nil {
		return fmt.Errorf("erro ao codificar %s/%s: %w", path, key, err)
	}

	// documento que não é objeto é substituído em vez de mesclado
	query := `
		INSERT INTO presence_kv (path, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (path, key) DO UPDATE
		SET value = CASE
		        WHEN jsonb_typeof(presence_kv.value) = 'object' THEN presence_kv.value || EXCLUDED.value
		        ELSE EXCLUDED.value
		    END,
		    updated_at = CURRENT_TIMESTAMP
	`
	return p.mutate(ctx, path, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, path, key, string(doc))
		return err
	})
}

func (p *PostgresStore) Delete(ctx context.Context, path, key string) error {
	return p.mutate(ctx, path, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM presence_kv WHERE path = $1 AND key = $2`, path, key)
		return err
	})
}

func (p *PostgresStore) DeleteAll(ctx context.Context, path string) error {
	return p.mutate(ctx, path, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM presence_kv WHERE path = $1`, path)
		return err
	})
}

func (p *PostgresStore) Get(ctx context.Context, path string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(ctx, `SELECT value FROM presence_scalars WHERE path = $1`, path).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("erro ao ler %s: %w", path, err)
	}
	return value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, path, value string) error {
	query := `
		INSERT INTO presence_scalars (path, value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	return p.mutate(ctx, path, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, path, value)
		return err
	})
}

// mutate runs fn and the change notification in one transaction
func (p *PostgresStore) mutate(ctx context.Context, path string, fn func(pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return fmt.Errorf("erro ao gravar %s: %w", path, err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, path); err != nil {
		return fmt.Errorf("erro ao notificar %s: %w", path, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("erro ao commitar transação: %w", err)
	}
	return nil
}

// Subscribe holds one pooled connection in LISTEN mode per subscription. The LISTEN is
// issued before the initial read so no commit between the two is lost.
func (p *PostgresStore) Subscribe(ctx context.Context, path string, fn store.ChangeFunc) (store.Unsubscribe, error) {
	if p.ctx.Err() != nil {
		return nil, store.ErrClosed
	}

	conn, err := p.listen(ctx)
	if err != nil {
		return nil, err
	}

	initial, err := p.ReadAll(ctx, path)
	if err != nil {
		p.releaseListener(conn, true)
		return nil, err
	}
	fn(initial)

	subCtx, cancel := context.WithCancel(p.ctx)
	done := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		p.watch(subCtx, conn, path, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (p *PostgresStore) listen(ctx context.Context) (listenConn, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("erro ao obter conexão de escuta: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("erro ao escutar %s: %w", notifyChannel, err)
	}
	return conn, nil
}

// releaseListener hands the connection back to the pool without its LISTEN state.
// A connection that cannot be cleaned is closed so the pool discards it.
func (p *PostgresStore) releaseListener(conn listenConn, healthy bool) {
	if healthy {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "UNLISTEN *"); err == nil {
			conn.Release()
			return
		}
	}
	conn.Discard()
}

func (p *PostgresStore) watch(ctx context.Context, conn listenConn, path string, fn store.ChangeFunc) {
	backoff := infra.NewBackoff(p.retryMin, p.retryMax, 2.0)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.releaseListener(conn, true)
				return
			}

			p.logger.Warn("LISTEN connection lost, reconnecting", "path", path, "error", err)
			metrics.StoreSubscriptionRestarts.WithLabelValues("postgres").Inc()
			p.releaseListener(conn, false)

			for {
				if err := backoff.Sleep(ctx); err != nil {
					return
				}
				conn, err = p.listen(ctx)
				if err == nil {
					break
				}
				p.logger.Error("Failed to restore LISTEN connection", "path", path, "attempt", backoff.Attempts(), "error", err)
			}
			backoff.Reset()

			// commits feitos durante a queda não foram notificados
			p.deliver(ctx, path, fn)
			continue
		}

		if n.Payload != path {
			continue
		}
		p.deliver(ctx, path, fn)
	}
}

func (p *PostgresStore) deliver(ctx context.Context, path string, fn store.ChangeFunc) {
	snap, err := p.ReadAll(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Failed to refresh subscribed path", "path", path, "error", err)
		}
		return
	}
	fn(snap)
}

// Close stops every subscription. The pool belongs to the caller.
func (p *PostgresStore) Close() error {
	p.cancel()
	p.wg.Wait()
	return nil
}
