package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/store"
)

const localStateKey = "presence-state"

// localBlob is the whole presence state of one day, persisted under localStateKey
type localBlob struct {
	Date   string            `json:"date"`
	Guards []json.RawMessage `json:"guards"`
}

// LocalStore is the single-node variant: an in-memory store whose posts and reset
// marker are rewritten to one SQLite row after every mutation. A blob from another
// day, or one that does not decode, is discarded on open.
type LocalStore struct {
	*store.MemoryStore

	db     *sql.DB
	paths  store.Paths
	cal    *clock.Calendar
	logger *slog.Logger
}

func NewLocalStore(ctx context.Context, path string, paths store.Paths, cal *clock.Calendar, logger *slog.Logger) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir estado local %s: %w", path, err)
	}

	// one writer; the commit hook already runs serialized
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sem resposta do estado local: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS local_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("erro ao criar local_state: %w", err)
	}

	l := &LocalStore{
		db:     db,
		paths:  paths,
		cal:    cal,
		logger: logger.With("backend", "local"),
	}

	seed, err := l.load(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.MemoryStore = store.NewMemoryStore(store.WithState(seed), store.WithCommitHook(l.persist))

	return l, nil
}

// load returns today's persisted state, or an empty state when there is none
func (l *LocalStore) load(ctx context.Context) (store.State, error) {
	empty := store.State{}

	var raw string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM local_state WHERE key = ?`, localStateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("erro ao ler estado local: %w", err)
	}

	var blob localBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		l.logger.Warn("Discarding unreadable local state", "error", err)
		return empty, nil
	}
	// a data pode vir como dia puro ou instante ISO
	day, err := l.cal.ParseDay(blob.Date)
	if err != nil {
		l.logger.Warn("Discarding local state with an unreadable date", "stored", blob.Date, "error", err)
		return empty, nil
	}
	today := l.cal.Today()
	if day != today {
		l.logger.Info("Discarding local state from a previous day", "stored", blob.Date, "today", today)
		return empty, nil
	}

	guards := store.Snapshot{}
	for _, g := range blob.Guards {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(g, &head); err != nil || head.ID == "" {
			l.logger.Warn("Skipping local guard entry without id")
			continue
		}
		guards[head.ID] = g
	}

	return store.State{
		Entries: map[string]store.Snapshot{l.paths.Posts(): guards},
		Scalars: map[string]string{l.paths.LastReset(): day},
	}, nil
}

// persist rewrites the blob. The marker becomes the blob date; until one is set the
// current day is assumed.
func (l *LocalStore) persist(s store.State) error {
	date, ok := s.Scalars[l.paths.LastReset()]
	if !ok {
		date = l.cal.Today()
	}

	posts := s.Entries[l.paths.Posts()]
	keys := make([]string, 0, len(posts))
	for k := range posts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	blob := localBlob{Date: date, Guards: make([]json.RawMessage, 0, len(keys))}
	for _, k := range keys {
		doc, err := store.MergeJSON(posts[k], map[string]any{"id": k})
		if err != nil {
			return fmt.Errorf("erro ao codificar guarda local %s: %w", k, err)
		}
		blob.Guards = append(blob.Guards, doc)
	}

	b, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("erro ao codificar estado local: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, localStateKey, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("erro ao persistir estado local: %w", err)
	}
	return nil
}

func (l *LocalStore) Close() error {
	return errors.Join(l.MemoryStore.Close(), l.db.Close())
}
