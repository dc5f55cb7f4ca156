package store

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
)

// State is a copy of everything a MemoryStore holds
type State struct {
	Entries map[string]Snapshot
	Scalars map[string]string
}

// CommitHook observes the state after every mutation. Returning an error fails the
// write as seen by the caller; the in-memory state keeps the change.
type CommitHook func(State) error

type MemoryOption func(*MemoryStore)

func WithCommitHook(h CommitHook) MemoryOption {
	return func(m *MemoryStore) { m.hook = h }
}

// WithState seeds the store, e.g. from a persisted blob
func WithState(s State) MemoryOption {
	return func(m *MemoryStore) {
		for path, snap := range s.Entries {
			m.entries[path] = snap.Clone()
		}
		maps.Copy(m.scalars, s.Scalars)
	}
}

// MemoryStore keeps the namespace in process memory. Deliveries run synchronously
// on the writer's goroutine, serialized so that subscribers observe writes in order.
type MemoryStore struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	entries   map[string]Snapshot
	scalars   map[string]string
	subs      map[string]map[int]ChangeFunc
	nextSub   int
	closed    bool
	hook      CommitHook
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]Snapshot),
		scalars: make(map[string]string),
		subs:    make(map[string]map[int]ChangeFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) ReadAll(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	snap := m.entries[path].Clone()
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

func (m *MemoryStore) WriteMerge(ctx context.Context, path, key string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	merged, err := MergeJSON(m.entries[path][key], partial)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.entries[path] == nil {
		m.entries[path] = Snapshot{}
	}
	m.entries[path][key] = merged
	return m.commit(path)
}

func (m *MemoryStore) Delete(ctx context.Context, path, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	delete(m.entries[path], key)
	return m.commit(path)
}

func (m *MemoryStore) DeleteAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	delete(m.entries, path)
	return m.commit(path)
}

func (m *MemoryStore) Get(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.scalars[path]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, path, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.scalars[path] = value
	return m.commit(path)
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id := m.nextSub
	m.nextSub++
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]ChangeFunc)
	}
	m.subs[path][id] = fn

	initial := m.entries[path].Clone()
	if initial == nil {
		initial = Snapshot{}
	}
	m.deliverMu.Lock()
	m.mu.Unlock()
	fn(initial)
	m.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[path], id)
			m.mu.Unlock()
		})
	}, nil
}

// state returns a deep copy of the whole store
func (m *MemoryStore) state() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]map[int]ChangeFunc)
	return nil
}

// commit runs the hook and fans the new snapshot out. Must be called with mu held; it releases mu.
func (m *MemoryStore) commit(path string) error {
	var hookErr error
	if m.hook != nil {
		hookErr = m.hook(m.stateLocked())
	}

	fns := make([]ChangeFunc, 0, len(m.subs[path]))
	for _, fn := range m.subs[path] {
		fns = append(fns, fn)
	}
	snap := m.entries[path].Clone()
	if snap == nil {
		snap = Snapshot{}
	}

	m.deliverMu.Lock()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap.Clone())
	}
	m.deliverMu.Unlock()

	return hookErr
}

func (m *MemoryStore) stateLocked() State {
	s := State{
		Entries: make(map[string]Snapshot, len(m.entries)),
		Scalars: maps.Clone(m.scalars),
	}
	for path, snap := range m.entries {
		cp := make(Snapshot, len(snap))
		for k, v := range snap {
			cp[k] = append(json.RawMessage(nil), v...)
		}
		s.Entries[path] = cp
	}
	return s
}
