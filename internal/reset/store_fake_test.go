package reset

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"github.com/Guizzs26/gcm-presence/internal/store"
)

// fakeStore counts every call and can fail individual operations
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]store.Snapshot
	scalars map[string]string

	reads, gets, sets, deletes int

	failGet, failRead, failDelete, failSet error

	// when set, Get blocks until it is closed
	gate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: make(map[string]store.Snapshot),
		scalars: make(map[string]string),
	}
}

func (f *fakeStore) put(path, key, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries[path] == nil {
		f.entries[path] = store.Snapshot{}
	}
	f.entries[path][key] = json.RawMessage(doc)
}

func (f *fakeStore) ReadAll(_ context.Context, path string) (store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead != nil {
		return nil, f.failRead
	}
	snap := maps.Clone(f.entries[path])
	if snap == nil {
		snap = store.Snapshot{}
	}
	return snap, nil
}

func (f *fakeStore) DeleteAll(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.entries, path)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, path string) (string, bool, error) {
	f.mu.Lock()
	f.gets++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return "", false, f.failGet
	}
	v, ok := f.scalars[path]
	return v, ok, nil
}

func (f *fakeStore) Set(_ context.Context, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.failSet != nil {
		return f.failSet
	}
	f.scalars[path] = value
	return nil
}

func (f *fakeStore) len(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[path])
}

func (f *fakeStore) scalar(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.scalars[path]
	return v, ok
}

func (f *fakeStore) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets + f.deletes
}

type fakeNotifier struct {
	mu    sync.Mutex
	dates []string
	err   error
}

func (n *fakeNotifier) PublishReset(_ context.Context, date string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dates = append(n.dates, date)
	return n.err
}
