// Package store defines the remote key-value contract the presence service is built on.
//
// A Store addresses collections ("paths") of JSON entries keyed by id, plus scalar
// values at their own paths. Subscribers receive the full snapshot of a path every
// time anything beneath it changes, in the order the backend applied the writes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
)

var ErrClosed = errors.New("store is closed")

// Snapshot maps entry keys to their raw JSON documents
type Snapshot map[string]json.RawMessage

func (s Snapshot) Clone() Snapshot {
	return maps.Clone(s)
}

// ChangeFunc receives the full current snapshot of the subscribed path.
// Implementations call it from their delivery goroutine; it must not call back into the store.
type ChangeFunc func(Snapshot)

// Unsubscribe stops deliveries. It is safe to call more than once.
type Unsubscribe func()

type Store interface {
	// ReadAll returns every entry under path, or an empty snapshot
	ReadAll(ctx context.Context, path string) (Snapshot, error)
	// WriteMerge upserts the given fields of one entry without touching its other fields or its siblings
	WriteMerge(ctx context.Context, path, key string, partial map[string]any) error
	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, path, key string) error
	// DeleteAll removes every entry under path in one logical call
	DeleteAll(ctx context.Context, path string) error
	// Get reads a scalar value
	Get(ctx context.Context, path string) (string, bool, error)
	// Set writes a scalar value
	Set(ctx context.Context, path, value string) error
	// Subscribe pushes the current snapshot of path immediately and again after every change
	Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error)
	Close() error
}

// Paths are the logical locations the presence system uses under one root
type Paths struct {
	Root string
}

func NewPaths(root string) Paths {
	return Paths{Root: strings.Trim(root, "/")}
}

// Posts is the presence namespace, <root>/posts
func (p Paths) Posts() string {
	return Join(p.Root, "posts")
}

// LastReset is the reset marker, <root>/util/lastResetDate
func (p Paths) LastReset() string {
	return Join(p.Root, "util", "lastResetDate")
}

func Join(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.Trim(part, "/"); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, "/")
}

// MergeJSON applies partial on top of an existing JSON object. A nil or empty
// current document starts from an empty object.
func MergeJSON(current json.RawMessage, partial map[string]any) (json.RawMessage, error) {
	doc := make(map[string]any)
	if len(current) > 0 {
		// corrupt or non-object entries are overwritten
		if err := json.Unmarshal(current, &doc); err != nil || doc == nil {
			doc = make(map[string]any)
		}
	}
	maps.Copy(doc, partial)
	return json.Marshal(doc)
}
