// Package projection mirrors the presence namespace in memory. It is rebuilt from
// scratch on every pushed snapshot and has no authority of its own.
package projection

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

type Projection struct {
	mu       sync.RWMutex
	records  []models.PresenceRecord
	byID     map[string]models.PresenceRecord
	rejected int
	version  uint64

	logger *slog.Logger
}

func New(logger *slog.Logger) *Projection {
	return &Projection{
		byID:   make(map[string]models.PresenceRecord),
		logger: logger.With("component", "projection"),
	}
}

// Apply replaces the whole mirror with snap. Entries that fail strict decoding are dropped.
func (p *Projection) Apply(snap store.Snapshot) {
	records := make([]models.PresenceRecord, 0, len(snap))
	byID := make(map[string]models.PresenceRecord, len(snap))
	rejected := 0

	for key, raw := range snap {
		rec, err := models.DecodeRecord(key, raw)
		if err != nil {
			rejected++
			p.logger.Warn("Ignoring malformed presence entry", "key", key, "error", err)
			continue
		}
		records = append(records, rec)
		byID[rec.ID] = rec
	}

	slices.SortFunc(records, func(a, b models.PresenceRecord) int {
		return strings.Compare(a.ID, b.ID)
	})

	p.mu.Lock()
	p.records = records
	p.byID = byID
	p.rejected = rejected
	p.version++
	p.mu.Unlock()

	metrics.ProjectionRecords.Set(float64(len(records)))
	if rejected > 0 {
		metrics.ProjectionRejected.Add(float64(rejected))
	}
}

// List returns a copy of the current records ordered by id
func (p *Projection) List() []models.PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.records)
}

func (p *Projection) Get(id string) (models.PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.byID[id]
	return rec, ok
}

func (p *Projection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Rejected is how many entries the last snapshot carried that could not be decoded
func (p *Projection) Rejected() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rejected
}

// Version increases with every applied snapshot
func (p *Projection) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}
