package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Guizzs26/gcm-presence/internal/models"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// HistoryRepository appends presence events to presence_history. A redelivered event
// hits the primary key and is ignored.
type HistoryRepository struct {
	db execer
}

func NewHistoryRepository(db execer) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append stores ev and reports whether it was new
func (r *HistoryRepository) Append(ctx context.Context, ev models.PresenceEvent) (bool, error) {
	var record any
	if ev.Record != nil {
		b, err := json.Marshal(ev.Record)
		if err != nil {
			return false, fmt.Errorf("erro ao codificar registro do evento %s: %w", ev.EventID, err)
		}
		record = string(b)
	}

	query := `
		INSERT INTO presence_history (event_id, type, post_id, region_id, record, event_date, occurred_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, $6::date, $7)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, ev.EventID, string(ev.Type), ev.PostID, ev.RegionID, record, ev.Date, ev.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("erro ao gravar evento %s: %w", ev.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}
