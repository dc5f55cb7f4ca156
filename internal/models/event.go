package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to the presence namespace
type EventType string

const (
	EventMarked  EventType = "marked"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
	EventReset   EventType = "reset"
)

// PresenceEvent is the message fanned out to RabbitMQ after every accepted write intent
// and after every committed daily clear
type PresenceEvent struct {
	EventID    string          `json:"event_id"` // Unique ID for tracing and auditor idempotency (UUID)
	Type       EventType       `json:"type"`
	PostID     string          `json:"post_id,omitempty"`
	RegionID   string          `json:"region_id,omitempty"`
	Record     *PresenceRecord `json:"record,omitempty"`
	Date       string          `json:"date"` // Civil date of the canonical timezone
	OccurredAt time.Time       `json:"occurred_at"`
}

func (t EventType) Valid() bool {
	switch t {
	case EventMarked, EventUpdated, EventRemoved, EventReset:
		return true
	}
	return false
}

// NewPresenceEvent stamps a fresh event id. rec may be nil for removals and resets.
func NewPresenceEvent(t EventType, postID, regionID string, rec *PresenceRecord, date string, at time.Time) PresenceEvent {
	return PresenceEvent{
		EventID:    uuid.NewString(),
		Type:       t,
		PostID:     postID,
		RegionID:   regionID,
		Record:     rec,
		Date:       date,
		OccurredAt: at.UTC(),
	}
}
