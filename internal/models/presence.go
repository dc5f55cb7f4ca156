package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout matches what browsers emit with Date.toISOString (millisecond precision, UTC)
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrMalformedRecord = errors.New("malformed presence record")

// PresenceRecord is one guard's claim on one post for the current day.
// ID equals HealthCenterID: a post holds at most one active record.
type PresenceRecord struct {
	ID             string    `json:"id"`
	WarName        string    `json:"warName"`
	Rank           Rank      `json:"rank"`
	InspectorateID string    `json:"inspectorateId"`
	HealthCenterID string    `json:"healthCenterId"`
	Timestamp      time.Time `json:"timestamp"`
	PSUS           bool      `json:"psus,omitempty"`
}

// wireRecord is the shape stored under <root>/posts/<id>
type wireRecord struct {
	WarName        *string `json:"warName"`
	Rank           *string `json:"rank"`
	InspectorateID *string `json:"inspectorateId"`
	HealthCenterID *string `json:"healthCenterId"`
	Timestamp      *string `json:"timestamp"`
	PSUS           *bool   `json:"psus,omitempty"`
}

// DecodeRecord validates a raw store entry. The key is authoritative for ID; a missing
// healthCenterId is normalized from it. Everything else required must be present.
func DecodeRecord(key string, raw json.RawMessage) (PresenceRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return PresenceRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}

	rec := PresenceRecord{ID: key}

	if w.WarName == nil || strings.TrimSpace(*w.WarName) == "" {
		return PresenceRecord{}, fmt.Errorf("%w: %s: missing warName", ErrMalformedRecord, key)
	}
	rec.WarName = strings.TrimSpace(*w.WarName)

	if w.Rank == nil {
		return PresenceRecord{}, fmt.Errorf("%w: %s: missing rank", ErrMalformedRecord, key)
	}
	rank, err := ParseRank(*w.Rank)
	if err != nil {
		return PresenceRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	rec.Rank = rank

	if w.InspectorateID == nil || *w.InspectorateID == "" {
		return PresenceRecord{}, fmt.Errorf("%w: %s: missing inspectorateId", ErrMalformedRecord, key)
	}
	rec.InspectorateID = *w.InspectorateID

	rec.HealthCenterID = key
	if w.HealthCenterID != nil && *w.HealthCenterID != "" {
		rec.HealthCenterID = *w.HealthCenterID
	}

	if w.Timestamp == nil {
		return PresenceRecord{}, fmt.Errorf("%w: %s: missing timestamp", ErrMalformedRecord, key)
	}
	ts, err := ParseTimestamp(*w.Timestamp)
	if err != nil {
		return PresenceRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	rec.Timestamp = ts

	if w.PSUS != nil {
		rec.PSUS = *w.PSUS
	}

	return rec, nil
}

// DecodeTimestamp pulls only the timestamp out of a raw entry. The reset scan uses it
// so that an otherwise incomplete record still counts when its date is readable.
func DecodeTimestamp(raw json.RawMessage) (time.Time, error) {
	var w struct {
		Timestamp *string `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return time.Time{}, err
	}
	if w.Timestamp == nil {
		return time.Time{}, errors.New("missing timestamp")
	}
	return ParseTimestamp(*w.Timestamp)
}

// Fields is the partial-update form written through the store's merge operation
func (r PresenceRecord) Fields() map[string]any {
	return map[string]any{
		"warName":        r.WarName,
		"rank":           string(r.Rank),
		"inspectorateId": r.InspectorateID,
		"healthCenterId": r.HealthCenterID,
		"timestamp":      FormatTimestamp(r.Timestamp),
		"psus":           r.PSUS,
	}
}

// MarshalJSON keeps API output in the same ISO form the store uses
func (r PresenceRecord) MarshalJSON() ([]byte, error) {
	type alias PresenceRecord
	return json.Marshal(struct {
		alias
		Timestamp string `json:"timestamp"`
	}{alias: alias(r), Timestamp: FormatTimestamp(r.Timestamp)})
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 instant; a naive local time is rejected
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
