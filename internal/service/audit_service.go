package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/gcm-presence/internal/broker"
	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

type HistoryRepository interface {
	Append(ctx context.Context, ev models.PresenceEvent) (bool, error)
}

// AuditService turns consumed presence events into history rows
type AuditService struct {
	repo   HistoryRepository
	logger *slog.Logger
}

func NewAuditService(r HistoryRepository, l *slog.Logger) *AuditService {
	return &AuditService{repo: r, logger: l}
}

// HandleEvent stores one event. Undecodable events are reported as broker.ErrPoison so
// they are dropped; storage failures are returned as-is and the event is redelivered.
func (s *AuditService) HandleEvent(ctx context.Context, body []byte) error {
	start := time.Now()
	status := "error"
	eventType := "unknown"
	defer func() {
		metrics.AuditDuration.WithLabelValues(status, eventType).Observe(time.Since(start).Seconds())
	}()

	var ev models.PresenceEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.AuditMessages.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", broker.ErrPoison, err)
	}
	if _, err := uuid.Parse(ev.EventID); err != nil {
		metrics.AuditMessages.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: event id %q: %v", broker.ErrPoison, ev.EventID, err)
	}
	if !ev.Type.Valid() || ev.Date == "" {
		metrics.AuditMessages.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: event %s has type %q and date %q", broker.ErrPoison, ev.EventID, ev.Type, ev.Date)
	}
	eventType = string(ev.Type)

	l := s.logger.With("event_id", ev.EventID, "type", ev.Type, "post", ev.PostID)

	inserted, err := s.repo.Append(ctx, ev)
	if err != nil {
		metrics.AuditMessages.WithLabelValues("transient").Inc()
		l.Error("Audit: failed to append history", "error", err)
		return err
	}

	if !inserted {
		status = "duplicate"
		metrics.AuditMessages.WithLabelValues("duplicate").Inc()
		l.Debug("Audit: event already recorded")
		return nil
	}

	status = "stored"
	metrics.AuditMessages.WithLabelValues("stored").Inc()
	l.Info("Audit: event recorded", "date", ev.Date)
	return nil
}
