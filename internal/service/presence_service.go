package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

const MaxWarNameLength = 60

var (
	ErrNotFound            = errors.New("presence not found")
	ErrUnknownPost         = errors.New("unknown post")
	ErrInactivePost        = errors.New("post is inactive")
	ErrUnknownInspectorate = errors.New("unknown inspectorate")
	ErrRegionMismatch      = errors.New("inspectorate belongs to another region group")
	ErrInvalidWarName      = errors.New("war name is required")
	ErrInvalidRank         = errors.New("unknown rank")
)

// IsValidation reports whether err is a rejected write intent rather than a store failure
func IsValidation(err error) bool {
	for _, target := range []error{ErrUnknownPost, ErrInactivePost, ErrUnknownInspectorate, ErrRegionMismatch, ErrInvalidWarName, ErrInvalidRank} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Writer is the part of the store presence writes go through
type Writer interface {
	WriteMerge(ctx context.Context, path, key string, partial map[string]any) error
	Delete(ctx context.Context, path, key string) error
}

// Reader answers from the live projection
type Reader interface {
	Get(id string) (models.PresenceRecord, bool)
}

// EventPublisher fans accepted writes out. Failures never fail the write.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.PresenceEvent) error
}

type MarkInput struct {
	PostID         string `json:"healthCenterId"`
	WarName        string `json:"warName"`
	Rank           string `json:"rank"`
	InspectorateID string `json:"inspectorateId"`
	PSUS           bool   `json:"psus"`
}

// UpdateInput carries only the fields being edited
type UpdateInput struct {
	WarName        *string `json:"warName"`
	Rank           *string `json:"rank"`
	InspectorateID *string `json:"inspectorateId"`
	PSUS           *bool   `json:"psus"`
}

// PresenceService validates write intents against the catalog and issues them to the store
type PresenceService struct {
	writer    Writer
	reader    Reader
	publisher EventPublisher
	catalog   *catalog.Catalog
	cal       *clock.Calendar
	paths     store.Paths
	logger    *slog.Logger
}

func NewPresenceService(w Writer, r Reader, p EventPublisher, c *catalog.Catalog, cal *clock.Calendar, paths store.Paths, l *slog.Logger) *PresenceService {
	return &PresenceService{
		writer:    w,
		reader:    r,
		publisher: p,
		catalog:   c,
		cal:       cal,
		paths:     paths,
		logger:    l.With("component", "presence"),
	}
}

// RegionOf returns the region group a post belongs to
func (s *PresenceService) RegionOf(postID string) (string, error) {
	post, ok := s.catalog.Post(postID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPost, postID)
	}
	return post.Region, nil
}

// Mark claims a post for a guard. The record is keyed by post id, so a new claim replaces the previous one.
func (s *PresenceService) Mark(ctx context.Context, in MarkInput) (models.PresenceRecord, error) {
	rec := models.PresenceRecord{
		ID:             in.PostID,
		WarName:        strings.TrimSpace(in.WarName),
		InspectorateID: in.InspectorateID,
		HealthCenterID: in.PostID,
		PSUS:           in.PSUS,
		Timestamp:      s.cal.Now(),
	}

	rank, err := models.ParseRank(in.Rank)
	if err != nil {
		return s.reject("mark", fmt.Errorf("%w: %q", ErrInvalidRank, in.Rank))
	}
	rec.Rank = rank

	post, err := s.validate(rec)
	if err != nil {
		return s.reject("mark", err)
	}

	if err := s.writer.WriteMerge(ctx, s.paths.Posts(), rec.ID, rec.Fields()); err != nil {
		metrics.PresenceWrites.WithLabelValues("mark", "error").Inc()
		return models.PresenceRecord{}, fmt.Errorf("erro ao gravar presença %s: %w", rec.ID, err)
	}
	metrics.PresenceWrites.WithLabelValues("mark", "ok").Inc()

	s.logger.Info("Presence marked", "post", rec.ID, "region", post.Region, "war_name", rec.WarName)
	s.publish(ctx, models.EventMarked, post, &rec)
	return rec, nil
}

// Update edits an existing claim and refreshes its timestamp
func (s *PresenceService) Update(ctx context.Context, id string, in UpdateInput) (models.PresenceRecord, error) {
	rec, ok := s.reader.Get(id)
	if !ok {
		metrics.PresenceWrites.WithLabelValues("update", "invalid").Inc()
		return models.PresenceRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if in.WarName != nil {
		rec.WarName = strings.TrimSpace(*in.WarName)
	}
	if in.Rank != nil {
		rank, err := models.ParseRank(*in.Rank)
		if err != nil {
			return s.reject("update", fmt.Errorf("%w: %q", ErrInvalidRank, *in.Rank))
		}
		rec.Rank = rank
	}
	if in.InspectorateID != nil {
		rec.InspectorateID = *in.InspectorateID
	}
	if in.PSUS != nil {
		rec.PSUS = *in.PSUS
	}
	rec.Timestamp = s.cal.Now()

	post, err := s.validate(rec)
	if err != nil {
		return s.reject("update", err)
	}

	if err := s.writer.WriteMerge(ctx, s.paths.Posts(), rec.ID, rec.Fields()); err != nil {
		metrics.PresenceWrites.WithLabelValues("update", "error").Inc()
		return models.PresenceRecord{}, fmt.Errorf("erro ao atualizar presença %s: %w", rec.ID, err)
	}
	metrics.PresenceWrites.WithLabelValues("update", "ok").Inc()

	s.logger.Info("Presence updated", "post", rec.ID, "region", post.Region)
	s.publish(ctx, models.EventUpdated, post, &rec)
	return rec, nil
}

func (s *PresenceService) Remove(ctx context.Context, id string) error {
	rec, ok := s.reader.Get(id)
	if !ok {
		metrics.PresenceWrites.WithLabelValues("remove", "invalid").Inc()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.writer.Delete(ctx, s.paths.Posts(), id); err != nil {
		metrics.PresenceWrites.WithLabelValues("remove", "error").Inc()
		return fmt.Errorf("erro ao remover presença %s: %w", id, err)
	}
	metrics.PresenceWrites.WithLabelValues("remove", "ok").Inc()

	post, _ := s.catalog.Post(rec.HealthCenterID)
	s.logger.Info("Presence removed", "post", id, "region", post.Region)
	s.publish(ctx, models.EventRemoved, post, &rec)
	return nil
}

// validate checks the record against the catalog: a known, active post and an
// inspectorate of the same region group
func (s *PresenceService) validate(rec models.PresenceRecord) (catalog.Post, error) {
	if rec.WarName == "" || len([]rune(rec.WarName)) > MaxWarNameLength {
		return catalog.Post{}, ErrInvalidWarName
	}

	post, ok := s.catalog.Post(rec.HealthCenterID)
	if !ok {
		return catalog.Post{}, fmt.Errorf("%w: %s", ErrUnknownPost, rec.HealthCenterID)
	}
	if !post.Active() {
		return catalog.Post{}, fmt.Errorf("%w: %s", ErrInactivePost, post.Name)
	}

	insp, ok := s.catalog.Inspectorate(rec.InspectorateID)
	if !ok {
		return catalog.Post{}, fmt.Errorf("%w: %s", ErrUnknownInspectorate, rec.InspectorateID)
	}
	if insp.Region != post.Region {
		return catalog.Post{}, fmt.Errorf("%w: %s is in %s, %s is in %s", ErrRegionMismatch, insp.Name, insp.Region, post.Name, post.Region)
	}
	return post, nil
}

func (s *PresenceService) reject(op string, err error) (models.PresenceRecord, error) {
	metrics.PresenceWrites.WithLabelValues(op, "invalid").Inc()
	s.logger.Debug("Presence write rejected", "op", op, "error", err)
	return models.PresenceRecord{}, err
}

func (s *PresenceService) publish(ctx context.Context, t models.EventType, post catalog.Post, rec *models.PresenceRecord) {
	if s.publisher == nil {
		return
	}
	now := s.cal.Now()
	ev := models.NewPresenceEvent(t, rec.ID, post.Region, rec, s.cal.DateOf(now), now)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Presence event not published", "event_id", ev.EventID, "type", t, "error", err)
	}
}
