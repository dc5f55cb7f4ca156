// Package session ties one live view of the presence namespace together: the
// projection subscription and the reset coordinator start and stop as a unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Guizzs26/gcm-presence/internal/projection"
	"github.com/Guizzs26/gcm-presence/internal/reset"
	"github.com/Guizzs26/gcm-presence/internal/store"
)

var ErrAlreadyStarted = errors.New("session already started")

type Session struct {
	store       store.Store
	paths       store.Paths
	projection  *projection.Projection
	coordinator *reset.Coordinator
	logger      *slog.Logger

	mu    sync.Mutex
	unsub store.Unsubscribe
}

func New(st store.Store, paths store.Paths, p *projection.Projection, c *reset.Coordinator, logger *slog.Logger) *Session {
	return &Session{
		store:       st,
		paths:       paths,
		projection:  p,
		coordinator: c,
		logger:      logger.With("component", "session"),
	}
}

// Start subscribes the projection first, so the first coordinator clear is observed,
// then starts the coordinator. If either fails nothing is left running.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		return ErrAlreadyStarted
	}

	unsub, err := s.store.Subscribe(ctx, s.paths.Posts(), s.projection.Apply)
	if err != nil {
		return fmt.Errorf("erro ao assinar %s: %w", s.paths.Posts(), err)
	}

	if err := s.coordinator.Start(ctx); err != nil {
		unsub()
		return fmt.Errorf("erro ao iniciar coordenador de reset: %w", err)
	}

	s.unsub = unsub
	s.logger.Info("Session started", "path", s.paths.Posts(), "records", s.projection.Len())
	return nil
}

// Stop tears down the tick and the subscription together. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub == nil {
		return
	}
	s.coordinator.Stop()
	s.unsub()
	s.unsub = nil
	s.logger.Info("Session stopped")
}

func (s *Session) Projection() *projection.Projection {
	return s.projection
}

func (s *Session) Coordinator() *reset.Coordinator {
	return s.coordinator
}
