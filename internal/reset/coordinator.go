// Package reset keeps the presence namespace scoped to one civil day.
//
// A Coordinator checks, on start and then on every tick, whether the roster in the
// store belongs to an earlier day of the canonical timezone. When it does, the whole
// namespace is deleted and only then the reset marker is advanced to today. Sessions
// in other processes may run the same check concurrently; every step is idempotent so
// no lock is taken.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

const (
	DefaultInterval = 60 * time.Second

	checkTimeout = 30 * time.Second
)

var ErrAlreadyStarted = errors.New("coordinator already started")

// Store is the part of the remote store the coordinator needs. It uses point reads only,
// never a subscription, so it does not react to its own writes.
type Store interface {
	ReadAll(ctx context.Context, path string) (store.Snapshot, error)
	DeleteAll(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (string, bool, error)
	Set(ctx context.Context, path, value string) error
}

// Notifier is told about every committed clear. Failures are logged and ignored.
type Notifier interface {
	PublishReset(ctx context.Context, date string) error
}

type Option func(*Coordinator)

func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// Result describes one completed check
type Result struct {
	Outcome Outcome `json:"outcome"`
	Today   string  `json:"today"`
	Marker  string  `json:"marker,omitempty"` // as read before the check; empty when absent
	Scanned int     `json:"scanned"`          // records inspected by the content scan
	Stale   int     `json:"stale"`            // records found dated before today
}

// Status is a point-in-time view of the coordinator for health endpoints
type Status struct {
	State         State     `json:"state"`
	Policy        Policy    `json:"policy"`
	Interval      string    `json:"interval"`
	Today         string    `json:"today"`
	LastCheck     time.Time `json:"last_check,omitzero"`
	LastOutcome   Outcome   `json:"last_outcome,omitempty"`
	LastClear     time.Time `json:"last_clear,omitzero"`
	LastClearDate string    `json:"last_clear_date,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Checks        int       `json:"checks"`
	Clears        int       `json:"clears"`
}

type Coordinator struct {
	store    Store
	paths    store.Paths
	cal      *clock.Calendar
	policy   Policy
	interval time.Duration
	notifier Notifier
	logger   *slog.Logger

	flight singleflight.Group

	mu      sync.Mutex
	status  Status
	running chan struct{} // closed when the shared check returns

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st Store, paths store.Paths, cal *clock.Calendar, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		paths:    paths,
		cal:      cal,
		policy:   PolicyMarkerScan,
		interval: DefaultInterval,
		logger:   logger.With("component", "reset"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.State = StateUnknown
	c.status.Policy = c.policy
	return c
}

// Start runs one check right away and then one per interval until ctx ends or Stop is called
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.done != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.loop(runCtx, c.done)

	c.logger.Info("Reset coordinator started", "policy", c.policy, "interval", c.interval, "zone", c.cal.Location())
	return nil
}

// Stop cancels the loop and waits for an in-flight check to return. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.done == nil {
		return
	}
	c.cancel()
	<-c.done
	c.waitRunning()
	c.cancel = nil
	c.done = nil
	c.logger.Info("Reset coordinator stopped")
}

func (c *Coordinator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.tick(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick never lets a failure escape; the next tick is the retry
func (c *Coordinator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Reset check panicked", "panic", r)
			c.recordError(fmt.Errorf("panic: %v", r))
		}
	}()

	if _, err := c.CheckNow(ctx); err != nil && ctx.Err() == nil {
		c.logger.Error("Reset check failed, retrying next tick", "retry_in", c.interval, "error", err)
	}
}

// CheckNow runs a check. Concurrent callers in this process share one run, which is not
// cancelled when a single caller gives up; ctx only bounds how long this caller waits.
func (c *Coordinator) CheckNow(ctx context.Context) (Result, error) {
	ch := c.flight.DoChan("check", func() (any, error) {
		done := make(chan struct{})
		c.mu.Lock()
		c.running = done
		c.mu.Unlock()
		defer close(done)

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkTimeout)
		defer cancel()
		return c.check(runCtx)
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(Result)
		return res, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Coordinator) waitRunning() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running != nil {
		<-running
	}
}

func (c *Coordinator) check(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.ResetCheckDuration.Observe(time.Since(start).Seconds())
	}()

	today := c.cal.Today()
	res := Result{Today: today}

	marker, found, err := c.readMarker(ctx)
	if err != nil {
		return c.fail(res, StateUnknown, err)
	}
	res.Marker = marker

	switch {
	case found && marker == today:
		return c.succeed(res, OutcomeFresh), nil

	case found && marker < today:
		c.setState(StateStaleDetected)
		c.logger.Info("Reset marker is from a previous day", "marker", marker, "today", today)
		return c.clear(ctx, res)
	}

	// the marker is absent, or ahead of today because another client's clock is
	if found {
		c.logger.Warn("Reset marker is ahead of today", "marker", marker, "today", today)
	}

	if c.policy == PolicyMarkerScan {
		snap, err := c.store.ReadAll(ctx, c.paths.Posts())
		if err != nil {
			return c.fail(res, StateUnknown, fmt.Errorf("erro ao varrer namespace de presença: %w", err))
		}
		res.Scanned, res.Stale = c.scan(snap, today)
		if res.Stale > 0 {
			c.setState(StateStaleDetected)
			c.logger.Info("Presence namespace holds records from a previous day", "stale", res.Stale, "scanned", res.Scanned, "today", today)
			return c.clear(ctx, res)
		}
	}

	if found {
		return c.succeed(res, OutcomeSkipped), nil
	}

	if err := c.store.Set(ctx, c.paths.LastReset(), today); err != nil {
		return c.fail(res, StateUnknown, fmt.Errorf("erro ao inicializar marcador de reset: %w", err))
	}
	c.logger.Info("Reset marker initialized", "date", today)
	return c.succeed(res, OutcomeInitialized), nil
}

// readMarker treats an unparseable marker as absent
func (c *Coordinator) readMarker(ctx context.Context) (string, bool, error) {
	raw, found, err := c.store.Get(ctx, c.paths.LastReset())
	if err != nil {
		return "", false, fmt.Errorf("erro ao ler marcador de reset: %w", err)
	}
	if !found {
		return "", false, nil
	}
	if _, perr := time.Parse(clock.DateLayout, raw); perr != nil {
		c.logger.Warn("Ignoring malformed reset marker", "marker", raw)
		return "", false, nil
	}
	return raw, true, nil
}

// scan counts records whose in-zone date is before today. Records without a readable
// timestamp do not count.
func (c *Coordinator) scan(snap store.Snapshot, today string) (scanned, stale int) {
	for key, raw := range snap {
		ts, err := models.DecodeTimestamp(raw)
		if err != nil {
			c.logger.Debug("Skipping record without a readable timestamp", "key", key, "error", err)
			continue
		}
		scanned++
		if c.cal.DateOf(ts) < today {
			stale++
		}
	}
	return scanned, stale
}

// clear deletes the namespace and only after that commits advances the marker
func (c *Coordinator) clear(ctx context.Context, res Result) (Result, error) {
	c.setState(StateClearing)

	if err := c.store.DeleteAll(ctx, c.paths.Posts()); err != nil {
		return c.fail(res, StateStaleDetected, fmt.Errorf("erro ao limpar namespace de presença: %w", err))
	}
	if err := c.store.Set(ctx, c.paths.LastReset(), res.Today); err != nil {
		return c.fail(res, StateStaleDetected, fmt.Errorf("namespace limpo mas falha ao gravar marcador: %w", err))
	}

	metrics.ResetClears.Inc()
	c.mu.Lock()
	c.status.LastClear = c.cal.Now()
	c.status.LastClearDate = res.Today
	c.status.Clears++
	c.mu.Unlock()

	c.logger.Info("🧹 Daily reset committed", "date", res.Today, "previous_marker", res.Marker)

	if c.notifier != nil {
		if err := c.notifier.PublishReset(ctx, res.Today); err != nil {
			c.logger.Warn("Failed to announce daily reset", "error", err)
		}
	}

	return c.succeed(res, OutcomeCleared), nil
}

func (c *Coordinator) succeed(res Result, outcome Outcome) Result {
	res.Outcome = outcome
	metrics.ResetChecks.WithLabelValues(string(outcome)).Inc()
	metrics.ResetLastSuccess.SetToCurrentTime()

	c.mu.Lock()
	c.status.State = StateVerifiedFresh
	c.status.LastCheck = c.cal.Now()
	c.status.LastOutcome = outcome
	c.status.LastError = ""
	c.status.Checks++
	c.mu.Unlock()
	return res
}

func (c *Coordinator) fail(res Result, state State, err error) (Result, error) {
	res.Outcome = OutcomeError
	metrics.ResetChecks.WithLabelValues(string(OutcomeError)).Inc()

	c.mu.Lock()
	c.status.State = state
	c.status.LastCheck = c.cal.Now()
	c.status.LastOutcome = OutcomeError
	c.status.LastError = err.Error()
	c.status.Checks++
	c.mu.Unlock()
	return res, err
}

func (c *Coordinator) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.LastError = err.Error()
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = s
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.State
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.Interval = c.interval.String()
	s.Today = c.cal.Today()
	return s
}
