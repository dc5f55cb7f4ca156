package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
	"github.com/Guizzs26/gcm-presence/pkg/metrics"
)

var ErrOffline = errors.New("event broker is offline")

// Link is one live broker connection
type Link interface {
	Publish(ctx context.Context, ev models.PresenceEvent) error
	IsHealthy() bool
	Lost() <-chan struct{}
	Close() error
}

type DialFunc func() (Link, error)

type linkHolder struct {
	link Link
}

// Dispatcher publishes through whichever link is currently healthy. Publishing is
// best-effort: with no link the event is counted and dropped.
type Dispatcher struct {
	current atomic.Pointer[linkHolder]
	now     func() time.Time
	logger  *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{now: time.Now, logger: logger.With("component", "dispatcher")}
}

func (d *Dispatcher) Publish(ctx context.Context, ev models.PresenceEvent) error {
	h := d.current.Load()
	if h == nil || !h.link.IsHealthy() {
		metrics.BrokerPublishes.WithLabelValues("offline").Inc()
		return ErrOffline
	}
	if err := h.link.Publish(ctx, ev); err != nil {
		metrics.BrokerPublishes.WithLabelValues("error").Inc()
		return err
	}
	metrics.BrokerPublishes.WithLabelValues("sent").Inc()
	return nil
}

// PublishReset announces a committed daily clear
func (d *Dispatcher) PublishReset(ctx context.Context, date string) error {
	return d.Publish(ctx, models.NewPresenceEvent(models.EventReset, "", "", nil, date, d.now()))
}

// Online reports whether a healthy link is installed
func (d *Dispatcher) Online() bool {
	h := d.current.Load()
	return h != nil && h.link.IsHealthy()
}

// Run keeps a link installed until ctx ends, redialing with backoff whenever it is lost
func (d *Dispatcher) Run(ctx context.Context, dial DialFunc, backoff *infra.Backoff) {
	defer func() {
		if h := d.current.Swap(nil); h != nil {
			_ = h.link.Close()
		}
	}()

	for {
		link, err := dial()
		if err != nil {
			metrics.BrokerReconnections.Inc()
			wait := backoff.Next()
			d.logger.Error("RabbitMQ link failure, retrying", "wait", wait, "error", err)
			t := time.NewTimer(wait)
			select {
			case <-t.C:
				continue
			case <-ctx.Done():
				t.Stop()
				return
			}
		}

		backoff.Reset()
		if old := d.current.Swap(&linkHolder{link: link}); old != nil {
			_ = old.link.Close()
		}
		d.logger.Info("RabbitMQ link established 🚀")

		select {
		case <-link.Lost():
			d.logger.Warn("RabbitMQ link lost, reconnecting")
		case <-ctx.Done():
			return
		}
	}
}
