package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResetChecks counts every staleness check by its outcome
	// outcome: fresh, initialized, cleared, skipped, error
	ResetChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_reset_checks_total",
		Help: "Total number of daily reset checks by outcome",
	}, []string{"outcome"})

	// ResetClears counts destructive clears that committed (namespace deleted and marker written)
	// More than one per day means several sessions raced on the same boundary, which is harmless
	ResetClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_reset_clears_total",
		Help: "Total number of committed daily clears",
	})

	// ResetCheckDuration measures how long a full check takes against the store
	ResetCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "presence_reset_check_duration_seconds",
		Help:    "Duration of a reset check in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ResetLastSuccess is the unix time of the last check that did not fail
	// If it stops moving the store is unreachable and yesterday's roster may still be visible
	ResetLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_reset_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful reset check",
	})

	// ProjectionRecords tracks how many presence records the in-memory mirror holds
	ProjectionRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_projection_records",
		Help: "Current number of presence records in the projection",
	})

	// ProjectionRejected counts entries dropped at the deserialization boundary
	ProjectionRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_projection_rejected_total",
		Help: "Total number of malformed presence entries ignored by the projection",
	})

	// PresenceWrites tracks write intents issued through the API
	// op: mark, update, remove; status: ok, invalid, forbidden, error
	PresenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_writes_total",
		Help: "Total number of presence write intents",
	}, []string{"op", "status"})

	// BrokerPublishes counts event fan-out attempts; status: sent, error, offline
	BrokerPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_broker_publishes_total",
		Help: "Total number of presence events published to the broker",
	}, []string{"status"})

	// BrokerReconnections counts how many times presenced had to restore the RabbitMQ link
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_broker_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus is 1 while the event broker link is up, 0 otherwise
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_broker_healthy",
		Help: "Current health status of the broker link (1 for healthy, 0 for unhealthy)",
	})

	// StoreSubscriptionRestarts counts LISTEN/SUBSCRIBE loops that had to be re-established
	StoreSubscriptionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_store_subscription_restarts_total",
		Help: "Total number of store change-subscription restarts",
	}, []string{"backend"})
)
