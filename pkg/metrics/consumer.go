package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditDuration tracks how long the auditor takes to persist one event into the history table
	AuditDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auditor_processing_duration_seconds",
		Help:    "Time taken to persist a presence event into presence_history",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"status", "type"}) // status: stored, duplicate, error

	// AuditMessages tracks the throughput and result of event consumption
	AuditMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditor_messages_total",
		Help: "Total number of presence events consumed by the auditor",
	}, []string{"status"}) // status: stored, duplicate, malformed, transient
)
