package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a handful of promauto-registered counters passed in by the
// embedder rather than reaching for the global registry.
type Metrics struct {
	WritesTotal            prometheus.Counter
	NotificationsSent      prometheus.Counter
	NotificationsReceived  prometheus.Counter
}

// NewMetrics registers the engine's counters against reg (pass
// prometheus.DefaultRegisterer for the process-wide registry, or a fresh
// prometheus.NewRegistry() in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "paramstore",
			Name:      "writes_total",
			Help:      "Total number of accepted parameter writes.",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "paramstore",
			Name:      "notifications_sent_total",
			Help:      "Total number of change notifications sent on the multicast bus.",
		}),
		NotificationsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "paramstore",
			Name:      "notifications_received_total",
			Help:      "Total number of change notifications observed (multicast or poll).",
		}),
	}
}
