package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox dispatch outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks how the outbox publisher drains events.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
	batch      prometheus.Histogram
}

// NewOutboxMetrics registers the publisher collectors on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "outbox",
			Name:      "events_dispatched_total",
			Help:      "Outbox events handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent draining one outbox batch, including the commit.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.dispatched, m.batch)
	return m
}

func (m *OutboxMetrics) Dispatched(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *OutboxMetrics) ObserveBatch(took time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(took.Seconds())
}
