package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox relay outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetrying     = "retrying"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the relay from outbox rows to Pub/Sub.
type OutboxMetrics struct {
	events *prometheus.CounterVec
	batch  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows relayed by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_batch_duration_seconds",
		Help:      "Time to claim, publish and settle one outbox batch.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15},
	})
	reg.MustRegister(events, batch)
	return &OutboxMetrics{events: events, batch: batch}
}

func (o *OutboxMetrics) Inc(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (o *OutboxMetrics) ObserveBatch(elapsed time.Duration) {
	if o == nil || o.batch == nil {
		return
	}
	o.batch.Observe(elapsed.Seconds())
}
