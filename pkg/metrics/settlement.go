package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts reconciled webhook events by provider and outcome.
type SettlementMetrics struct {
	events *prometheus.CounterVec
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_events_total",
		Help:      "Payment webhook events processed by outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(events)
	return &SettlementMetrics{events: events}
}

func (s *SettlementMetrics) Inc(provider, outcome string) {
	if s == nil || s.events == nil {
		return
	}
	s.events.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
