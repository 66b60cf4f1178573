package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics times outbound calls to payment providers.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway requests.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "operation", "outcome"})
	reg.MustRegister(duration)
	return &GatewayMetrics{duration: duration}
}

// Observe records one gateway call. outcome is "ok", "retry" or "error".
func (g *GatewayMetrics) Observe(provider, operation, outcome string, elapsed time.Duration) {
	if g == nil || g.duration == nil {
		return
	}
	g.duration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Observe(elapsed.Seconds())
}
