package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the settlement orchestrator's Prometheus metrics.
type Metrics struct {
	Settlements *prometheus.CounterVec
}

// New creates and registers the settlement metrics.
func New() *Metrics {
	return &Metrics{
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_settlements_total",
			Help: "Verify-and-settle outcomes.",
		}, []string{"outcome"}),
	}
}

// RecordSettlement notes one verify-and-settle outcome.
func (m *Metrics) RecordSettlement(outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(outcome).Inc()
}
