package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the escrow domain's Prometheus metrics.
type Metrics struct {
	Settlements           *prometheus.CounterVec
	ReconciliationRuns    prometheus.Counter
	ReconciliationRepairs *prometheus.CounterVec
}

// New creates and registers the escrow metrics.
func New() *Metrics {
	return &Metrics{
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_escrow_settlements_total",
			Help: "Escrow operations by type and outcome.",
		}, []string{"operation", "outcome"}),
		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaincheck_escrow_reconciliation_runs_total",
			Help: "Reconciliation passes over unsettled deliveries.",
		}),
		ReconciliationRepairs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_escrow_reconciliation_repairs_total",
			Help: "Local payment states repaired from chain state.",
		}, []string{"transition"}),
	}
}

// RecordSettlement notes one escrow operation outcome.
func (m *Metrics) RecordSettlement(operation, outcome string) {
	if m == nil {
		return
	}
	m.Settlements.WithLabelValues(operation, outcome).Inc()
}

// RecordReconciliationRun notes one reconciliation pass.
func (m *Metrics) RecordReconciliationRun() {
	if m == nil {
		return
	}
	m.ReconciliationRuns.Inc()
}

// RecordRepair notes one state repaired during reconciliation.
func (m *Metrics) RecordRepair(transition string) {
	if m == nil {
		return
	}
	m.ReconciliationRepairs.WithLabelValues(transition).Inc()
}
