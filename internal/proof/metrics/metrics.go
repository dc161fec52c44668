package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the proof domain's Prometheus metrics.
type Metrics struct {
	ProofsCreated      *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	DivinerQueries     *prometheus.CounterVec
	ChainLinkMissing   prometheus.Counter
	ChainCycleDetected prometheus.Counter
}

// New creates and registers the proof metrics.
func New() *Metrics {
	return &Metrics{
		ProofsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_proofs_created_total",
			Help: "Location proofs created, labeled by backend mode.",
		}, []string{"mode"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_proof_verifications_total",
			Help: "Proof verification outcomes by source and result.",
		}, []string{"source", "result"}),
		DivinerQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaincheck_diviner_queries_total",
			Help: "Location consensus queries by backend mode.",
		}, []string{"mode"}),
		ChainLinkMissing: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaincheck_proof_chain_link_missing_total",
			Help: "Witness records observed without a previous-hash link.",
		}),
		ChainCycleDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaincheck_proof_chain_cycle_total",
			Help: "Witness chain traversals terminated by a repeated hash.",
		}),
	}
}

// RecordProofCreated notes a created proof by backend mode.
func (m *Metrics) RecordProofCreated(mocked bool) {
	if m == nil {
		return
	}
	m.ProofsCreated.WithLabelValues(mode(mocked)).Inc()
}

// RecordVerification notes a verification outcome for one source.
func (m *Metrics) RecordVerification(source, result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(source, result).Inc()
}

// RecordDivinerQuery notes a consensus query by backend mode.
func (m *Metrics) RecordDivinerQuery(mocked bool) {
	if m == nil {
		return
	}
	m.DivinerQueries.WithLabelValues(mode(mocked)).Inc()
}

// RecordMissingLink notes a witness record with no previous-hash reference.
func (m *Metrics) RecordMissingLink() {
	if m == nil {
		return
	}
	m.ChainLinkMissing.Inc()
}

// RecordCycle notes a traversal stopped by cycle detection.
func (m *Metrics) RecordCycle() {
	if m == nil {
		return
	}
	m.ChainCycleDetected.Inc()
}

func mode(mocked bool) string {
	if mocked {
		return "mock"
	}
	return "live"
}
