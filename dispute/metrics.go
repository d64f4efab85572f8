package dispute

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine operations. A nil *Metrics is valid and counts
// nothing, so wiring a registry stays optional.
type Metrics struct {
	created  prometheus.Counter
	evidence prometheus.Counter
	votes    prometheus.Counter
	resolved prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_disputes_created_total",
			Help: "Number of disputes created",
		}),
		evidence: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_evidence_submitted_total",
			Help: "Number of evidence entries recorded",
		}),
		votes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_votes_cast_total",
			Help: "Number of votes accepted",
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_disputes_resolved_total",
			Help: "Number of disputes settled",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.evidence, m.votes, m.resolved)
	}
	return m
}

func (m *Metrics) incCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) incEvidence() {
	if m != nil {
		m.evidence.Inc()
	}
}

func (m *Metrics) incVote() {
	if m != nil {
		m.votes.Inc()
	}
}

func (m *Metrics) incResolved() {
	if m != nil {
		m.resolved.Inc()
	}
}
