package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Agent run outcomes reported by the orchestrator.
const (
	AgentRunHandedOff = "handed_off"
	AgentRunReplied   = "replied"
	AgentRunSkipped   = "skipped"
	AgentRunFailed    = "failed"
)

// RoutingMetrics tracks the routing engine: transitions, handoffs and agent runs.
type RoutingMetrics struct {
	transitions    *prometheus.CounterVec
	handoffs       *prometheus.CounterVec
	unroutable     *prometheus.CounterVec
	claimConflicts *prometheus.CounterVec
	agentRuns      *prometheus.HistogramVec
}

// NewRoutingMetrics registers the routing metrics on reg. A nil registerer yields a no-op recorder.
func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	if reg == nil {
		return &RoutingMetrics{}
	}
	m := &RoutingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_transitions_total",
			Help: "Applied conversation state transitions.",
		}, []string{"transition"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handoffs_total",
			Help: "Handoffs recorded by reason code.",
		}, []string{"reason_code"}),
		unroutable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handoff_unroutable_total",
			Help: "Handoffs that found no active queue.",
		}, []string{"reason_code"}),
		claimConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_conflicts_total",
			Help: "Human actions rejected because another actor won the row.",
		}, []string{"operation"}),
		agentRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_run_duration_seconds",
			Help:    "Duration of run-agent executions by outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.transitions, m.handoffs, m.unroutable, m.claimConflicts, m.agentRuns)
	return m
}

func (m *RoutingMetrics) IncTransition(transition string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transition)).Inc()
}

func (m *RoutingMetrics) IncHandoff(reasonCode string) {
	if m == nil || m.handoffs == nil {
		return
	}
	m.handoffs.WithLabelValues(normalizeLabel(reasonCode)).Inc()
}

func (m *RoutingMetrics) IncUnroutable(reasonCode string) {
	if m == nil || m.unroutable == nil {
		return
	}
	m.unroutable.WithLabelValues(normalizeLabel(reasonCode)).Inc()
}

// IncConflict counts a claim/accept/release/resolve that lost its race.
func (m *RoutingMetrics) IncConflict(operation string) {
	if m == nil || m.claimConflicts == nil {
		return
	}
	m.claimConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *RoutingMetrics) ObserveAgentRun(outcome string, duration time.Duration) {
	if m == nil || m.agentRuns == nil {
		return
	}
	m.agentRuns.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}
