package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	retried      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events delivered to pubsub.",
		}, []string{"event_type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_retried_total",
			Help: "Outbox publish attempts that failed and will be retried.",
		}, []string{"event_type"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_dead_lettered_total",
			Help: "Outbox events moved to the DLQ.",
		}, []string{"event_type", "reason"}),
	}
	reg.MustRegister(m.published, m.retried, m.deadLettered)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncRetried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// DLQDepth is the number of parked outbox rows per reason, refreshed by the
// cron worker.
type DLQDepth struct {
	gauge *prometheus.GaugeVec
}

func NewDLQDepth(reg prometheus.Registerer) *DLQDepth {
	if reg == nil {
		return nil
	}
	d := &DLQDepth{gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbox_dlq_depth",
		Help: "Outbox rows currently parked in the DLQ.",
	}, []string{"reason"})}
	reg.MustRegister(d.gauge)
	return d
}

func (d *DLQDepth) Set(reason string, n int64) {
	if d == nil {
		return
	}
	d.gauge.WithLabelValues(normalizeLabel(reason)).Set(float64(n))
}
