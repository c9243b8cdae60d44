// Package metrics exposes prometheus collectors for the execution engine.
// A Metrics value owns its own registry so tests never collide on the
// global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine collectors. A nil *Metrics is valid and records
// nothing, so metrics stay optional in tests and library use.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	segmentsTotal    *prometheus.CounterVec
	approvalsTotal   *prometheus.CounterVec
	remoteTotal      *prometheus.CounterVec
	escalations      prometheus.Counter
	checkpointsTotal prometheus.Counter
}

// New creates a Metrics with a private registry and all collectors
// registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamexec_dispatch_total",
			Help: "Capability dispatches by capability name and outcome.",
		}, []string{"capability", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamexec_dispatch_duration_seconds",
			Help:    "Capability dispatch duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability"}),
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamexec_segments_total",
			Help: "Parsed stream segments by kind.",
		}, []string{"kind"}),
		approvalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamexec_approvals_total",
			Help: "Approval gate decisions by outcome.",
		}, []string{"outcome"}),
		remoteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamexec_remote_invocations_total",
			Help: "Remote capability invocations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamexec_escalations_total",
			Help: "Sessions escalated after consecutive failures.",
		}),
		checkpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamexec_checkpoints_total",
			Help: "Checkpoint records written.",
		}),
	}

	reg.MustRegister(
		m.dispatchTotal,
		m.dispatchDuration,
		m.segmentsTotal,
		m.approvalsTotal,
		m.remoteTotal,
		m.escalations,
		m.checkpointsTotal,
	)
	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDispatch records one dispatch and its duration.
func (m *Metrics) ObserveDispatch(capability, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(capability, outcome).Inc()
	m.dispatchDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// ObserveSegment records one parsed segment.
func (m *Metrics) ObserveSegment(kind string) {
	if m == nil {
		return
	}
	m.segmentsTotal.WithLabelValues(kind).Inc()
}

// ObserveApproval records one gate decision.
func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRemote records one remote invocation.
func (m *Metrics) ObserveRemote(provider, outcome string) {
	if m == nil {
		return
	}
	m.remoteTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveEscalation records one session escalation.
func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// ObserveCheckpoint records one checkpoint write.
func (m *Metrics) ObserveCheckpoint() {
	if m == nil {
		return
	}
	m.checkpointsTotal.Inc()
}
