// Package metrics provides Prometheus instrumentation for query operations,
// the ad-hoc gate, the result cache and dispatch sessions.
//
// Metrics exposed:
//   - fleetctx_op_duration_seconds: Histogram of operation latency by name
//   - fleetctx_op_errors_total: Counter of operation errors by name and kind
//   - fleetctx_gate_queries_total: Counter of ad-hoc queries by outcome
//   - fleetctx_cache_requests_total: Counter of cache lookups by result
//   - fleetctx_sessions_total: Counter of dispatch sessions by outcome
//   - fleetctx_session_steps: Histogram of planning steps per session
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OpDuration    *prometheus.HistogramVec
	OpErrors      *prometheus.CounterVec
	GateQueries   *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec
	Sessions      *prometheus.CounterVec
	SessionSteps  prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetctx_op_duration_seconds",
			Help:    "Time spent executing a catalog operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		OpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctx_op_errors_total",
			Help: "Total number of operation errors by operation and kind",
		}, []string{"op", "kind"}),

		GateQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctx_gate_queries_total",
			Help: "Total number of ad-hoc queries by audit outcome",
		}, []string{"outcome"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctx_cache_requests_total",
			Help: "Total number of cache lookups by result",
		}, []string{"result"}),

		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctx_sessions_total",
			Help: "Total number of dispatch sessions by outcome",
		}, []string{"outcome"}),

		SessionSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetctx_session_steps",
			Help:    "Planning steps taken per dispatch session",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// RecordOp records the duration of an operation and, when kind is not
// empty, an error of that kind.
func (m *Metrics) RecordOp(op string, seconds float64, kind string) {
	if m == nil {
		return
	}
	m.OpDuration.WithLabelValues(op).Observe(seconds)
	if kind != "" {
		m.OpErrors.WithLabelValues(op, kind).Inc()
	}
}

func (m *Metrics) RecordGate(outcome string) {
	if m == nil {
		return
	}
	m.GateQueries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSession(outcome string, steps int) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
	m.SessionSteps.Observe(float64(steps))
}
