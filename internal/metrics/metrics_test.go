package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordGate("rejected")
	m.RecordGate("rejected")
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordOp("get_user_context", 0.01, "NOT_FOUND")
	m.RecordSession("hard_stop", 10)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateQueries.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpErrors.WithLabelValues("get_user_context", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("hard_stop")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGate("ok")
		m.RecordCache(true)
		m.RecordOp("x", 1, "")
		m.RecordSession("answered", 1)
	})
}
