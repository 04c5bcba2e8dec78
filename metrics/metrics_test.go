package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("success", time.Second)
	m.RecordRouteSelection("book-hotel", "scored")
	m.RecordToolCall("check_availability", true, time.Millisecond)
	m.RecordModelCall("openai", nil)
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("success", 120*time.Millisecond)
	m.ObserveTurn("error", 10*time.Millisecond)
	m.RecordRouteSelection("book-hotel", "scored")
	m.RecordRouteSelection("", "no_match")
	m.RecordToolCall("check_availability", true, 5*time.Millisecond)
	m.RecordToolCall("check_availability", false, 5*time.Millisecond)
	m.RecordModelCall("openai", nil)
	m.RecordModelCall("openai", errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.turnsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.turnsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.routeSelections.WithLabelValues("book-hotel", "scored")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.routeSelections.WithLabelValues("none", "no_match")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("check_availability", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.toolCallsTotal.WithLabelValues("check_availability", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modelCallsTotal.WithLabelValues("openai", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.modelCallsTotal.WithLabelValues("openai", "error")))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
