// Package metrics exposes Prometheus instrumentation for conversation turns,
// route selection, tool execution, and model calls. A nil *Metrics is a valid
// no-op recorder so callers never need to branch on whether metrics are
// enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors recorded by the pipeline and the engine.
type Metrics struct {
	turnsTotal      *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	routeSelections *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	modelCallsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer for the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convomesh_turns_total",
				Help: "Total conversation turns processed, by outcome",
			},
			[]string{"status"},
		),
		turnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "convomesh_turn_duration_seconds",
				Help:    "Wall-clock duration of a full turn",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		routeSelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convomesh_route_selections_total",
				Help: "Route selections, by route and selection reason",
			},
			[]string{"route", "reason"},
		),
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convomesh_tool_calls_total",
				Help: "Tool invocations, by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convomesh_tool_duration_seconds",
				Help:    "Duration of individual tool executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"tool"},
		),
		modelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convomesh_model_calls_total",
				Help: "Model provider calls, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}
	reg.MustRegister(
		m.turnsTotal,
		m.turnDuration,
		m.routeSelections,
		m.toolCallsTotal,
		m.toolDuration,
		m.modelCallsTotal,
	)
	return m
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// RecordRouteSelection records the winning route for a turn. Unrouted turns
// pass an empty route id.
func (m *Metrics) RecordRouteSelection(routeID, reason string) {
	if m == nil {
		return
	}
	if routeID == "" {
		routeID = "none"
	}
	m.routeSelections.WithLabelValues(routeID, reason).Inc()
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordModelCall records one provider round trip.
func (m *Metrics) RecordModelCall(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.modelCallsTotal.WithLabelValues(provider, outcome).Inc()
}
