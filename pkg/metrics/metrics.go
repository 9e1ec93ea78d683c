// Package metrics exposes Prometheus collectors for chat turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coach"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	tools          *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	searches       *prometheus.CounterVec
	persistFailure *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by mode (stream, invoke).",
		}, []string{"mode"}),
		tools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_selections_total",
			Help:      "Selected response strategy per turn.",
		}, []string{"tool"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Web searches by outcome.",
		}, []string{"outcome"}),
		persistFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed message appends by role.",
		}, []string{"role"}),
	}
	reg.MustRegister(
		m.turns, m.tools, m.stageDuration, m.searches, m.persistFailure,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TurnStarted(mode string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode).Inc()
}

func (m *Metrics) ToolSelected(tool string) {
	if m == nil {
		return
	}
	m.tools.WithLabelValues(tool).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) SearchDone(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PersistFailed(role string) {
	if m == nil {
		return
	}
	m.persistFailure.WithLabelValues(role).Inc()
}
