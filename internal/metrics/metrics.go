// Package metrics holds the Prometheus collectors a session reports to.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coherent"

// Metrics is registered on its own registry so several sessions (and tests)
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	initializations *prometheus.CounterVec
	executions      *prometheus.CounterVec
	execDuration    *prometheus.HistogramVec
	surfaces        *prometheus.CounterVec
	events          *prometheus.CounterVec
	ready           prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		initializations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initializations_total",
			Help:      "Session initialization attempts by outcome.",
		}, []string{"outcome"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Model executions by model and outcome.",
		}, []string{"model", "outcome"}),
		execDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Engine round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		surfaces: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surfaces_built_total",
			Help:      "UI surface constructions by outcome.",
		}, []string{"outcome"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Observer events by kind and delivery.",
		}, []string{"kind", "delivery"}),
		ready: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_ready",
			Help:      "1 while the session is ready.",
		}),
	}
}

func (m *Metrics) Initialization(outcome string) {
	if m == nil {
		return
	}
	m.initializations.WithLabelValues(outcome).Inc()
	if outcome == "ready" {
		m.ready.Set(1)
	}
}

func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.ready.Set(0)
}

func (m *Metrics) Execution(model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(model, outcome).Inc()
	if d > 0 {
		m.execDuration.WithLabelValues(model).Observe(d.Seconds())
	}
}

func (m *Metrics) Surface(outcome string) {
	if m == nil {
		return
	}
	m.surfaces.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Event(kind, delivery string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, delivery).Inc()
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
