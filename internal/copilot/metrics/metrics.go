// Package metrics exposes Prometheus counters and histograms for the
// conversation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "copilot"

// Metrics holds the collectors. The zero value is not usable; call New.
// A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	turns       *prometheus.CounterVec
	intents     *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	completions *prometheus.HistogramVec
	rateLimited prometheus.Counter
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns handled, by result (ok, error, cancelled, rate_limited).",
		}, []string{"result"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Intents dispatched, by category.",
		}, []string{"category"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Operation outcomes, by category and status.",
		}, []string{"category", "status"}),
		completions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion engine latency, by purpose (extract, resolve, summarise, chat).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"purpose"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Turns rejected by the per-sender rate limit.",
		}),
	}
	reg.MustRegister(
		m.turns, m.intents, m.outcomes, m.completions, m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Turn(result string) {
	if m != nil {
		m.turns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Intent(category string) {
	if m != nil {
		m.intents.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) Outcome(category, status string) {
	if m != nil {
		m.outcomes.WithLabelValues(category, status).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// ObserveCompletion records the latency of one completion call started at
// start.
func (m *Metrics) ObserveCompletion(purpose string, start time.Time) {
	if m != nil {
		m.completions.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	}
}
