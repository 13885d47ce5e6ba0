// Package metrics exposes Prometheus instrumentation for the memory service.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be constructed without instrumentation in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cortex"

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	persistFailures *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	ingestedEntries *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New builds a Metrics instance on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversational turns processed, by result.",
		}, []string{"result"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time to answer a turn, excluding background persistence.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		persistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Turn summaries that could not be stored, by stage.",
		}, []string{"stage"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed provider calls, by provider and kind.",
		}, []string{"provider", "kind"}),
		ingestedEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_entries_total",
			Help:      "Entries written by ingestion, by kind.",
		}, []string{"kind"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background ingestion jobs reaching a terminal state.",
		}, []string{"state"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TurnCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues("ok").Inc()
	m.turnDuration.Observe(d.Seconds())
}

func (m *Metrics) TurnFailed() {
	if m == nil {
		return
	}
	m.turns.WithLabelValues("error").Inc()
}

func (m *Metrics) PersistFailed(stage string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) EntriesIngested(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedEntries.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(state).Inc()
}

func (m *Metrics) HTTPRequest(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
