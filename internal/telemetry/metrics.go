// Package telemetry owns the Prometheus registry and the instruments the
// rest of the service records into.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service instruments on a private registry so tests
// can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	BarsProcessed  prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	HTTPInFlight   prometheus.Gauge
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	ProviderErrors *prometheus.CounterVec
}

// New builds a Metrics with all instruments registered, plus the standard
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "runs_total",
			Help:      "Backtest runs by strategy kind and outcome.",
		}, []string{"strategy", "status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stratbench",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full backtest run, load through metrics.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "bars_processed_total",
			Help:      "Bars pushed through the trade simulator.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stratbench",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stratbench",
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "bar_cache_hits_total",
			Help:      "Bar cache lookups served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "bar_cache_misses_total",
			Help:      "Bar cache lookups that fell through to the provider.",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratbench",
			Name:      "provider_errors_total",
			Help:      "Market data provider failures by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.RunDuration,
		m.BarsProcessed,
		m.HTTPRequests,
		m.HTTPDuration,
		m.HTTPInFlight,
		m.CacheHits,
		m.CacheMisses,
		m.ProviderErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one completed run.
func (m *Metrics) ObserveRun(strategy, status string, elapsed time.Duration, bars int) {
	m.RunsTotal.WithLabelValues(strategy, status).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.BarsProcessed.Add(float64(bars))
}
