// Package metrics defines the Prometheus collectors of the searcher and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	FilterRequestsTotal  *prometheus.CounterVec
	FilterLatency        *prometheus.HistogramVec
	FilterResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CatalogEntries       *prometheus.GaugeVec
	CatalogGeneration    prometheus.Gauge
	CatalogReloadsTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		FilterRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_filter_requests_total",
				Help: "Filter requests by outcome (hit, miss, zero_result, error).",
			},
			[]string{"result_type"},
		),
		FilterLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atlas_filter_latency_seconds",
				Help:    "Filter evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"cache_status"},
		),
		FilterResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "atlas_filter_results_count",
				Help:    "Number of episodes matched per filter request.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atlas_cache_hits_total",
				Help: "Total number of facet cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atlas_cache_misses_total",
				Help: "Total number of facet cache misses.",
			},
		),
		CatalogEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "atlas_catalog_entries",
				Help: "Entries in the loaded catalog by transcript status (linked, missing).",
			},
			[]string{"transcript"},
		),
		CatalogGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atlas_catalog_generation",
				Help: "Generation number of the loaded catalog snapshot.",
			},
		),
		CatalogReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atlas_catalog_reloads_total",
				Help: "Catalog reloads by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.FilterRequestsTotal,
		m.FilterLatency,
		m.FilterResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CatalogEntries,
		m.CatalogGeneration,
		m.CatalogReloadsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
