// Package metrics defines the Prometheus metric collectors used by the
// location search service and the server that exposes them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseBytes     *prometheus.HistogramVec
	RateLimitedTotal      prometheus.Counter
	LocationQueriesTotal  *prometheus.CounterVec
	LocationQueryLatency  *prometheus.HistogramVec
	LocationQueryResults  prometheus.Histogram
	GeocoderRequestsTotal *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	IndexTokens           prometheus.Gauge
	IndexRecords          prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
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
				Help: "Total number of HTTP requests by method, path, and status.",
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
		HTTPResponseBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size in bytes.",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"path"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_requests_rate_limited_total",
				Help: "Requests rejected with 429 by the rate limiter.",
			},
		),
		LocationQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "location_queries_total",
				Help: "Total location queries by mode (exact, fallback, loose, place).",
			},
			[]string{"mode"},
		),
		LocationQueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "location_query_latency_seconds",
				Help:    "Location query latency in seconds, excluding HTTP overhead.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		LocationQueryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "location_query_results",
				Help:    "Number of merged rows per location query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000},
			},
		),
		GeocoderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocoder_requests_total",
				Help: "Geocoder calls by outcome (resolved or the unresolved reason).",
			},
			[]string{"outcome"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		),
		IndexTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_tokens",
				Help: "Number of distinct tokens in the location index.",
			},
		),
		IndexRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_records",
				Help: "Number of records in the location index.",
			},
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
		m.HTTPResponseBytes,
		m.RateLimitedTotal,
		m.LocationQueriesTotal,
		m.LocationQueryLatency,
		m.LocationQueryResults,
		m.GeocoderRequestsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexTokens,
		m.IndexRecords,
		m.CircuitBreakerState,
	)

	return m
}
