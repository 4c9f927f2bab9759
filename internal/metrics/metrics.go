package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by the board, the upstream sources and
// the HTTP layer.
type Metrics struct {
	// Cache lookups per category, result is "hit" or "miss".
	CacheLookups *prometheus.CounterVec
	// Live fetch attempts per source, outcome is "ok", "error" or "skipped".
	UpstreamFetches  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	// Responses that used the static table for a category.
	FallbackServed *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector on reg. Passing a fresh registry keeps tests
// independent of the default one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketbrief_cache_lookups_total",
				Help: "Category cache lookups by result",
			},
			[]string{"category", "result"},
		),
		UpstreamFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketbrief_upstream_fetches_total",
				Help: "Upstream fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketbrief_upstream_fetch_duration_seconds",
				Help:    "Upstream fetch latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		),
		FallbackServed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketbrief_fallback_served_total",
				Help: "Times the static fallback table was served",
			},
			[]string{"category"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketbrief_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketbrief_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
