package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"dataset"},
	)

	upstreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_failures_total",
			Help: "Upstream fetches that failed or timed out.",
		},
		[]string{"dataset", "reason"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache lookups by outcome.",
		},
		[]string{"outcome", "dataset"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op", "outcome"},
	)

	backgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_tasks_total",
			Help: "Background tasks by terminal state.",
		},
		[]string{"name", "outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(dataset string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(dataset).Observe(durationSeconds)
}

func IncUpstreamFailure(dataset, reason string) {
	if reason == "" {
		reason = "error"
	}
	upstreamFailuresTotal.WithLabelValues(dataset, reason).Inc()
}

func IncCacheHit(dataset string) {
	cacheResults.WithLabelValues("hit", dataset).Inc()
}

func IncCacheMiss(dataset string) {
	cacheResults.WithLabelValues("miss", dataset).Inc()
}

func IncCacheBypass(dataset string) {
	cacheResults.WithLabelValues("bypass", dataset).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, outcome).Observe(durationSeconds)
}

func IncBackgroundTask(name, outcome string) {
	backgroundTasksTotal.WithLabelValues(name, outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
