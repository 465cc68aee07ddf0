package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch coordination.
var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_loads_total",
		Help: "Total page loads by source and result",
	}, []string{"source", "result"}) // "cache_hit", "fetched", "error"

	sharedFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_shared_fetches_total",
		Help: "Total loads served by another caller's in-flight transport call",
	}, []string{"source"})

	staleResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_stale_responses_total",
		Help: "Total responses discarded because a newer request was issued",
	}, []string{"source"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})
)
