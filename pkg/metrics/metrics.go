// Package metrics exposes the Prometheus registry used by the dashboard.
// Metrics are defined next to the code that records them (cache, client,
// fetch, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Catalog lists every dashboard metric name with the package recording it.
var Catalog = map[string]string{
	"dashboard_cache_hits_total":                    "cache",
	"dashboard_cache_misses_total":                  "cache",
	"dashboard_cache_evictions_total":               "cache",
	"dashboard_cache_entries":                       "cache",
	"dashboard_cache_invalidations_total":           "cache",
	"dashboard_upstream_requests_total":             "client",
	"dashboard_upstream_request_duration_seconds":   "client",
	"dashboard_upstream_errors_total":               "client",
	"dashboard_loads_total":                         "fetch",
	"dashboard_shared_fetches_total":                "fetch",
	"dashboard_stale_responses_total":               "fetch",
	"dashboard_retries_total":                       "fetch",
	"dashboard_retry_backoff_seconds":               "fetch",
	"dashboard_retry_exhausted_total":               "fetch",
	"dashboard_upstream_rate_limit_remaining":       "ratelimit",
	"dashboard_upstream_rate_limit_blocks_total":    "ratelimit",
	"dashboard_upstream_rate_limit_throttles_total": "ratelimit",
	"dashboard_api_requests_total":                  "cmd/dashboard-api",
	"dashboard_refresh_runs_total":                  "cmd/dashboard-api",
}

// Example Prometheus Queries:
//
//	# Page cache hit rate
//	sum(rate(dashboard_cache_hits_total[5m])) /
//	(sum(rate(dashboard_cache_hits_total[5m])) + sum(rate(dashboard_cache_misses_total[5m])))
//
//	# Share of loads served by another caller's request
//	rate(dashboard_shared_fetches_total[5m]) / rate(dashboard_loads_total{result="fetched"}[5m])
//
//	# Upstream budget
//	dashboard_upstream_rate_limit_remaining < 10
//
//	# P95 upstream latency per source
//	histogram_quantile(0.95, sum by (source, le) (rate(dashboard_upstream_request_duration_seconds_bucket[5m])))
