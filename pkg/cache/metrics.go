package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits by source
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"source"},
	)

	// CacheMisses tracks page cache misses by source
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"source"},
	)

	// CacheEvictions tracks entries dropped without an explicit invalidation
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_evictions_total",
			Help: "Total number of page cache evictions",
		},
		[]string{"reason"}, // "capacity", "expired"
	)

	// CacheEntries tracks the number of entries held across all caches
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_cache_entries",
			Help: "Current number of page cache entries",
		},
	)

	// CacheInvalidations tracks invalidation calls by scope
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_invalidations_total",
			Help: "Total number of page cache invalidations",
		},
		[]string{"scope"}, // "source", "all"
	)
)
