// Package cache provides the in-process page cache shared by every
// dashboard data source.
//
// The page cache stores one fetched page per Key{Source, Page, Size}:
//
// - Entries are addressed only by Key; equal tuples always share an entry
// - A TTL (optional) is checked against an injected clock on every Get
// - Capacity is bounded; the least recently used entry is evicted on overflow
// - Put refuses to replace an entry carrying a newer request sequence
// - Invalidation is scoped to one source or to all sources
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	pages := cache.New(cache.Options{TTL: 5 * time.Minute})
//
//	key := cache.Key{Source: "coins", Page: 0, Size: 50}
//
//	entry, err := pages.Get(key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream, then
//		pages.Put(key, records, totalElements, totalPages, seq)
//	}
//
//	// Drop everything cached for one source
//	pages.Invalidate(cache.SourceScope("coins"))
//
// # Metrics
//
//   - dashboard_cache_hits_total{source} - Cache hits
//   - dashboard_cache_misses_total{source} - Cache misses
//   - dashboard_cache_evictions_total{reason} - Entries dropped (capacity, expired)
//   - dashboard_cache_entries - Entries currently held
//   - dashboard_cache_invalidations_total{scope} - Invalidation calls
package cache
