package cache

import (
	"time"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// Entry is one cached page. It is never modified after Put; a later Put for
// the same key replaces it.
type Entry struct {
	// Records is the page content in upstream order
	Records []record.Record `json:"records"`

	// TotalElements is the upstream element count across all pages
	TotalElements int `json:"total_elements"`

	// TotalPages is the upstream page count
	TotalPages int `json:"total_pages"`

	// FetchedAt is when the page was stored
	FetchedAt time.Time `json:"fetched_at"`

	// Sequence is the request sequence number that produced the page
	Sequence uint64 `json:"sequence"`
}

// IsExpired reports whether the entry is older than ttl at now.
// A ttl of 0 never expires.
func (e *Entry) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.FetchedAt) >= ttl
}

// TTL returns the remaining lifetime at now.
// Returns 0 if already expired or if ttl is 0.
func (e *Entry) TTL(now time.Time, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	left := ttl - now.Sub(e.FetchedAt)
	if left < 0 {
		return 0
	}
	return left
}
