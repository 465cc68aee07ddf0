// Package ratelimit tracks upstream indexer throttling and gates requests.
// It monitors the X-RateLimit-Remaining, X-RateLimit-Reset and Retry-After
// headers so that every coordinator sharing an upstream backs off together.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "dashboard:rate_limit:remaining"
	RedisKeyResetTimestamp = "dashboard:rate_limit:reset_timestamp"
	RedisKeyBlockedUntil   = "dashboard:rate_limit:blocked_until"
	RedisKeyLastUpdate     = "dashboard:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks all requests when the remaining
	// request budget falls below this value.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning throttles requests when the remaining budget
	// falls below this value.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 30
)

// DefaultRemaining is assumed until the upstream has reported a budget.
const DefaultRemaining = 100

// State represents the last known upstream rate limit state.
// It may be shared across dashboard replicas via a RedisStore.
type State struct {
	// Remaining is the request budget left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, seconds).
	ResetAt time.Time `json:"reset_at"`

	// BlockedUntil is set from a Retry-After header; no request is sent
	// before it passes.
	BlockedUntil time.Time `json:"blocked_until,omitempty"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must not be sent at now.
func (s *State) NeedsCriticalBlock(now time.Time) bool {
	if now.Before(s.BlockedUntil) {
		return true
	}
	return s.Remaining < RemainingThresholdCritical && now.Before(s.ResetAt)
}

// NeedsThrottling returns true if requests should be slowed down at now.
func (s *State) NeedsThrottling(now time.Time) bool {
	return s.Remaining < RemainingThresholdWarning && now.Before(s.ResetAt) && !s.NeedsCriticalBlock(now)
}

// TimeUntilReset returns how long a blocked caller has to wait at now.
// Returns 0 if neither the window reset nor a Retry-After is pending.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	until := s.ResetAt
	if s.BlockedUntil.After(until) {
		until = s.BlockedUntil
	}
	d := until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}
