package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Upstream rate limit headers.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultThrottleDelay is the pause applied to requests in the warning band.
const DefaultThrottleDelay = time.Second

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_upstream_rate_limit_remaining",
		Help: "Requests remaining in the current upstream rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_upstream_rate_limit_blocks_total",
		Help: "Total number of requests blocked before reaching the upstream",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_upstream_rate_limit_throttles_total",
		Help: "Total number of requests delayed due to a low rate limit budget",
	})
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for reset and throttle timing.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithThrottleDelay sets the pause applied in the warning band.
func WithThrottleDelay(d time.Duration) Option {
	return func(t *Tracker) { t.throttleDelay = d }
}

// Tracker monitors upstream rate limits and gates requests.
type Tracker struct {
	store         Store
	clock         clockwork.Clock
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in
// process.
func NewTracker(store Store, logger zerolog.Logger, opts ...Option) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{
		store:         store,
		clock:         clockwork.NewRealClock(),
		throttleDelay: DefaultThrottleDelay,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetState retrieves the current rate limit state.
// Returns a default healthy state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	if state == nil {
		now := t.clock.Now()
		return &State{
			Remaining:  DefaultRemaining,
			LastUpdate: now,
			IsHealthy:  true,
		}, nil
	}
	return state, nil
}

// UpdateFromHeaders parses upstream rate limit headers and stores the state.
// Responses without rate limit headers leave the state unchanged.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	retryAfter, hasRetryAfter := ParseRetryAfter(headers, t.clock.Now())
	if remainStr == "" && !hasRetryAfter {
		return nil
	}

	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	now := t.clock.Now()
	state.LastUpdate = now

	if remainStr != "" {
		remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}

		resetStr := headers.Get(HeaderReset)
		if resetStr == "" {
			return fmt.Errorf("%s header missing", HeaderReset)
		}
		resetSeconds, err := strconv.Atoi(strings.TrimSpace(resetStr))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderReset, err)
		}

		state.Remaining = remain
		state.ResetAt = now.Add(time.Duration(resetSeconds) * time.Second)
	}
	if hasRetryAfter {
		state.BlockedUntil = now.Add(retryAfter)
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock(now):
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Time("blocked_until", state.BlockedUntil).
			Msg("Upstream rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling(now):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Upstream rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Upstream rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request may be sent now.
// Returns false and the time to wait when the request must be blocked.
// In the warning band it delays for the throttle delay before allowing.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.clock.Now()

	if state.NeedsCriticalBlock(now) {
		wait := state.TimeUntilReset(now)
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", wait).
			Msg("Upstream rate limit critical - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	if state.NeedsThrottling(now) && t.throttleDelay > 0 {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Upstream rate limit warning - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, 0, ctx.Err()
		case <-t.clock.After(t.throttleDelay):
		}
	}

	return true, 0, nil
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date.
func ParseRetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(headers.Get(HeaderRetryAfter))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
