package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/indexer-dashboard/pkg/client"
)

var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForKind returns the retry configuration for an error kind.
// Non-transient kinds get a single attempt.
func RetryConfigForKind(kind client.ErrorKind) RetryConfig {
	switch kind {
	case client.KindServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case client.KindRateLimited:
		// longer backoff; Retry-After may extend it up to MaxBackoff
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case client.KindNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case client.KindClient, client.KindValidation:
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = 1
		return cfg
	default:
		return DefaultRetryConfig()
	}
}

// backoffFor returns the delay before the attempt following attempt n (1-based).
func (rc RetryConfig) backoffFor(n int) time.Duration {
	backoff := rc.InitialBackoff
	for i := 1; i < n; i++ {
		backoff = time.Duration(float64(backoff) * rc.BackoffMultiplier)
		if backoff > rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	return backoff
}

type retrier struct {
	configFor   func(client.ErrorKind) RetryConfig
	maxAttempts int
	clock       clockwork.Clock
	logger      zerolog.Logger
}

// do executes fn with exponential backoff for transient failures.
// It respects context cancellation and adds jitter to prevent thundering herd.
func (r retrier) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		lastErr error
		kind    client.ErrorKind
	)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("error_kind", string(kind)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		kind = client.KindOf(err)

		if ctx.Err() != nil || !client.IsTransient(err) {
			return lastErr
		}

		config := r.configFor(kind)
		maxAttempts := config.MaxAttempts
		if r.maxAttempts > 0 {
			maxAttempts = r.maxAttempts
		}

		if attempt >= maxAttempts {
			retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
			r.logger.Warn().
				Str("error_kind", string(kind)).
				Int("max_attempts", maxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
		}

		retriesTotal.WithLabelValues(string(kind)).Inc()

		// Add jitter (±20% randomness)
		backoff := config.backoffFor(attempt)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		if ra := client.RetryAfterOf(err); ra > wait {
			wait = min(ra, config.MaxBackoff)
		}
		retryBackoffSeconds.WithLabelValues(string(kind)).Observe(wait.Seconds())

		r.logger.Debug().
			Err(err).
			Str("error_kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			r.logger.Warn().
				Str("error_kind", string(kind)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), lastErr))
		case <-r.clock.After(wait):
		}
	}
}
