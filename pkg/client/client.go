// Package client provides the HTTP transport to the upstream indexer with
// request pacing, rate limit tracking and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/indexer-dashboard/pkg/ratelimit"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 16 << 20

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_upstream_requests_total",
		Help: "Total upstream requests by source and status",
	}, []string{"source", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by source",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_upstream_errors_total",
		Help: "Total upstream errors by kind",
	}, []string{"kind"})
)

// Client fetches pages from the upstream indexer.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the upstream indexer (e.g. "https://api.indexer.example")
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout for a single HTTP request (0 = no client-side timeout)
	Timeout time.Duration

	// Request pacing: RateLimit requests per second with Burst
	// (RateLimit 0 disables pacing)
	RateLimit float64
	Burst     int

	// Tracker shares upstream throttle state (optional)
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		RateLimit: 10,
		Burst:     5,
	}
}

// New creates a new indexer client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.RateLimit > 0 && cfg.Burst < 1 {
		return nil, fmt.Errorf("burst must be >= 1 when rate_limit is set (got %d)", cfg.Burst)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		limiter:    limiter,
		tracker:    cfg.Tracker,
		config:     cfg,
		logger:     log.With().Str("component", "indexer-client").Logger(),
	}, nil
}

// FetchPage requests one page and normalizes the response.
// Failures are returned as *Error.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(req.Source).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check shared rate limit state
	if c.tracker != nil {
		allowed, wait, err := c.tracker.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			c.logger.Warn().
				Str("source", req.Source).
				Dur("wait", wait).
				Msg("Request blocked by rate limiter")
			upstreamRequestsTotal.WithLabelValues(req.Source, "blocked").Inc()
			return nil, c.fail(&Error{
				Kind:       KindRateLimited,
				Message:    "blocked before sending",
				RetryAfter: wait,
				Err:        ErrRequestBlocked,
			})
		}
	}

	// Step 2: Pace outgoing requests
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(networkError(err))
	}

	// Step 3: Build and execute the request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("source", req.Source).
		Int("page", req.Page).
		Int("size", req.Size).
		Msg("Executing upstream request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(req.Source, "network_error").Inc()
		return nil, c.fail(networkError(err))
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(req.Source, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Update shared rate limit state
	if c.tracker != nil {
		if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	// Step 5: Classify HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		retryAfter, _ := ratelimit.ParseRetryAfter(resp.Header, time.Now())
		upstreamErr := statusError(resp.StatusCode, resp.Status, retryAfter)

		c.logger.Warn().
			Str("source", req.Source).
			Int("page", req.Page).
			Int("status", resp.StatusCode).
			Str("error_kind", string(upstreamErr.Kind)).
			Msg("Upstream request error")

		return nil, c.fail(upstreamErr)
	}

	// Step 6: Normalize body
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(networkError(err))
	}

	page, err := ParsePage(body, req.Size)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("source", req.Source).
			Int("page", req.Page).
			Msg("Upstream response failed validation")
		return nil, c.fail(err)
	}

	return page, nil
}

func (c *Client) pageURL(req PageRequest) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Endpoint, "/")

	q := u.Query()
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("size", strconv.Itoa(req.Size))
	u.RawQuery = q.Encode()

	return u.String()
}

func (c *Client) fail(err error) error {
	upstreamErrorsTotal.WithLabelValues(string(KindOf(err))).Inc()
	return err
}
