package client

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/indexer-dashboard/internal/testutil"
	"github.com/Sternrassler/indexer-dashboard/pkg/ratelimit"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://indexer.example", "Dashboard/1.0.0"),
		},
		{
			name:        "missing base url",
			config:      Config{UserAgent: "Dashboard/1.0.0"},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      Config{BaseURL: "/api", UserAgent: "Dashboard/1.0.0"},
			expectError: true,
			errorMsg:    `base url must be absolute (got "/api")`,
		},
		{
			name:        "empty user agent",
			config:      Config{BaseURL: "https://indexer.example"},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "negative rate limit",
			config:      Config{BaseURL: "https://indexer.example", UserAgent: "Dashboard/1.0.0", RateLimit: -1},
			expectError: true,
			errorMsg:    "rate_limit must be >= 0 (got -1)",
		},
		{
			name:        "rate limit without burst",
			config:      Config{BaseURL: "https://indexer.example", UserAgent: "Dashboard/1.0.0", RateLimit: 5},
			expectError: true,
			errorMsg:    "burst must be >= 1 when rate_limit is set (got 0)",
		},
		{
			name:   "unpaced",
			config: Config{BaseURL: "https://indexer.example", UserAgent: "Dashboard/1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://indexer.example", "Dashboard/1.0.0")

	if cfg.UserAgent != "Dashboard/1.0.0" {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, "Dashboard/1.0.0")
	}
	if cfg.RateLimit <= 0 {
		t.Errorf("RateLimit = %v, should be > 0", cfg.RateLimit)
	}
	if cfg.Burst < 1 {
		t.Errorf("Burst = %d, should be >= 1", cfg.Burst)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("Timeout = %v, should be > 0", cfg.Timeout)
	}
}

func newTestClient(t *testing.T, baseURL string, tracker *ratelimit.Tracker) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL, "Dashboard/1.0.0 (test@example.com)")
	cfg.RateLimit = 0
	cfg.Tracker = tracker
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockIndexer()
	defer mock.Close()
	mock.SetRecords("/api/v1/coins", testutil.MakeRecords(120, "marketCap"))

	c := newTestClient(t, mock.URL(), nil)

	page, err := c.FetchPage(context.Background(), PageRequest{
		Source:   "coins",
		Endpoint: "/api/v1/coins",
		Page:     2,
		Size:     50,
	})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Records) != 20 {
		t.Errorf("len(Records) = %d, want 20", len(page.Records))
	}
	if page.TotalElements != 120 {
		t.Errorf("TotalElements = %d, want 120", page.TotalElements)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}

	q := mock.GetLastQuery()
	if q["page"] != "2" || q["size"] != "50" {
		t.Errorf("query = %v, want page=2 size=50", q)
	}
	if ua := mock.GetLastRequestHeader().Get("User-Agent"); ua != "Dashboard/1.0.0 (test@example.com)" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestFetchPage_BaseURLWithPath(t *testing.T) {
	mock := testutil.NewMockIndexer()
	defer mock.Close()
	mock.SetArray("/indexer/validators", testutil.MakeRecords(3, "stake"))

	c := newTestClient(t, mock.URL()+"/indexer/", nil)

	page, err := c.FetchPage(context.Background(), PageRequest{Source: "validators", Endpoint: "validators", Size: 20})
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.TotalPages != 1 || len(page.Records) != 3 {
		t.Errorf("page = %d records / %d pages, want 3 / 1", len(page.Records), page.TotalPages)
	}
}

func TestFetchPage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name           string
		response       testutil.MockResponse
		wantKind       ErrorKind
		wantStatus     int
		wantRetryAfter time.Duration
	}{
		{
			name:       "server error",
			response:   testutil.NewServerErrorResponse(),
			wantKind:   KindServer,
			wantStatus: 500,
		},
		{
			name:           "rate limited",
			response:       testutil.NewRateLimitResponse(7),
			wantKind:       KindRateLimited,
			wantStatus:     429,
			wantRetryAfter: 7 * time.Second,
		},
		{
			name:       "bad request",
			response:   testutil.NewBadRequestResponse(),
			wantKind:   KindClient,
			wantStatus: 400,
		},
		{
			name:     "malformed body",
			response: testutil.NewHealthyResponse(`{"items": []}`),
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockIndexer()
			defer mock.Close()
			mock.SetResponse("/pools", tt.response)

			c := newTestClient(t, mock.URL(), nil)
			_, err := c.FetchPage(context.Background(), PageRequest{Source: "pools", Endpoint: "/pools", Size: 20})

			var upstreamErr *Error
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if upstreamErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", upstreamErr.Kind, tt.wantKind)
			}
			if upstreamErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", upstreamErr.StatusCode, tt.wantStatus)
			}
			if upstreamErr.RetryAfter != tt.wantRetryAfter {
				t.Errorf("RetryAfter = %v, want %v", upstreamErr.RetryAfter, tt.wantRetryAfter)
			}
		})
	}
}

func TestFetchPage_Timeout(t *testing.T) {
	mock := testutil.NewMockIndexer()
	defer mock.Close()
	resp := testutil.NewHealthyResponse(`[]`)
	resp.Delay = 500 * time.Millisecond
	mock.SetResponse("/slow", resp)

	c := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchPage(ctx, PageRequest{Source: "slow", Endpoint: "/slow", Size: 20})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindNetwork)
	}
	if !IsTransient(err) {
		t.Error("timeout should be transient")
	}
}

func TestFetchPage_RateLimitBlock(t *testing.T) {
	mock := testutil.NewMockIndexer()
	defer mock.Close()
	mock.SetResponse("/coins", testutil.NewRateLimitResponse(30))

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := ratelimit.NewTracker(nil, logger, ratelimit.WithClock(clockwork.NewFakeClock()))
	c := newTestClient(t, mock.URL(), tracker)
	req := PageRequest{Source: "coins", Endpoint: "/coins", Size: 50}

	// First request reaches the upstream and records Retry-After
	if _, err := c.FetchPage(context.Background(), req); KindOf(err) != KindRateLimited {
		t.Fatalf("first FetchPage() error = %v, want rate_limited", err)
	}

	// Second request is blocked locally
	_, err := c.FetchPage(context.Background(), req)
	if !errors.Is(err, ErrRequestBlocked) {
		t.Fatalf("second FetchPage() error = %v, want ErrRequestBlocked", err)
	}
	if RetryAfterOf(err) != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", RetryAfterOf(err))
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("upstream requests = %d, want 1", got)
	}
}

func TestFetchPage_TrackerUpdatedFromHeaders(t *testing.T) {
	mock := testutil.NewMockIndexer()
	defer mock.Close()
	mock.SetResponse("/names", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[]`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "42",
			"X-RateLimit-Reset":     "60",
		},
	})

	tracker := ratelimit.NewTracker(nil, zerolog.Nop())
	c := newTestClient(t, mock.URL(), tracker)

	if _, err := c.FetchPage(context.Background(), PageRequest{Source: "names", Endpoint: "/names", Size: 20}); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
}
