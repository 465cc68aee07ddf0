// Package fetch coordinates page loads for dashboard data sources.
//
// A Coordinator owns the fetch state of one source. It serves pages from
// the shared page cache, collapses concurrent loads of the same page into
// one transport call, retries transient failures and discards responses
// that arrive after a newer request was issued.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/indexer-dashboard/pkg/cache"
	"github.com/Sternrassler/indexer-dashboard/pkg/client"
	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// Transport fetches one upstream page. *client.Client implements it.
type Transport interface {
	FetchPage(ctx context.Context, req client.PageRequest) (*client.Page, error)
}

// Config holds coordinator settings shared by all sources.
type Config struct {
	// Timeout bounds a single transport attempt (0 = no timeout)
	Timeout time.Duration

	// MaxAttempts overrides the per-kind attempt count when > 0
	MaxAttempts int

	// RetryConfigFor selects the backoff profile per error kind
	// (default: RetryConfigForKind)
	RetryConfigFor func(client.ErrorKind) RetryConfig

	// Clock drives backoff waits and state timestamps (default: real clock)
	Clock clockwork.Clock
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		RetryConfigFor: RetryConfigForKind,
		Clock:          clockwork.NewRealClock(),
	}
}

func (c Config) withDefaults() Config {
	if c.RetryConfigFor == nil {
		c.RetryConfigFor = RetryConfigForKind
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Scope selects what ClearCache removes.
type Scope int

const (
	// ScopeThis clears every cached page of the coordinator's source.
	ScopeThis Scope = iota
	// ScopeAll clears every cached page of every source.
	ScopeAll
)

// ParseScope maps "this"/"" and "all" to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "this":
		return ScopeThis, nil
	case "all":
		return ScopeAll, nil
	default:
		return ScopeThis, fmt.Errorf("unknown cache scope %q", s)
	}
}

// Coordinator controls loading and pagination for one source.
type Coordinator struct {
	source    Source
	transport Transport
	pages     *cache.PageCache
	retry     retrier
	cfg       Config
	clock     clockwork.Clock
	logger    zerolog.Logger

	group singleflight.Group

	mu         sync.Mutex
	seq        uint64 // highest sequence issued
	latestPage int    // page of the newest request, -1 after a reset
	state      State
}

// New creates a coordinator for src.
func New(src Source, transport Transport, pages *cache.PageCache, cfg Config, logger zerolog.Logger) (*Coordinator, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if pages == nil {
		return nil, fmt.Errorf("page cache is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %v)", cfg.Timeout)
	}

	cfg = cfg.withDefaults()
	logger = logger.With().Str("source", src.Name).Logger()

	return &Coordinator{
		source:    src,
		transport: transport,
		pages:     pages,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    logger,
		retry: retrier{
			configFor:   cfg.RetryConfigFor,
			maxAttempts: cfg.MaxAttempts,
			clock:       cfg.Clock,
			logger:      logger,
		},
		latestPage: -1,
		state:      State{Source: src.Name, Status: StatusIdle},
	}, nil
}

// Source returns the coordinated source.
func (c *Coordinator) Source() Source {
	return c.source
}

// Load returns the records of page. Cached pages are returned without a
// transport call; concurrent loads of the same uncached page share one.
// The result is applied to the state only if no newer request was issued
// meanwhile, but it is always returned to the caller. The returned slice is
// the caller's own; the cached entry is not shared.
func (c *Coordinator) Load(ctx context.Context, page int) ([]record.Record, error) {
	if page < 0 {
		return nil, fmt.Errorf("page must be >= 0 (got %d)", page)
	}

	seq := c.issue(page)
	key := c.key(page)

	if entry, err := c.pages.Get(key); err == nil {
		loadsTotal.WithLabelValues(c.source.Name, "cache_hit").Inc()
		c.applySuccess(seq, page, &client.Page{
			Records:       entry.Records,
			TotalElements: entry.TotalElements,
			TotalPages:    entry.TotalPages,
		}, false)
		return copyRecords(entry.Records), nil
	}

	result, err := c.fetchShared(ctx, key.String(), page)
	if err != nil {
		loadsTotal.WithLabelValues(c.source.Name, "error").Inc()
		c.applyError(seq, page, err)
		return nil, err
	}

	loadsTotal.WithLabelValues(c.source.Name, "fetched").Inc()
	c.applySuccess(seq, page, result, true)
	return copyRecords(result.Records), nil
}

// NextPage loads the following page. It is a no-op on the last page.
func (c *Coordinator) NextPage(ctx context.Context) error {
	c.mu.Lock()
	current, last := c.state.CurrentPage, c.lastPage()
	c.mu.Unlock()

	if current >= last {
		return nil
	}
	_, err := c.Load(ctx, current+1)
	return err
}

// PrevPage loads the preceding page. It is a no-op on page 0.
func (c *Coordinator) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	current := c.state.CurrentPage
	c.mu.Unlock()

	if current <= 0 {
		return nil
	}
	_, err := c.Load(ctx, current-1)
	return err
}

// GoToPage loads page n clamped to [0, totalPages-1]. Going to the page
// already shown is a no-op.
func (c *Coordinator) GoToPage(ctx context.Context, n int) error {
	c.mu.Lock()
	target := max(0, min(n, c.lastPage()))
	noop := target == c.state.CurrentPage && c.state.Status != StatusIdle
	c.mu.Unlock()

	if noop {
		return nil
	}
	_, err := c.Load(ctx, target)
	return err
}

// Refetch reloads the current page from the upstream, ignoring any cached
// entry, and replaces the cache entry.
func (c *Coordinator) Refetch(ctx context.Context) error {
	c.mu.Lock()
	page := c.state.CurrentPage
	c.mu.Unlock()

	seq := c.issue(page)

	result, err := c.fetchShared(ctx, "refetch:"+c.key(page).String(), page)
	if err != nil {
		loadsTotal.WithLabelValues(c.source.Name, "error").Inc()
		c.applyError(seq, page, err)
		return err
	}

	loadsTotal.WithLabelValues(c.source.Name, "fetched").Inc()
	c.applySuccess(seq, page, result, true)
	return nil
}

// Warm makes sure page is cached without changing the state. It returns
// the page records and the upstream page count.
func (c *Coordinator) Warm(ctx context.Context, page int) ([]record.Record, int, error) {
	if page < 0 {
		return nil, 0, fmt.Errorf("page must be >= 0 (got %d)", page)
	}

	key := c.key(page)
	if entry, err := c.pages.Get(key); err == nil {
		return copyRecords(entry.Records), entry.TotalPages, nil
	}

	c.mu.Lock()
	seq := c.seq
	c.mu.Unlock()

	result, err := c.fetchShared(ctx, key.String(), page)
	if err != nil {
		return nil, 0, err
	}

	c.pages.Put(key, result.Records, result.TotalElements, result.TotalPages, seq)
	return copyRecords(result.Records), result.TotalPages, nil
}

// ClearCache invalidates cached pages of this source (ScopeThis) or of
// every source (ScopeAll). It returns the number of removed entries.
func (c *Coordinator) ClearCache(scope Scope) int {
	cacheScope := cache.SourceScope(c.source.Name)
	if scope == ScopeAll {
		cacheScope = cache.AllSources()
	}

	removed := c.pages.Invalidate(cacheScope)
	c.logger.Debug().
		Bool("all_sources", scope == ScopeAll).
		Int("removed", removed).
		Msg("Cache cleared")
	return removed
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Reset returns the state to Idle. Responses to requests issued before the
// reset are discarded.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.latestPage = -1
	c.state = State{Source: c.source.Name, Status: StatusIdle}
}

// issue stamps a new request for page and marks the state as loading.
func (c *Coordinator) issue(page int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.latestPage = page
	c.state.Status = StatusLoading
	c.state.Loading = true
	return c.seq
}

func (c *Coordinator) key(page int) cache.Key {
	return cache.Key{Source: c.source.Name, Page: page, Size: c.source.PageSize}
}

// lastPage is the highest valid page index. Must be called with c.mu held.
func (c *Coordinator) lastPage() int {
	return max(c.state.TotalPages-1, 0)
}

// fetchShared runs one transport call per flight key. The call continues
// when a waiting caller gives up; its result is still delivered to the
// remaining callers.
func (c *Coordinator) fetchShared(ctx context.Context, flightKey string, page int) (*client.Page, error) {
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.fetchWithRetry(context.WithoutCancel(ctx), page)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load page %d: %w", page, ctx.Err())
	case res := <-ch:
		if res.Shared {
			sharedFetchesTotal.WithLabelValues(c.source.Name).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*client.Page), nil
	}
}

func (c *Coordinator) fetchWithRetry(ctx context.Context, page int) (*client.Page, error) {
	req := client.PageRequest{
		Source:   c.source.Name,
		Endpoint: c.source.Endpoint,
		Page:     page,
		Size:     c.source.PageSize,
	}

	logger := c.logger.With().
		Str("request_id", uuid.NewString()).
		Int("page", page).
		Logger()

	r := c.retry
	r.logger = logger

	var result *client.Page
	err := r.do(ctx, func(ctx context.Context) error {
		attemptCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		p, err := c.transport.FetchPage(attemptCtx, req)
		if err != nil {
			return err
		}
		if p == nil {
			return &client.Error{Kind: client.KindValidation, Message: "transport returned no page", Err: client.ErrMalformedResponse}
		}
		result = p
		return nil
	})
	if err != nil {
		logger.Warn().
			Err(err).
			Str("error_kind", string(client.KindOf(err))).
			Msg("Page fetch failed")
		return nil, err
	}

	if result.Records == nil {
		result.Records = []record.Record{}
	}
	return result, nil
}

// applySuccess applies a page to the state (and to the cache when store is
// set) if seq is still the newest request.
func (c *Coordinator) applySuccess(seq uint64, page int, p *client.Page, store bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.discard(seq, page)
		return
	}

	if store && !c.pages.Put(c.key(page), p.Records, p.TotalElements, p.TotalPages, seq) {
		c.logger.Debug().
			Uint64("sequence", seq).
			Str("cache_key", c.key(page).String()).
			Msg("Cache kept newer entry")
	}

	c.state.Status = StatusSuccess
	c.state.Loading = false
	c.state.Err = nil
	c.state.Data = p.Records
	c.state.DataPage = page
	c.state.CurrentPage = page
	c.state.TotalElements = p.TotalElements
	c.state.TotalPages = p.TotalPages
	c.state.UpdatedAt = c.clock.Now()
}

// applyError records a failed load if seq is still the newest request.
// The last good data is kept.
func (c *Coordinator) applyError(seq uint64, page int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.discard(seq, page)
		return
	}

	c.state.Status = StatusError
	c.state.Loading = false
	c.state.Err = &ErrorInfo{Kind: client.KindOf(err), Message: err.Error()}
	if errors.Is(err, context.Canceled) {
		c.state.Err.Message = "request cancelled"
	}
	c.state.CurrentPage = page
	c.state.UpdatedAt = c.clock.Now()
}

// discard drops a superseded result. A result for the page of the newest
// request, such as one delivered to every caller of a shared flight, is not
// out of order and is not counted as stale. Must be called with c.mu held.
func (c *Coordinator) discard(seq uint64, page int) {
	if page == c.latestPage {
		c.logger.Debug().
			Uint64("sequence", seq).
			Uint64("latest_sequence", c.seq).
			Int("page", page).
			Msg("Superseded by a newer request for the same page")
		return
	}

	staleResponsesTotal.WithLabelValues(c.source.Name).Inc()
	c.logger.Debug().
		Uint64("sequence", seq).
		Uint64("latest_sequence", c.seq).
		Int("page", page).
		Msg("Discarding stale response")
}

func copyRecords(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	copy(out, records)
	return out
}
