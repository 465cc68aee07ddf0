package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel page loads.
	// Keep it at or below the client burst so pacing is not the bottleneck.
	MaxConcurrency int
	// Timeout per page load
	Timeout time.Duration
	// MaxPages caps how many pages FetchAllPages collects
	MaxPages int
}

// DefaultConfig returns a conservative default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		MaxPages:       200,
	}
}

// PageWarmer loads one page into the page cache without touching the
// visible fetch state and returns its records and the upstream page count.
type PageWarmer interface {
	Warm(ctx context.Context, page int) ([]record.Record, int, error)
}

// PageResult represents the result of loading a single page
type PageResult struct {
	PageNumber int
	Records    []record.Record
	Error      error
}

// BatchFetcher loads several pages in parallel through a PageWarmer
type BatchFetcher struct {
	warmer PageWarmer
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(warmer PageWarmer, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		warmer: warmer,
		config: config,
		logger: log.With().Str("component", "batch-fetcher").Logger(),
	}
}

// FetchAllPages loads every page of the source, up to MaxPages.
// Returns map of page number -> records for the pages that loaded; on a
// worker failure the map holds the partial result and the error is set.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context) (map[int][]record.Record, error) {
	start := time.Now()

	// Load page 0 to learn the page count
	firstCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	first, totalPages, err := bf.warmer.Warm(firstCtx, 0)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	results := map[int][]record.Record{0: first}
	if totalPages <= 1 {
		bf.logger.Debug().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	if totalPages > bf.config.MaxPages {
		bf.logger.Warn().
			Int("total_pages", totalPages).
			Int("max_pages", bf.config.MaxPages).
			Msg("Source exceeds page cap - collecting first pages only")
		totalPages = bf.config.MaxPages
	}

	pages := make([]int, 0, totalPages-1)
	for p := 1; p < totalPages; p++ {
		pages = append(pages, p)
	}

	fetched, err := bf.run(ctx, pages)
	for p, records := range fetched {
		results[p] = records
	}

	if err != nil {
		bf.logger.Warn().
			Err(err).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return results, fmt.Errorf("worker error (partial data: %d/%d pages): %w", len(results), totalPages, err)
	}

	bf.logger.Info().
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// WarmAround prefetches the pages within radius of page, skipping negative
// page numbers. Pages beyond the last one come back empty from the upstream
// and are cached as such.
func (bf *BatchFetcher) WarmAround(ctx context.Context, page, radius int) error {
	pages := make([]int, 0, 2*radius)
	for p := page - radius; p <= page+radius; p++ {
		if p >= 0 && p != page {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return nil
	}

	_, err := bf.run(ctx, pages)
	return err
}

// run loads pages with the worker pool. The first worker error stops the
// remaining workers; results already loaded are returned.
func (bf *BatchFetcher) run(ctx context.Context, pages []int) (map[int][]record.Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, len(pages))
	for _, p := range pages {
		pageQueue <- p
	}
	close(pageQueue)

	pageResults := make(chan PageResult, len(pages))

	workers := min(bf.config.MaxConcurrency, len(pages))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, cancel, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	results := make(map[int][]record.Record, len(pages))
	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
			}
			continue
		}
		results[result.PageNumber] = result.Records
	}

	return results, firstErr
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, stop context.CancelFunc, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		records, _, err := bf.warmer.Warm(pageCtx, pageNum)
		cancel()

		// results is buffered for every page, sends never block
		results <- PageResult{PageNumber: pageNum, Records: records, Error: err}
		if err != nil {
			bf.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
			stop()
			return
		}

		pagesProcessed++
	}
}

// Flatten concatenates pages in page order.
func Flatten(pages map[int][]record.Record) []record.Record {
	keys := make([]int, 0, len(pages))
	n := 0
	for p, records := range pages {
		keys = append(keys, p)
		n += len(records)
	}
	sort.Ints(keys)

	out := make([]record.Record, 0, n)
	for _, p := range keys {
		out = append(out, pages[p]...)
	}
	return out
}
