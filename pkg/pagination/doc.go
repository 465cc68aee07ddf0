// Package pagination collects or prefetches several pages of one data source
// in parallel.
//
// Pages are pulled through a PageWarmer (fetch.Coordinator implements it), so
// every page goes through the shared page cache and request de-duplication
// and never changes what the view is showing.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(coordinator, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx)
//	all := pagination.Flatten(pages)
//
// The batch fetcher:
//   - Fetches page 0 to learn the page count
//   - Spawns a bounded worker pool (default 4 workers)
//   - Returns partial results with an error when a worker fails
package pagination
