// Package pagination provides bounded parallel fetching of item batches.
//
// Paged listings resolve a window of ids first and then hydrate each id
// into a full record. Hydration is one upstream-backed call per id, so it
// runs on a worker pool with a fixed number of workers rather than one
// goroutine per id.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, id int) (*aggregate.Composite, error) {
//		return agg.GetComposite(ctx, strconv.Itoa(id), aggregate.VariantLite)
//	}, pagination.DefaultConfig())
//	byID, err := fetcher.FetchAll(ctx, ids)
//
// The batch fetcher:
//   - Deduplicates keys
//   - Spawns a worker pool (default 8 workers)
//   - Applies a per-item timeout
//   - Drops failed items with a warning
//   - Returns partial results when the context ends early
//
// Results come back as a map; completion order is not preserved, callers
// sort as they need.
package pagination
