// Package cache provides the in-process coalescing TTL cache shared by every
// catalog resolver.
//
// The store has the following properties:
//
// - Get-or-compute semantics keyed by string, polymorphic over the result type
// - At most one concurrent computation per key (request coalescing)
// - Lazy expiry: TTLs are checked on read, there is no background sweep
// - Failed computations are never cached; the next caller retries
// - Per-resource-kind TTL policy
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	store := cache.NewStore()
//	policy := cache.DefaultPolicy()
//
//	key := cache.Key{Kind: cache.KindAbility, ID: "Overgrow"}
//
//	ability, err := cache.GetOrCompute(ctx, store, key.String(), policy.TTL(key.Kind),
//		func(ctx context.Context) (*Ability, error) {
//			return fetchAbility(ctx, "overgrow")
//		})
//
// # Cancellation
//
// A waiter whose context is cancelled stops waiting and receives ctx.Err().
// The shared computation keeps running on a context detached from caller
// cancellation, so other waiters still get its result and the cache is
// populated for later callers.
//
// # Metrics
//
//   - dex_cache_hits_total{kind} - Live entries served
//   - dex_cache_misses_total{kind} - Lookups that required a computation
//   - dex_cache_shared_total{kind} - Callers that attached to an in-flight computation
//   - dex_cache_compute_errors_total{kind} - Failed computations
//   - dex_cache_entries - Entries currently held (live or not yet swept)
//
// The store is volatile: its lifetime is the process lifetime and it needs no
// teardown.
package cache
