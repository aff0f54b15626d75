package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

var (
	// ItemsFetched tracks hydrated items by outcome
	ItemsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dex_pagination_items_total",
			Help: "Total number of items hydrated by the batch fetcher",
		},
		[]string{"result"}, // "ok", "error"
	)

	// BatchDuration tracks the wall time of one batch
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dex_pagination_batch_duration_seconds",
			Help:    "Duration of batch hydration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel item fetches
	MaxConcurrency int

	// Timeout per item fetch
	Timeout time.Duration

	// Logger (optional)
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration: 8 workers, 30s per item.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		Timeout:        30 * time.Second,
	}
}

// FetchFunc fetches a single item.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Result represents the outcome of fetching a single item
type Result[K comparable, V any] struct {
	Key   K
	Value V
	Error error
}

// BatchFetcher fetches many items in parallel with a bounded worker pool.
type BatchFetcher[K comparable, V any] struct {
	fetch  FetchFunc[K, V]
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[K comparable, V any](fetch func(ctx context.Context, key K) (V, error), config Config) *BatchFetcher[K, V] {
	if fetch == nil {
		panic("pagination: fetch func cannot be nil")
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &BatchFetcher[K, V]{
		fetch:  fetch,
		config: config,
		logger: logging.OrDefault(config.Logger, logging.ComponentPagination),
	}
}

// FetchAll fetches every key and returns the successful values keyed by
// input key. Failed items are logged and omitted. Duplicate keys are
// fetched once. The error is non-nil only when ctx ended before all items
// were attempted; the partial results are returned with it.
func (bf *BatchFetcher[K, V]) FetchAll(ctx context.Context, keys []K) (map[K]V, error) {
	start := time.Now()
	defer func() { BatchDuration.Observe(time.Since(start).Seconds()) }()

	unique := make([]K, 0, len(keys))
	seen := make(map[K]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	results := make(map[K]V, len(unique))
	if len(unique) == 0 {
		return results, nil
	}

	workers := min(bf.config.MaxConcurrency, len(unique))
	queue := make(chan K, len(unique))
	for _, k := range unique {
		queue <- k
	}
	close(queue)

	itemResults := make(chan Result[K, V], len(unique))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, queue, itemResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(itemResults)
	}()

	attempted, failed := 0, 0
	for result := range itemResults {
		attempted++
		if result.Error != nil {
			failed++
			ItemsFetched.WithLabelValues("error").Inc()
			bf.logger.Warn().
				Err(result.Error).
				Interface("key", result.Key).
				Msg("Item fetch failed")
			continue
		}

		ItemsFetched.WithLabelValues("ok").Inc()
		results[result.Key] = result.Value
	}

	if attempted < len(unique) {
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		bf.logger.Warn().
			Int("attempted", attempted).
			Int("total", len(unique)).
			Msg("Batch interrupted - returning partial results")
		return results, fmt.Errorf("batch interrupted (partial data: %d/%d items): %w", len(results), len(unique), err)
	}

	bf.logger.Debug().
		Int("items", len(results)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results, nil
}

// worker processes keys from the queue
func (bf *BatchFetcher[K, V]) worker(ctx context.Context, queue <-chan K, results chan<- Result[K, V], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for key := range queue {
		select {
		case <-ctx.Done():
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("items_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		itemCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		value, err := bf.fetch(itemCtx, key)
		cancel()

		// Buffered to len(keys); never blocks
		results <- Result[K, V]{Key: key, Value: value, Error: err}
		processed++
	}
}
