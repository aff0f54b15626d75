package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/pokedex-client/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrTypeMismatch indicates a key holds a value of a different type than the
// caller asked for. It points at two resource kinds sharing a key.
var ErrTypeMismatch = errors.New("cache value type mismatch")

// Store is the in-process coalescing TTL cache. It is safe for concurrent
// use; construct one per process and share it by reference.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// flights tracks in-flight computations per key. Unrelated keys never
	// wait on each other.
	flights singleflight.Group

	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for cache events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
		logger:  logging.NewLogger(logging.ComponentCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.IsExpiredAt(s.now()) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key for ttl, replacing any previous entry.
// A non-positive ttl stores nothing.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: s.now().Add(ttl),
	}

	s.mu.Lock()
	if _, exists := s.entries[key]; !exists {
		CacheEntries.Inc()
	}
	s.entries[key] = entry
	s.mu.Unlock()
}

// Purge drops every entry. In-flight computations are not affected.
func (s *Store) Purge() {
	s.mu.Lock()
	CacheEntries.Sub(float64(len(s.entries)))
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
}

// Len returns the number of entries held, including expired entries that
// have not been overwritten yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetOrCompute returns the live value under key, or runs factory to compute
// it. Concurrent callers missing on the same key share one factory call and
// receive the same value or error. A successful result is stored for ttl; a
// failure is returned to every waiter and leaves no entry behind.
//
// Cancelling ctx detaches only this caller. The factory runs with a context
// that keeps ctx's values but ignores its cancellation, so the shared
// computation completes for the remaining waiters and later callers.
func GetOrCompute[T any](ctx context.Context, s *Store, key string, ttl time.Duration, factory func(context.Context) (T, error)) (T, error) {
	return GetOrComputeTTL(ctx, s, key, func(ctx context.Context) (T, time.Duration, error) {
		value, err := factory(ctx)
		return value, ttl, err
	})
}

// GetOrComputeTTL is GetOrCompute with the ttl chosen by the factory from
// the computed value. A non-positive ttl hands the value to every waiter
// without storing it.
func GetOrComputeTTL[T any](ctx context.Context, s *Store, key string, factory func(context.Context) (T, time.Duration, error)) (T, error) {
	var zero T
	kind := kindOf(key)

	if value, ok := s.Get(key); ok {
		typed, ok := value.(T)
		if !ok {
			return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, value)
		}
		CacheHits.WithLabelValues(kind).Inc()
		s.logger.Debug().Str("key", key).Msg("Cache hit")
		return typed, nil
	}

	CacheMisses.WithLabelValues(kind).Inc()

	computeCtx := context.WithoutCancel(ctx)
	results := s.flights.DoChan(key, func() (any, error) {
		// Another flight may have stored the key between our read and now.
		if value, ok := s.Get(key); ok {
			return value, nil
		}

		start := time.Now()
		value, ttl, err := factory(computeCtx)
		if err != nil {
			CacheComputeErrors.WithLabelValues(kind).Inc()
			s.logger.Debug().Err(err).Str("key", key).Msg("Cache compute failed")
			return nil, err
		}

		s.Set(key, value, ttl)
		s.logger.Debug().
			Str("key", key).
			Dur("ttl", ttl).
			Dur("duration", time.Since(start)).
			Msg("Cached computed value")
		return value, nil
	})

	select {
	case <-ctx.Done():
		s.logger.Debug().Str("key", key).Msg("Waiter detached from in-flight computation")
		return zero, ctx.Err()
	case res := <-results:
		if res.Shared {
			CacheShared.WithLabelValues(kind).Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Val == nil {
			return zero, nil
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("%w: key %q holds %T", ErrTypeMismatch, key, res.Val)
		}
		return typed, nil
	}
}
