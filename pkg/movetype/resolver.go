// Package movetype resolves the type tag of a move with a process-wide bound
// on concurrent upstream lookups.
//
// Results are cached per lower-cased move name, including negative results:
// a move that is absent or fails to load is remembered as "no type" for the
// lookup TTL and is not requested again in that window.
package movetype

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// DefaultConcurrency is the upper bound on in-flight move lookups.
const DefaultConcurrency = 6

// MoveSource loads move records.
type MoveSource interface {
	Move(ctx context.Context, name string) (*catalog.Move, error)
}

// Config configures a Resolver.
type Config struct {
	// Source loads move records (required)
	Source MoveSource

	// Store caches resolved types (required)
	Store *cache.Store

	// TTL for resolved and negative results. Zero means the default lookup TTL.
	TTL time.Duration

	// Concurrency bounds simultaneous upstream lookups. Zero means DefaultConcurrency.
	Concurrency int64

	// Logger (optional)
	Logger *zerolog.Logger
}

// Resolver maps move names to type tags. Construct it once per process; its
// semaphore is the global bound.
type Resolver struct {
	source MoveSource
	store  *cache.Store
	ttl    time.Duration
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("move source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.DefaultPolicy().Lookup
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Resolver{
		source: cfg.Source,
		store:  cfg.Store,
		ttl:    ttl,
		sem:    semaphore.NewWeighted(concurrency),
		logger: logging.OrDefault(cfg.Logger, logging.ComponentMoveType),
	}, nil
}

// ResolveType returns the type tag of a move. The boolean is false when the
// type is unknown: the move is absent, its lookup failed, or ctx was
// cancelled while waiting.
func (r *Resolver) ResolveType(ctx context.Context, moveName string) (string, bool) {
	name := cache.NormalizeID(moveName)
	if name == "" {
		return "", false
	}

	key := cache.Key{Kind: cache.KindMoveType, ID: name}.String()
	typeName, err := cache.GetOrCompute(ctx, r.store, key, r.ttl, func(ctx context.Context) (string, error) {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer r.sem.Release(1)

		move, err := r.source.Move(ctx, name)
		if err != nil {
			r.logger.Warn().Err(err).Str("move", name).Msg("Move type unresolved, caching as unknown")
			return "", nil
		}
		return move.Type.Name, nil
	})
	if err != nil {
		return "", false
	}

	return typeName, typeName != ""
}

// ResolveAll resolves the distinct names concurrently. The result maps
// lower-cased move names to their type; unresolved moves are omitted.
func (r *Resolver) ResolveAll(ctx context.Context, moveNames []string) map[string]string {
	seen := make(map[string]bool, len(moveNames))
	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(moveNames))
		g        errgroup.Group
	)

	for _, raw := range moveNames {
		name := cache.NormalizeID(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		g.Go(func() error {
			if typeName, ok := r.ResolveType(ctx, name); ok {
				mu.Lock()
				resolved[name] = typeName
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return resolved
}
