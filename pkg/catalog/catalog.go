// Package catalog resolves upstream catalog records through the shared
// coalescing cache and the retry executor.
//
// Every fetcher follows the same rule: a cached value is returned as is; on
// a miss one upstream request runs per key no matter how many callers ask.
// A 404 yields ErrNotFound, any other non-success status a *StatusError, and
// neither is cached.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/client"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// excludedTypes are type tags the listing never reports.
var excludedTypes = map[string]bool{
	"unknown": true,
	"shadow":  true,
	"stellar": true,
}

// Fetcher is the retrying upstream executor.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, resource string) (*client.Response, error)
}

// Config configures a Catalog.
type Config struct {
	// Fetcher executes upstream requests (required)
	Fetcher Fetcher

	// Store is the shared cache (required)
	Store *cache.Store

	// Policy sets per-kind TTLs. Zero value means cache.DefaultPolicy().
	Policy cache.Policy

	// Logger (optional)
	Logger *zerolog.Logger
}

// Catalog resolves upstream records.
type Catalog struct {
	fetcher Fetcher
	store   *cache.Store
	policy  cache.Policy
	logger  zerolog.Logger
}

// New creates a Catalog.
func New(cfg Config) (*Catalog, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	policy := cfg.Policy
	if policy == (cache.Policy{}) {
		policy = cache.DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache policy: %w", err)
	}

	return &Catalog{
		fetcher: cfg.Fetcher,
		store:   cfg.Store,
		policy:  policy,
		logger:  logging.OrDefault(cfg.Logger, logging.ComponentCatalog),
	}, nil
}

// Store returns the cache the catalog writes to.
func (c *Catalog) Store() *cache.Store {
	return c.store
}

// Policy returns the TTL policy in effect.
func (c *Catalog) Policy() cache.Policy {
	return c.policy
}

// fetch resolves resource into a *T, caching the decoded record under key.
// valid rejects records missing their identity.
func fetch[T any](ctx context.Context, c *Catalog, key cache.Key, resource string, valid func(*T) bool) (*T, error) {
	ttl := c.policy.TTL(key.Kind)

	return cache.GetOrCompute(ctx, c.store, key.String(), ttl, func(ctx context.Context) (*T, error) {
		resp, err := c.fetcher.FetchWithRetry(ctx, resource)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", resource, err)
		}

		if resp.NotFound() {
			return nil, fmt.Errorf("%s: %w", resource, ErrNotFound)
		}
		if !resp.OK() {
			return nil, &StatusError{Resource: resource, StatusCode: resp.StatusCode}
		}

		record := new(T)
		if err := resp.DecodeJSON(record); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", resource, ErrMalformed, err)
		}
		if valid != nil && !valid(record) {
			return nil, fmt.Errorf("%s: %w: missing identity", resource, ErrMalformed)
		}

		c.logger.Debug().
			Str("resource", resource).
			Int("attempts", resp.Attempts).
			Msg("Fetched catalog record")

		return record, nil
	})
}

// Pokemon fetches an entity detail record by id or name.
func (c *Catalog) Pokemon(ctx context.Context, idOrName string) (*Pokemon, error) {
	id := cache.NormalizeID(idOrName)
	if id == "" {
		return nil, fmt.Errorf("empty identifier: %w", ErrNotFound)
	}

	return fetch(ctx, c, cache.Key{Kind: cache.KindEntity, ID: id}, "pokemon/"+url.PathEscape(id),
		func(p *Pokemon) bool { return p.ID > 0 && p.Name != "" })
}

// Ability fetches an ability definition by name.
func (c *Catalog) Ability(ctx context.Context, name string) (*Ability, error) {
	id := cache.NormalizeID(name)
	if id == "" {
		return nil, fmt.Errorf("empty ability name: %w", ErrNotFound)
	}

	return fetch(ctx, c, cache.Key{Kind: cache.KindAbility, ID: id}, "ability/"+url.PathEscape(id),
		func(a *Ability) bool { return a.Name != "" })
}

// Species fetches the species record of an entity.
func (c *Catalog) Species(ctx context.Context, id int) (*Species, error) {
	if id <= 0 {
		return nil, fmt.Errorf("species id %d: %w", id, ErrNotFound)
	}
	sid := strconv.Itoa(id)

	return fetch(ctx, c, cache.Key{Kind: cache.KindSpecies, ID: sid}, "pokemon-species/"+sid,
		func(s *Species) bool { return s.ID > 0 })
}

// EvolutionChain fetches a lineage tree by chain id.
func (c *Catalog) EvolutionChain(ctx context.Context, id int) (*EvolutionChain, error) {
	if id <= 0 {
		return nil, fmt.Errorf("chain id %d: %w", id, ErrNotFound)
	}
	sid := strconv.Itoa(id)

	return fetch(ctx, c, cache.Key{Kind: cache.KindChain, ID: sid}, "evolution-chain/"+sid,
		func(ch *EvolutionChain) bool { return ch.Chain.Species.Name != "" })
}

// Move fetches a move record by name.
func (c *Catalog) Move(ctx context.Context, name string) (*Move, error) {
	id := cache.NormalizeID(name)
	if id == "" {
		return nil, fmt.Errorf("empty move name: %w", ErrNotFound)
	}

	return fetch(ctx, c, cache.Key{Kind: cache.KindMove, ID: id}, "move/"+url.PathEscape(id),
		func(m *Move) bool { return m.Name != "" })
}

// TypeNames returns every type tag except unknown, shadow and stellar,
// sorted by name.
func (c *Catalog) TypeNames(ctx context.Context) ([]string, error) {
	list, err := fetch[NamedList](ctx, c, cache.Key{Kind: cache.KindTypeList}, "type?limit=100", nil)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list.Results))
	for _, r := range list.Results {
		if r.Name == "" || excludedTypes[r.Name] {
			continue
		}
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names, nil
}

// TypeMembers returns the entities holding a type, in upstream order.
func (c *Catalog) TypeMembers(ctx context.Context, typeName string) ([]NamedRef, error) {
	id := cache.NormalizeID(typeName)
	if id == "" {
		return nil, fmt.Errorf("empty type name: %w", ErrNotFound)
	}

	detail, err := fetch(ctx, c, cache.Key{Kind: cache.KindTypeMembers, ID: id}, "type/"+url.PathEscape(id),
		func(t *TypeDetail) bool { return t.Name != "" })
	if err != nil {
		return nil, err
	}

	members := make([]NamedRef, 0, len(detail.Pokemon))
	for _, m := range detail.Pokemon {
		members = append(members, m.Pokemon)
	}
	return members, nil
}

// IDPage returns the ids of the global listing between offset and
// offset+limit, in upstream order.
func (c *Catalog) IDPage(ctx context.Context, offset, limit int) (*IDPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0 (got %d)", limit)
	}

	key := cache.Key{
		Kind: cache.KindIDPage,
		Params: map[string]string{
			"offset": strconv.Itoa(offset),
			"limit":  strconv.Itoa(limit),
		},
	}
	resource := fmt.Sprintf("pokemon?offset=%d&limit=%d", offset, limit)

	return cache.GetOrCompute(ctx, c.store, key.String(), c.policy.TTL(cache.KindIDPage), func(ctx context.Context) (*IDPage, error) {
		list, err := c.listing(ctx, resource)
		if err != nil {
			return nil, err
		}

		page := &IDPage{Total: list.Count, IDs: make([]int, 0, len(list.Results))}
		for _, r := range list.Results {
			if id, ok := r.ID(); ok {
				page.IDs = append(page.IDs, id)
			}
		}
		return page, nil
	})
}

// TotalCount returns the number of entities upstream.
func (c *Catalog) TotalCount(ctx context.Context) (int, error) {
	key := cache.Key{Kind: cache.KindCount, ID: "pokemon"}

	return cache.GetOrCompute(ctx, c.store, key.String(), c.policy.TTL(cache.KindCount), func(ctx context.Context) (int, error) {
		list, err := c.listing(ctx, "pokemon?limit=1")
		if err != nil {
			return 0, err
		}
		return list.Count, nil
	})
}

// Names returns every entity name upstream, sorted. It backs name
// suggestions.
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	key := cache.Key{Kind: cache.KindNames, ID: "pokemon"}

	return cache.GetOrCompute(ctx, c.store, key.String(), c.policy.TTL(cache.KindNames), func(ctx context.Context) ([]string, error) {
		total, err := c.TotalCount(ctx)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			return []string{}, nil
		}

		list, err := c.listing(ctx, fmt.Sprintf("pokemon?offset=0&limit=%d", total))
		if err != nil {
			return nil, err
		}

		names := make([]string, 0, len(list.Results))
		for _, r := range list.Results {
			if r.Name != "" {
				names = append(names, r.Name)
			}
		}
		sort.Strings(names)
		return names, nil
	})
}

// listing fetches a NamedList without caching it; callers cache what they
// derive from it.
func (c *Catalog) listing(ctx context.Context, resource string) (*NamedList, error) {
	resp, err := c.fetcher.FetchWithRetry(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", resource, err)
	}
	if resp.NotFound() {
		return nil, fmt.Errorf("%s: %w", resource, ErrNotFound)
	}
	if !resp.OK() {
		return nil, &StatusError{Resource: resource, StatusCode: resp.StatusCode}
	}

	var list NamedList
	if err := resp.DecodeJSON(&list); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", resource, ErrMalformed, err)
	}
	return &list, nil
}

// IsNotFound reports whether err means the record is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
