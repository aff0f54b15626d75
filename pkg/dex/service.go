// Package dex wires the catalog client, caches and aggregation services into
// a single Service.
//
// Example usage:
//
//	svc, err := dex.New(dex.DefaultConfig("my-app/1.0 (contact@example.com)"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	c, err := svc.LookupByName(ctx, "pikachu")
package dex

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/aggregate"
	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/client"
	"github.com/Sternrassler/pokedex-client/pkg/collection"
	"github.com/Sternrassler/pokedex-client/pkg/evolution"
	"github.com/Sternrassler/pokedex-client/pkg/httpcache"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
	"github.com/Sternrassler/pokedex-client/pkg/movetype"
	"github.com/Sternrassler/pokedex-client/pkg/pagination"
	"github.com/Sternrassler/pokedex-client/pkg/ratelimit"
)

// DefaultSuggestions is the suggestion cap when limit <= 0.
const DefaultSuggestions = 10

// ErrNotFound reports an absent entity or category.
var ErrNotFound = catalog.ErrNotFound

// Config configures a Service.
type Config struct {
	// Client configures the upstream executor.
	Client client.Config

	// Policy sets per-kind TTLs. Zero value means cache.DefaultPolicy().
	Policy cache.Policy

	// MoveTypeConcurrency bounds move-type lookups. Zero means movetype.DefaultConcurrency.
	MoveTypeConcurrency int64

	// PageSize is the default page size. Zero means collection.DefaultPageSize.
	PageSize int

	// Hydration configures page hydration. Zero value means pagination.DefaultConfig().
	Hydration pagination.Config

	// ArtworkURLTemplate overrides evolution.DefaultArtworkURLTemplate.
	ArtworkURLTemplate string

	// RedisAddr enables the Redis-backed HTTP response cache in front of
	// the upstream and shares throttling cool-downs through Redis. Empty
	// disables both; cool-downs then stay process-local.
	RedisAddr string

	// RedisDB selects the Redis database.
	RedisDB int

	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration against the public upstream.
func DefaultConfig(userAgent string) Config {
	return Config{
		Client: client.DefaultConfig(userAgent),
		Policy: cache.DefaultPolicy(),
	}
}

// Service is the collaborator facade. Construct it once and share it.
type Service struct {
	store      *cache.Store
	catalog    *catalog.Catalog
	aggregator *aggregate.Aggregator
	pages      *collection.Builder
	redis      *redis.Client
	logger     zerolog.Logger
}

// New constructs every service object.
func New(cfg Config) (*Service, error) {
	logger := logging.OrDefault(cfg.Logger, logging.ComponentDex)

	var rdb *redis.Client
	clientCfg := cfg.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

		var next http.RoundTripper
		if hc, ok := clientCfg.HTTPClient.(*http.Client); ok && hc.Transport != nil {
			next = hc.Transport
		}
		transport := httpcache.NewTransport(
			httpcache.NewManager(rdb, httpcache.DefaultRevalidateWindow),
			next,
			cfg.Logger,
		)
		clientCfg.HTTPClient = &http.Client{Transport: transport}

		logger.Info().Str("redis", cfg.RedisAddr).Msg("HTTP response cache enabled")
	}

	if clientCfg.Limiter == nil {
		clientCfg.Limiter = ratelimit.NewTracker(rdb, cfg.Logger)
	}

	svc, err := build(cfg, clientCfg, logger)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	svc.redis = rdb
	return svc, nil
}

func build(cfg Config, clientCfg client.Config, logger zerolog.Logger) (*Service, error) {
	upstream, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	store := cache.NewStore(cache.WithLogger(logging.OrDefault(cfg.Logger, logging.ComponentCache)))

	cat, err := catalog.New(catalog.Config{
		Fetcher: upstream,
		Store:   store,
		Policy:  cfg.Policy,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	policy := cat.Policy()

	moveTypes, err := movetype.New(movetype.Config{
		Source:      cat,
		Store:       store,
		TTL:         policy.Lookup,
		Concurrency: cfg.MoveTypeConcurrency,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("move types: %w", err)
	}

	lineage, err := evolution.New(evolution.Config{
		Source:             cat,
		Store:              store,
		TTL:                policy.Lookup,
		ArtworkURLTemplate: cfg.ArtworkURLTemplate,
		Logger:             cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("evolution: %w", err)
	}

	agg, err := aggregate.New(aggregate.Config{
		Source:      cat,
		Lineage:     lineage,
		MoveTypes:   moveTypes,
		Store:       store,
		TTL:         policy.Detail,
		DegradedTTL: policy.List,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	pages, err := collection.New(collection.Config{
		Lister:    cat,
		Hydrator:  agg,
		PageSize:  cfg.PageSize,
		Hydration: cfg.Hydration,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}

	return &Service{
		store:      store,
		catalog:    cat,
		aggregator: agg,
		pages:      pages,
		logger:     logger,
	}, nil
}

// LookupByName returns the full composite for a name or id.
func (s *Service) LookupByName(ctx context.Context, name string) (*aggregate.Composite, error) {
	return s.aggregator.GetComposite(ctx, name, aggregate.VariantFull)
}

// LookupByType returns the members of a type sorted by id. Members whose
// reference carries no id are left out.
func (s *Service) LookupByType(ctx context.Context, typeName string) ([]catalog.NamedRef, error) {
	members, err := s.catalog.TypeMembers(ctx, typeName)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		id  int
		ref catalog.NamedRef
	}
	rows := make([]keyed, 0, len(members))
	for _, m := range members {
		if id, ok := m.ID(); ok {
			rows = append(rows, keyed{id: id, ref: m})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	out := make([]catalog.NamedRef, len(rows))
	for i, r := range rows {
		out[i] = r.ref
	}
	return out, nil
}

// GetComposite returns the composite for idOrName at variant.
func (s *Service) GetComposite(ctx context.Context, idOrName string, variant aggregate.Variant) (*aggregate.Composite, error) {
	return s.aggregator.GetComposite(ctx, idOrName, variant)
}

// GetPage returns a page of the global listing.
func (s *Service) GetPage(ctx context.Context, page, size int) (*collection.Page, error) {
	return s.pages.Page(ctx, page, size)
}

// GetPageByCategory returns a page of the members of one type.
func (s *Service) GetPageByCategory(ctx context.Context, category string, page, size int) (*collection.Page, error) {
	return s.pages.PageByCategory(ctx, category, page, size)
}

// GetTotalCount returns the number of entities upstream.
func (s *Service) GetTotalCount(ctx context.Context) (int, error) {
	return s.catalog.TotalCount(ctx)
}

// GetCategoryList returns the type tags, sorted.
func (s *Service) GetCategoryList(ctx context.Context) ([]string, error) {
	return s.catalog.TypeNames(ctx)
}

// SuggestNames returns up to limit names starting with prefix, case
// insensitive, sorted. An empty prefix yields no suggestions.
func (s *Service) SuggestNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestions
	}

	names, err := s.catalog.Names(ctx)
	if err != nil {
		return nil, err
	}

	// names is sorted; matches form one contiguous run
	start := sort.SearchStrings(names, prefix)
	out := make([]string, 0, limit)
	for _, name := range names[start:] {
		if !strings.HasPrefix(name, prefix) || len(out) == limit {
			break
		}
		out = append(out, name)
	}
	return out, nil
}

// Ping checks the optional Redis backend.
func (s *Service) Ping(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx).Err()
}

// CacheLen returns the number of in-process cache entries.
func (s *Service) CacheLen() int {
	return s.store.Len()
}

// PurgeCache drops every in-process cache entry and returns how many were
// held. The Redis response cache, if any, is left alone.
func (s *Service) PurgeCache() int {
	n := s.store.Len()
	s.store.Purge()
	s.logger.Info().Int("entries", n).Msg("In-process cache purged")
	return n
}

// Close releases the Redis connection when one is configured.
func (s *Service) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}
