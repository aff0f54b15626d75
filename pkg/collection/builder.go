// Package collection builds paged listings of lite composites, globally or
// restricted to one type category.
package collection

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/aggregate"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
	"github.com/Sternrassler/pokedex-client/pkg/pagination"
)

const (
	// DefaultPageSize is the page size when none is configured.
	DefaultPageSize = 20

	// MaxPageSize caps the requested size.
	MaxPageSize = 100
)

// Page is one window of a listing.
type Page struct {
	Items      []*aggregate.Composite `json:"items"`
	Number     int                    `json:"page"`
	Size       int                    `json:"size"`
	TotalCount int                    `json:"totalCount"`
	TotalPages int                    `json:"totalPages"`
}

// Lister resolves id lists.
type Lister interface {
	IDPage(ctx context.Context, offset, limit int) (*catalog.IDPage, error)
	TotalCount(ctx context.Context) (int, error)
	TypeMembers(ctx context.Context, typeName string) ([]catalog.NamedRef, error)
}

// Hydrator turns an id into a composite.
type Hydrator interface {
	GetComposite(ctx context.Context, idOrName string, variant aggregate.Variant) (*aggregate.Composite, error)
}

// Config configures a Builder.
type Config struct {
	Lister   Lister
	Hydrator Hydrator

	// PageSize applies when a request asks for a size <= 0.
	// Zero means DefaultPageSize.
	PageSize int

	// Hydration configures the worker pool. Zero value means pagination.DefaultConfig().
	Hydration pagination.Config

	Logger *zerolog.Logger
}

// Builder assembles pages.
type Builder struct {
	lister   Lister
	pageSize int
	fetcher  *pagination.BatchFetcher[int, *aggregate.Composite]
	logger   zerolog.Logger
}

// New creates a Builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Lister == nil {
		return nil, fmt.Errorf("lister is required")
	}
	if cfg.Hydrator == nil {
		return nil, fmt.Errorf("hydrator is required")
	}

	logger := logging.OrDefault(cfg.Logger, logging.ComponentCollection)
	hydration := cfg.Hydration
	if hydration.Logger == nil {
		hydration.Logger = &logger
	}

	hydrator := cfg.Hydrator
	fetcher := pagination.NewBatchFetcher(func(ctx context.Context, id int) (*aggregate.Composite, error) {
		return hydrator.GetComposite(ctx, strconv.Itoa(id), aggregate.VariantLite)
	}, hydration)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Builder{
		lister:   cfg.Lister,
		pageSize: min(pageSize, MaxPageSize),
		fetcher:  fetcher,
		logger:   logger,
	}, nil
}

// Page returns the given page of the global listing in ascending id order.
func (b *Builder) Page(ctx context.Context, number, size int) (*Page, error) {
	size = b.normalizeSize(size)

	total, err := b.lister.TotalCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("total count: %w", err)
	}

	page := window(number, size, total)
	if total == 0 {
		page.Items = []*aggregate.Composite{}
		return page, nil
	}

	ids, err := b.lister.IDPage(ctx, (page.Number-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("id page %d: %w", page.Number, err)
	}

	items, err := b.hydrate(ctx, ids.IDs)
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

// PageByCategory returns the given page of the members of one type, taken
// in upstream membership order and then sorted by id.
func (b *Builder) PageByCategory(ctx context.Context, category string, number, size int) (*Page, error) {
	size = b.normalizeSize(size)

	members, err := b.lister.TypeMembers(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("category %q: %w", category, err)
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		if id, ok := m.ID(); ok {
			ids = append(ids, id)
		}
	}

	page := window(number, size, len(ids))
	start := min((page.Number-1)*size, len(ids))
	end := min(start+size, len(ids))

	items, err := b.hydrate(ctx, ids[start:end])
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

// hydrate resolves lite composites for ids and sorts them by id. Ids that
// fail or are absent are dropped.
func (b *Builder) hydrate(ctx context.Context, ids []int) ([]*aggregate.Composite, error) {
	byID, err := b.fetcher.FetchAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	items := make([]*aggregate.Composite, 0, len(byID))
	for _, c := range byID {
		if c != nil {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	if dropped := len(ids) - len(items); dropped > 0 {
		b.logger.Debug().Int("requested", len(ids)).Int("dropped", dropped).Msg("Page hydrated with gaps")
	}
	return items, nil
}

func (b *Builder) normalizeSize(size int) int {
	if size <= 0 {
		return b.pageSize
	}
	return min(size, MaxPageSize)
}

// window clamps number into [1, totalPages] and fills the page metadata.
// An empty listing has one (empty) page.
func window(number, size, total int) *Page {
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	number = max(1, min(number, totalPages))

	return &Page{
		Number:     number,
		Size:       size,
		TotalCount: total,
		TotalPages: totalPages,
	}
}
