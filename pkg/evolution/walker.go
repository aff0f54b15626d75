// Package evolution flattens an entity's evolution chain into an ordered
// lineage.
package evolution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// DefaultArtworkURLTemplate renders an entity id into its artwork URL.
const DefaultArtworkURLTemplate = "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/other/official-artwork/%d.png"

// Summary is one member of a lineage.
type Summary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	ArtworkURL string `json:"artworkUrl"`
}

// Source loads species and chain records.
type Source interface {
	Species(ctx context.Context, id int) (*catalog.Species, error)
	EvolutionChain(ctx context.Context, id int) (*catalog.EvolutionChain, error)
}

// Config configures a Walker.
type Config struct {
	Source Source
	Store  *cache.Store

	// TTL of a computed lineage. Zero means the default lookup TTL.
	TTL time.Duration

	// ArtworkURLTemplate is a fmt template taking the entity id.
	// Empty means DefaultArtworkURLTemplate.
	ArtworkURLTemplate string

	Logger *zerolog.Logger
}

// Walker resolves lineages.
type Walker struct {
	source   Source
	store    *cache.Store
	ttl      time.Duration
	template string
	logger   zerolog.Logger
}

// New creates a Walker.
func New(cfg Config) (*Walker, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.DefaultPolicy().Lookup
	}
	template := cfg.ArtworkURLTemplate
	if template == "" {
		template = DefaultArtworkURLTemplate
	}

	return &Walker{
		source:   cfg.Source,
		store:    cfg.Store,
		ttl:      ttl,
		template: template,
		logger:   logging.OrDefault(cfg.Logger, logging.ComponentEvolution),
	}, nil
}

// ArtworkURL returns the artwork URL for an entity id.
func (w *Walker) ArtworkURL(id int) string {
	return fmt.Sprintf(w.template, id)
}

// Walk returns the lineage containing entityID: a pre-order traversal of
// its chain (node first, then children in listed order), keeping the first
// occurrence of each id. Any failure yields an empty lineage, which is not
// cached.
func (w *Walker) Walk(ctx context.Context, entityID int) []Summary {
	lineage, err := w.Lineage(ctx, entityID)
	if err != nil {
		return []Summary{}
	}
	return lineage
}

// Lineage is Walk with the failure reported. A species without a chain
// reference is ErrMalformed, which matches catalog.ErrNotFound.
func (w *Walker) Lineage(ctx context.Context, entityID int) ([]Summary, error) {
	key := cache.Key{Kind: cache.KindLineage, ID: strconv.Itoa(entityID)}.String()

	lineage, err := cache.GetOrCompute(ctx, w.store, key, w.ttl, func(ctx context.Context) ([]Summary, error) {
		species, err := w.source.Species(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("species %d: %w", entityID, err)
		}

		chainID, ok := species.ChainID()
		if !ok {
			return nil, fmt.Errorf("species %d: no evolution chain reference: %w", entityID, catalog.ErrMalformed)
		}

		chain, err := w.source.EvolutionChain(ctx, chainID)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", chainID, err)
		}

		return w.Flatten(chain.Chain), nil
	})
	if err != nil {
		w.logger.Warn().Err(err).Int("id", entityID).Msg("Lineage unavailable")
		return nil, err
	}

	return lineage, nil
}

// Flatten walks a chain tree in pre-order and deduplicates by id. A node
// whose species reference carries no id is skipped but its children are
// still visited.
func (w *Walker) Flatten(root catalog.ChainLink) []Summary {
	seen := make(map[int]bool)
	lineage := make([]Summary, 0, 4)

	var visit func(node catalog.ChainLink)
	visit = func(node catalog.ChainLink) {
		if id, ok := node.Species.ID(); ok && !seen[id] {
			seen[id] = true
			lineage = append(lineage, Summary{
				ID:         id,
				Name:       node.Species.Name,
				ArtworkURL: w.ArtworkURL(id),
			})
		}
		for _, child := range node.EvolvesTo {
			visit(child)
		}
	}
	visit(root)

	return lineage
}
