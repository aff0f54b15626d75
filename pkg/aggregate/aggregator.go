// Package aggregate assembles composite entity records from the base record
// and its dependent sub-resources.
//
// Only the base record is required. Ability definitions, species text,
// lineage and move types are fetched concurrently and each degrades to
// empty on failure, so a partially available upstream still yields a
// usable composite. A composite degraded by a transient failure is cached
// for the short DegradedTTL only.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/pokedex-client/pkg/cache"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/evolution"
	"github.com/Sternrassler/pokedex-client/pkg/logging"
)

// ErrNotFound is returned when the base record is absent.
var ErrNotFound = catalog.ErrNotFound

// levelUpMethod is the learn method sorted ahead of all others.
const levelUpMethod = "level-up"

// Source loads the records a composite is built from.
type Source interface {
	Pokemon(ctx context.Context, idOrName string) (*catalog.Pokemon, error)
	Ability(ctx context.Context, name string) (*catalog.Ability, error)
	Species(ctx context.Context, id int) (*catalog.Species, error)
}

// LineageWalker resolves evolution lineages.
type LineageWalker interface {
	Lineage(ctx context.Context, entityID int) ([]evolution.Summary, error)
}

// TypeResolver resolves move types in bulk.
type TypeResolver interface {
	ResolveAll(ctx context.Context, moveNames []string) map[string]string
}

// Config configures an Aggregator.
type Config struct {
	Source    Source
	Lineage   LineageWalker
	MoveTypes TypeResolver
	Store     *cache.Store

	// TTL of composites. Zero means the default detail TTL.
	TTL time.Duration

	// DegradedTTL applies to composites missing a section because of a
	// transient sub-fetch failure. Zero means the default list TTL.
	DegradedTTL time.Duration

	Logger *zerolog.Logger
}

// Aggregator builds composites.
type Aggregator struct {
	source      Source
	lineage     LineageWalker
	moveTypes   TypeResolver
	store       *cache.Store
	ttl         time.Duration
	degradedTTL time.Duration
	logger      zerolog.Logger
}

// New creates an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("source is required")
	case cfg.Lineage == nil:
		return nil, fmt.Errorf("lineage walker is required")
	case cfg.MoveTypes == nil:
		return nil, fmt.Errorf("move type resolver is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("cache store is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.DefaultPolicy().Detail
	}
	degradedTTL := cfg.DegradedTTL
	if degradedTTL <= 0 {
		degradedTTL = cache.DefaultPolicy().List
	}

	return &Aggregator{
		source:      cfg.Source,
		lineage:     cfg.Lineage,
		moveTypes:   cfg.MoveTypes,
		store:       cfg.Store,
		ttl:         ttl,
		degradedTTL: min(degradedTTL, ttl),
		logger:      logging.OrDefault(cfg.Logger, logging.ComponentAggregate),
	}, nil
}

// GetComposite returns the composite for idOrName at the given variant.
//
// Any base record failure yields an absent composite: the error matches
// ErrNotFound with errors.Is and still wraps the upstream cause (for
// example *catalog.StatusError) for errors.As. Only the caller's own
// cancellation or deadline is returned without ErrNotFound.
func (a *Aggregator) GetComposite(ctx context.Context, idOrName string, variant Variant) (*Composite, error) {
	if variant != VariantFull && variant != VariantLite {
		return nil, fmt.Errorf("unknown variant %q", variant)
	}

	base, err := a.source.Pokemon(ctx, idOrName)
	switch {
	case err == nil:
	case ctx.Err() != nil, catalog.IsNotFound(err):
		return nil, fmt.Errorf("entity %q: %w", idOrName, err)
	default:
		return nil, fmt.Errorf("entity %q: %w: %w", idOrName, ErrNotFound, err)
	}

	key := cache.Key{Kind: cache.KindComposite, ID: strconv.Itoa(base.ID), Variant: string(variant)}.String()
	return cache.GetOrComputeTTL(ctx, a.store, key, func(ctx context.Context) (*Composite, time.Duration, error) {
		composite, degraded := a.build(ctx, base, variant)
		if degraded {
			return composite, a.degradedTTL, nil
		}
		return composite, a.ttl, nil
	})
}

// build assembles a composite from base. It never fails; sub-fetch
// failures leave their section empty. degraded reports a transient
// failure, as opposed to a sub-resource the upstream does not have.
func (a *Aggregator) build(ctx context.Context, base *catalog.Pokemon, variant Variant) (composite *Composite, degraded bool) {
	start := time.Now()
	composite = skeleton(base, variant)

	speciesID := base.ID
	if id, ok := base.Species.ID(); ok {
		speciesID = id
	}

	var (
		g         errgroup.Group
		details   = make([]*AbilityDetail, len(composite.Abilities))
		flavors   []FlavorText
		lineage   []evolution.Summary
		moveTypes map[string]string
		mu        sync.Mutex
		sections  []string
	)

	markDegraded := func(section string, err error) {
		transient := !catalog.IsNotFound(err)
		mu.Lock()
		sections = append(sections, section)
		degraded = degraded || transient
		mu.Unlock()
		a.logger.Warn().Err(err).Int("id", base.ID).Str("section", section).Bool("transient", transient).
			Msg("Sub-fetch failed, section degraded")
	}

	for i, name := range composite.Abilities {
		g.Go(func() error {
			ability, err := a.source.Ability(ctx, name)
			if err != nil {
				markDegraded("ability:"+name, err)
				return nil
			}
			detail := &AbilityDetail{Name: name}
			if effect, ok := ability.EnglishEffect(); ok {
				if effect.ShortEffect != "" {
					detail.ShortEffect = &effect.ShortEffect
				}
				if effect.Effect != "" {
					detail.Effect = &effect.Effect
				}
			}
			details[i] = detail
			return nil
		})
	}

	g.Go(func() error {
		species, err := a.source.Species(ctx, speciesID)
		if err != nil {
			markDegraded("flavor-text", err)
			return nil
		}
		flavors = englishFlavorTexts(species.FlavorTextEntries)
		return nil
	})

	g.Go(func() error {
		walked, err := a.lineage.Lineage(ctx, speciesID)
		if err != nil {
			markDegraded("lineage", err)
			return nil
		}
		lineage = walked
		return nil
	})

	if variant == VariantFull {
		g.Go(func() error {
			moveTypes = a.moveTypes.ResolveAll(ctx, moveNames(composite.Moves))
			return nil
		})
	}

	_ = g.Wait()

	for _, d := range details {
		if d != nil {
			composite.AbilityDetails = append(composite.AbilityDetails, *d)
		}
	}
	if flavors != nil {
		composite.FlavorTexts = flavors
	}
	if lineage != nil {
		composite.Evolution = lineage
	}
	for i := range composite.Moves {
		composite.Moves[i].Type = moveTypes[strings.ToLower(composite.Moves[i].Name)]
	}
	SortMoves(composite.Moves)

	a.logger.Debug().
		Int("id", composite.ID).
		Str("variant", string(variant)).
		Int("moves", len(composite.Moves)).
		Strs("degraded", sections).
		Bool("transient", degraded).
		Dur("duration", time.Since(start)).
		Msg("Composite assembled")

	return composite, degraded
}

// skeleton extracts everything that needs no further fetch.
func skeleton(base *catalog.Pokemon, variant Variant) *Composite {
	c := &Composite{
		ID:             base.ID,
		Name:           base.Name,
		ImageURL:       imageURL(base.Sprites),
		Height:         copyInt(base.Height),
		Weight:         copyInt(base.Weight),
		Types:          make([]string, 0, len(base.Types)),
		Abilities:      make([]string, 0, len(base.Abilities)),
		AbilityDetails: []AbilityDetail{},
		FlavorTexts:    []FlavorText{},
		Moves:          make([]MoveLearn, 0, len(base.Moves)),
		Evolution:      []evolution.Summary{},
		Variant:        variant,
	}

	typeSlots := append([]catalog.TypeSlot(nil), base.Types...)
	sort.SliceStable(typeSlots, func(i, j int) bool { return typeSlots[i].Slot < typeSlots[j].Slot })
	for _, t := range typeSlots {
		if t.Type.Name != "" {
			c.Types = append(c.Types, t.Type.Name)
		}
	}

	for _, s := range base.Stats {
		c.Stats.set(s.Stat.Name, s.BaseStat)
	}

	seen := make(map[string]bool, len(base.Abilities))
	for _, a := range base.Abilities {
		if a.Ability.Name == "" || seen[a.Ability.Name] {
			continue
		}
		seen[a.Ability.Name] = true
		c.Abilities = append(c.Abilities, a.Ability.Name)
	}

	for _, m := range base.Moves {
		for _, d := range m.VersionGroupDetails {
			c.Moves = append(c.Moves, MoveLearn{
				Name:         m.Move.Name,
				Level:        d.LevelLearnedAt,
				Method:       d.MoveLearnMethod.Name,
				VersionGroup: d.VersionGroup.Name,
			})
		}
	}

	return c
}

// imageURL prefers official artwork, then the default front sprite.
func imageURL(s catalog.Sprites) string {
	if u := s.Other.OfficialArtwork.FrontDefault; u != nil && *u != "" {
		return *u
	}
	if s.FrontDefault != nil {
		return *s.FrontDefault
	}
	return ""
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func moveNames(rows []MoveLearn) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return names
}

// SortMoves orders rows: level-up first, then by level ascending with 0
// last, then by name, then by version group.
func SortMoves(rows []MoveLearn) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]

		aLevelUp, bLevelUp := a.Method == levelUpMethod, b.Method == levelUpMethod
		if aLevelUp != bLevelUp {
			return aLevelUp
		}

		if a.Level != b.Level {
			if a.Level == 0 {
				return false
			}
			if b.Level == 0 {
				return true
			}
			return a.Level < b.Level
		}

		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.VersionGroup < b.VersionGroup
	})
}

var flavorReplacer = strings.NewReplacer(
	"\u00ad\n", "",
	"\u00ad", "",
	"\f", " ",
	"\n", " ",
	"\r", " ",
)

// englishFlavorTexts keeps English entries, normalizes whitespace, drops
// (version, text) duplicates and caps the result at MaxFlavorTexts.
func englishFlavorTexts(entries []catalog.FlavorTextEntry) []FlavorText {
	out := make([]FlavorText, 0, min(len(entries), MaxFlavorTexts))
	seen := make(map[FlavorText]bool)

	for _, e := range entries {
		if e.Language.Name != "en" {
			continue
		}
		text := strings.Join(strings.Fields(flavorReplacer.Replace(e.FlavorText)), " ")
		if text == "" {
			continue
		}

		ft := FlavorText{Version: e.Version.Name, Text: text}
		if seen[ft] {
			continue
		}
		seen[ft] = true

		out = append(out, ft)
		if len(out) == MaxFlavorTexts {
			break
		}
	}
	return out
}
