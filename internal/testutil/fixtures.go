package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// resourceURL builds an upstream-style resource URL such as
// https://pokeapi.co/api/v2/pokemon/25/.
func resourceURL(kind string, id int) string {
	return fmt.Sprintf("https://pokeapi.co/api/v2/%s/%d/", kind, id)
}

func named(name, url string) map[string]any {
	return map[string]any{"name": name, "url": url}
}

// NamedID is a (name, id) pair used by listing fixtures.
type NamedID struct {
	ID   int
	Name string
}

// MoveFixture is one learnable move of a PokemonFixture.
type MoveFixture struct {
	Name         string
	Method       string
	Level        int
	VersionGroup string
}

// PokemonFixture describes an entity detail record.
type PokemonFixture struct {
	ID        int
	Name      string
	Height    int
	Weight    int
	Types     []string
	Abilities []string
	Stats     map[string]int
	Moves     []MoveFixture
	Artwork   string
	Sprite    string
}

// Body renders the fixture in the upstream JSON shape.
func (p PokemonFixture) Body() map[string]any {
	types := make([]any, 0, len(p.Types))
	for i, t := range p.Types {
		types = append(types, map[string]any{"slot": i + 1, "type": named(t, "")})
	}

	abilities := make([]any, 0, len(p.Abilities))
	for i, a := range p.Abilities {
		abilities = append(abilities, map[string]any{
			"slot":      i + 1,
			"is_hidden": false,
			"ability":   named(a, fmt.Sprintf("https://pokeapi.co/api/v2/ability/%s/", a)),
		})
	}

	stats := make([]any, 0, len(p.Stats))
	for name, value := range p.Stats {
		stats = append(stats, map[string]any{"base_stat": value, "effort": 0, "stat": named(name, "")})
	}

	moves := make([]any, 0, len(p.Moves))
	for _, m := range p.Moves {
		moves = append(moves, map[string]any{
			"move": named(m.Name, fmt.Sprintf("https://pokeapi.co/api/v2/move/%s/", m.Name)),
			"version_group_details": []any{map[string]any{
				"level_learned_at":  m.Level,
				"move_learn_method": named(m.Method, ""),
				"version_group":     named(m.VersionGroup, ""),
			}},
		})
	}

	sprites := map[string]any{"front_default": nilIfEmpty(p.Sprite)}
	sprites["other"] = map[string]any{
		"official-artwork": map[string]any{"front_default": nilIfEmpty(p.Artwork)},
	}

	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"height":    p.Height,
		"weight":    p.Weight,
		"types":     types,
		"abilities": abilities,
		"stats":     stats,
		"moves":     moves,
		"sprites":   sprites,
		"species":   named(p.Name, resourceURL("pokemon-species", p.ID)),
	}
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RegisterPokemon serves the fixture under both its id and its name.
func (m *MockCatalog) RegisterPokemon(p PokemonFixture) {
	body := p.Body()
	m.SetJSON("pokemon/"+strconv.Itoa(p.ID), body)
	m.SetJSON("pokemon/"+p.Name, body)
}

// FlavorFixture is one species flavor text entry.
type FlavorFixture struct {
	Language string
	Version  string
	Text     string
}

// SpeciesFixture renders a species record pointing at evolution chain chainID.
func SpeciesFixture(id int, name string, chainID int, flavors ...FlavorFixture) map[string]any {
	entries := make([]any, 0, len(flavors))
	for _, f := range flavors {
		entries = append(entries, map[string]any{
			"flavor_text": f.Text,
			"language":    named(f.Language, ""),
			"version":     named(f.Version, ""),
		})
	}
	return map[string]any{
		"id":                  id,
		"name":                name,
		"flavor_text_entries": entries,
		"evolution_chain":     map[string]any{"url": resourceURL("evolution-chain", chainID)},
	}
}

// ChainNode is a node of an evolution chain fixture.
type ChainNode struct {
	ID        int
	Name      string
	EvolvesTo []ChainNode
}

func (n ChainNode) body() map[string]any {
	children := make([]any, 0, len(n.EvolvesTo))
	for _, c := range n.EvolvesTo {
		children = append(children, c.body())
	}
	return map[string]any{
		"species":    named(n.Name, resourceURL("pokemon-species", n.ID)),
		"evolves_to": children,
	}
}

// ChainFixture renders an evolution chain record.
func ChainFixture(id int, root ChainNode) map[string]any {
	return map[string]any{"id": id, "chain": root.body()}
}

// AbilityFixture renders an ability record with one English effect entry.
func AbilityFixture(name, shortEffect, effect string) map[string]any {
	return map[string]any{
		"name": name,
		"effect_entries": []any{
			map[string]any{"effect": effect, "short_effect": shortEffect, "language": named("en", "")},
			map[string]any{"effect": "Wirkung", "short_effect": "Kurz", "language": named("de", "")},
		},
	}
}

// MoveFixtureBody renders a move record of the given type.
func MoveFixtureBody(name, typeName string) map[string]any {
	return map[string]any{"name": name, "type": named(typeName, "")}
}

// TypeListFixture renders the type listing.
func TypeListFixture(names ...string) map[string]any {
	results := make([]any, 0, len(names))
	for i, n := range names {
		results = append(results, named(n, resourceURL("type", i+1)))
	}
	return map[string]any{"count": len(names), "results": results}
}

// TypeMembersFixture renders a type record listing its members in order.
func TypeMembersFixture(name string, members ...NamedID) map[string]any {
	entries := make([]any, 0, len(members))
	for i, m := range members {
		entries = append(entries, map[string]any{
			"slot":    i%2 + 1,
			"pokemon": named(m.Name, resourceURL("pokemon", m.ID)),
		})
	}
	return map[string]any{"name": name, "pokemon": entries}
}

// ListingHandler serves the global offset/limit listing over all.
func ListingHandler(all []NamedID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}

		results := make([]any, 0, min(limit, len(all)))
		for i := offset; i < len(all) && i < offset+limit; i++ {
			results = append(results, named(all[i].Name, resourceURL("pokemon", all[i].ID)))
		}

		body, _ := json.Marshal(map[string]any{"count": len(all), "results": results})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(body)
	}
}
