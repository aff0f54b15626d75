package catalog

import (
	"strconv"
	"strings"
)

// NamedRef is the upstream's (name, url) reference to another resource.
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID returns the numeric identifier at the end of the reference URL.
func (r NamedRef) ID() (int, bool) {
	return ParseTrailingID(r.URL)
}

// ParseTrailingID extracts the trailing numeric path segment of a resource
// URL, e.g. 7 from ".../evolution-chain/7/".
func ParseTrailingID(rawURL string) (int, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, false
	}

	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Pokemon is the entity detail record.
type Pokemon struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Height    *int          `json:"height"`
	Weight    *int          `json:"weight"`
	Sprites   Sprites       `json:"sprites"`
	Types     []TypeSlot    `json:"types"`
	Stats     []StatEntry   `json:"stats"`
	Abilities []AbilitySlot `json:"abilities"`
	Moves     []MoveSlot    `json:"moves"`
	Species   NamedRef      `json:"species"`
}

// Sprites holds the image URLs of an entity. Any of them may be null.
type Sprites struct {
	FrontDefault *string      `json:"front_default"`
	Other        OtherSprites `json:"other"`
}

// OtherSprites holds alternative artwork sets.
type OtherSprites struct {
	OfficialArtwork struct {
		FrontDefault *string `json:"front_default"`
	} `json:"official-artwork"`
}

// TypeSlot is one type tag of an entity.
type TypeSlot struct {
	Slot int      `json:"slot"`
	Type NamedRef `json:"type"`
}

// StatEntry is one base stat of an entity.
type StatEntry struct {
	BaseStat int      `json:"base_stat"`
	Effort   int      `json:"effort"`
	Stat     NamedRef `json:"stat"`
}

// AbilitySlot is one ability of an entity.
type AbilitySlot struct {
	Ability  NamedRef `json:"ability"`
	IsHidden bool     `json:"is_hidden"`
	Slot     int      `json:"slot"`
}

// MoveSlot is one learnable move with its per-version learn details.
type MoveSlot struct {
	Move                NamedRef            `json:"move"`
	VersionGroupDetails []MoveVersionDetail `json:"version_group_details"`
}

// MoveVersionDetail describes how a move is learned in one version group.
type MoveVersionDetail struct {
	LevelLearnedAt  int      `json:"level_learned_at"`
	MoveLearnMethod NamedRef `json:"move_learn_method"`
	VersionGroup    NamedRef `json:"version_group"`
}

// Ability is an ability definition.
type Ability struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	EffectEntries []EffectEntry `json:"effect_entries"`
}

// EffectEntry is a localized ability effect description.
type EffectEntry struct {
	Effect      string   `json:"effect"`
	ShortEffect string   `json:"short_effect"`
	Language    NamedRef `json:"language"`
}

// EnglishEffect returns the English effect entry, if any.
func (a *Ability) EnglishEffect() (EffectEntry, bool) {
	for _, e := range a.EffectEntries {
		if e.Language.Name == "en" {
			return e, true
		}
	}
	return EffectEntry{}, false
}

// Species is the species record carrying descriptive text and the
// evolution chain reference.
type Species struct {
	ID                int               `json:"id"`
	Name              string            `json:"name"`
	FlavorTextEntries []FlavorTextEntry `json:"flavor_text_entries"`
	EvolutionChain    struct {
		URL string `json:"url"`
	} `json:"evolution_chain"`
}

// ChainID returns the evolution chain id referenced by the species.
func (s *Species) ChainID() (int, bool) {
	return ParseTrailingID(s.EvolutionChain.URL)
}

// FlavorTextEntry is one localized descriptive text of a species.
type FlavorTextEntry struct {
	FlavorText string   `json:"flavor_text"`
	Language   NamedRef `json:"language"`
	Version    NamedRef `json:"version"`
}

// EvolutionChain is a lineage tree.
type EvolutionChain struct {
	ID    int       `json:"id"`
	Chain ChainLink `json:"chain"`
}

// ChainLink is one node of a lineage tree.
type ChainLink struct {
	Species   NamedRef    `json:"species"`
	EvolvesTo []ChainLink `json:"evolves_to"`
}

// Move is a move record; only its type tag is consumed.
type Move struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Type NamedRef `json:"type"`
}

// TypeDetail is a type record listing its member entities.
type TypeDetail struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Pokemon []TypeMember `json:"pokemon"`
}

// TypeMember is one entity holding a type.
type TypeMember struct {
	Slot    int      `json:"slot"`
	Pokemon NamedRef `json:"pokemon"`
}

// NamedList is a paginated listing of references.
type NamedList struct {
	Count    int        `json:"count"`
	Next     *string    `json:"next"`
	Previous *string    `json:"previous"`
	Results  []NamedRef `json:"results"`
}

// IDPage is one slice of the global entity listing.
type IDPage struct {
	// Total is the number of entities upstream
	Total int

	// IDs in upstream order
	IDs []int
}
