package aggregate

import (
	"fmt"

	"github.com/Sternrassler/pokedex-client/pkg/evolution"
)

// Variant is the fidelity level of a composite record.
type Variant string

const (
	// VariantFull resolves a type for every learnable move.
	VariantFull Variant = "full"

	// VariantLite skips move-type resolution. Used for bulk paging.
	VariantLite Variant = "lite"
)

// ParseVariant maps a user-supplied string to a Variant. Empty means full.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantFull:
		return VariantFull, nil
	case VariantLite:
		return VariantLite, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// MaxFlavorTexts caps the descriptive texts kept per composite.
const MaxFlavorTexts = 40

// Composite is the assembled view of one entity. It is never modified after
// construction; cached instances are shared between callers.
type Composite struct {
	ID             int                 `json:"id"`
	Name           string              `json:"name"`
	ImageURL       string              `json:"imageUrl"`
	Height         *int                `json:"height,omitempty"`
	Weight         *int                `json:"weight,omitempty"`
	Types          []string            `json:"types"`
	Stats          Stats               `json:"stats"`
	Abilities      []string            `json:"abilities"`
	AbilityDetails []AbilityDetail     `json:"abilityDetails"`
	FlavorTexts    []FlavorText        `json:"flavorTexts"`
	Moves          []MoveLearn         `json:"moves"`
	Evolution      []evolution.Summary `json:"evolution"`
	Variant        Variant             `json:"variant"`
}

// Stats are the six base stats.
type Stats struct {
	HP             int `json:"hp"`
	Attack         int `json:"attack"`
	Defense        int `json:"defense"`
	SpecialAttack  int `json:"specialAttack"`
	SpecialDefense int `json:"specialDefense"`
	Speed          int `json:"speed"`
}

// set assigns a stat by its upstream tag. Unknown tags are ignored.
func (s *Stats) set(tag string, value int) {
	switch tag {
	case "hp":
		s.HP = value
	case "attack":
		s.Attack = value
	case "defense":
		s.Defense = value
	case "special-attack":
		s.SpecialAttack = value
	case "special-defense":
		s.SpecialDefense = value
	case "speed":
		s.Speed = value
	}
}

// AbilityDetail is an ability name with its English effect texts, when known.
type AbilityDetail struct {
	Name        string  `json:"name"`
	ShortEffect *string `json:"shortEffect,omitempty"`
	Effect      *string `json:"effect,omitempty"`
}

// FlavorText is one descriptive text and the game version it comes from.
type FlavorText struct {
	Version string `json:"version"`
	Text    string `json:"text"`
}

// MoveLearn is one row of the learnable-move table.
type MoveLearn struct {
	Name string `json:"name"`

	// Level is 0 when the move is not learned by leveling
	Level int `json:"level"`

	Method       string `json:"method"`
	VersionGroup string `json:"versionGroup"`

	// Type is empty when unknown or not resolved (lite)
	Type string `json:"type,omitempty"`
}
