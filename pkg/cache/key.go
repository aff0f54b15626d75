package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the resource kind a cache entry belongs to. It selects the
// TTL class and keeps keys of different kinds from colliding.
type Kind string

const (
	KindEntity      Kind = "entity"
	KindAbility     Kind = "ability"
	KindSpecies     Kind = "species"
	KindChain       Kind = "chain"
	KindMove        Kind = "move"
	KindMoveType    Kind = "move-type"
	KindLineage     Kind = "lineage"
	KindTypeList    Kind = "types"
	KindTypeMembers Kind = "type-members"
	KindIDPage      Kind = "id-page"
	KindNames       Kind = "names"
	KindCount       Kind = "count"
	KindComposite   Kind = "composite"
)

// Key represents a unique identifier for a cached value.
type Key struct {
	// Kind is the resource kind (e.g., "ability")
	Kind Kind

	// ID is the resolved identifier (id or name); normalized to lower case
	ID string

	// Params are additional discriminators (e.g., {"offset": "20", "limit": "20"})
	Params map[string]string

	// Variant distinguishes fidelity levels of the same resource (e.g., "lite")
	Variant string
}

// String generates a deterministic cache key string.
// Format: dex:kind:id:param1=val1:param2=val2:variant
//
// Example:
//
//	dex:composite:25:full
//	dex:id-page:limit=20:offset=40
func (k Key) String() string {
	parts := []string{"dex", string(k.Kind)}

	if id := NormalizeID(k.ID); id != "" {
		parts = append(parts, id)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	if k.Variant != "" {
		parts = append(parts, k.Variant)
	}

	return strings.Join(parts, ":")
}

// NormalizeID trims and lower-cases an identifier so that the same resource
// requested in different casing resolves to one cache slot.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// kindOf extracts the kind segment of a key produced by Key.String.
// Keys that were not built by Key.String report "other".
func kindOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != "dex" || parts[1] == "" {
		return "other"
	}
	return parts[1]
}
