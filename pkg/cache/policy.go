package cache

import (
	"fmt"
	"time"
)

// Policy assigns a TTL to every resource kind.
//
// Detail covers entity records and composites, Lookup covers static
// definitions (abilities, species, lineage chains, moves), List covers id
// listings and name indexes, Count covers aggregate counts.
type Policy struct {
	Detail time.Duration
	Lookup time.Duration
	List   time.Duration
	Count  time.Duration
}

// DefaultPolicy returns the production TTLs.
func DefaultPolicy() Policy {
	return Policy{
		Detail: 6 * time.Hour,
		Lookup: 24 * time.Hour,
		List:   20 * time.Minute,
		Count:  20 * time.Minute,
	}
}

// TTL returns the time-to-live for entries of the given kind.
func (p Policy) TTL(kind Kind) time.Duration {
	switch kind {
	case KindEntity, KindComposite:
		return p.Detail
	case KindAbility, KindSpecies, KindChain, KindMove, KindMoveType, KindLineage, KindTypeList:
		return p.Lookup
	case KindIDPage, KindTypeMembers, KindNames:
		return p.List
	case KindCount:
		return p.Count
	default:
		return p.List
	}
}

// Validate checks that every TTL is positive and that paged views refresh
// sooner than reference data: list and count stay below detail, detail stays
// below lookup.
func (p Policy) Validate() error {
	for name, ttl := range map[string]time.Duration{
		"detail": p.Detail,
		"lookup": p.Lookup,
		"list":   p.List,
		"count":  p.Count,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s ttl must be positive (got %s)", name, ttl)
		}
	}

	if p.Detail >= p.Lookup {
		return fmt.Errorf("detail ttl (%s) must be shorter than lookup ttl (%s)", p.Detail, p.Lookup)
	}
	if p.List > p.Detail {
		return fmt.Errorf("list ttl (%s) must not exceed detail ttl (%s)", p.List, p.Detail)
	}
	if p.Count > p.Detail {
		return fmt.Errorf("count ttl (%s) must not exceed detail ttl (%s)", p.Count, p.Detail)
	}

	return nil
}
