package cache

import (
	"testing"
	"time"
)

func TestDefaultPolicy_Ordering(t *testing.T) {
	p := DefaultPolicy()

	if err := p.Validate(); err != nil {
		t.Fatalf("DefaultPolicy().Validate() error = %v", err)
	}
	if p.TTL(KindEntity) >= p.TTL(KindAbility) {
		t.Errorf("detail ttl %v should be shorter than lookup ttl %v", p.TTL(KindEntity), p.TTL(KindAbility))
	}
	if p.TTL(KindIDPage) >= p.TTL(KindSpecies) {
		t.Errorf("list ttl %v should be shorter than lookup ttl %v", p.TTL(KindIDPage), p.TTL(KindSpecies))
	}
}

func TestPolicy_TTL(t *testing.T) {
	p := Policy{Detail: 1 * time.Hour, Lookup: 2 * time.Hour, List: 3 * time.Minute, Count: 4 * time.Minute}

	tests := []struct {
		kind Kind
		want time.Duration
	}{
		{KindEntity, time.Hour},
		{KindComposite, time.Hour},
		{KindAbility, 2 * time.Hour},
		{KindSpecies, 2 * time.Hour},
		{KindChain, 2 * time.Hour},
		{KindLineage, 2 * time.Hour},
		{KindMoveType, 2 * time.Hour},
		{KindIDPage, 3 * time.Minute},
		{KindTypeMembers, 3 * time.Minute},
		{KindNames, 3 * time.Minute},
		{KindCount, 4 * time.Minute},
		{Kind("unknown"), 3 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := p.TTL(tt.kind); got != tt.want {
				t.Errorf("TTL(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{
			name:   "valid",
			policy: Policy{Detail: time.Hour, Lookup: 24 * time.Hour, List: time.Minute, Count: time.Minute},
		},
		{
			name:    "zero ttl",
			policy:  Policy{Detail: 0, Lookup: 24 * time.Hour, List: time.Minute, Count: time.Minute},
			wantErr: true,
		},
		{
			name:    "detail not shorter than lookup",
			policy:  Policy{Detail: 24 * time.Hour, Lookup: 24 * time.Hour, List: time.Minute, Count: time.Minute},
			wantErr: true,
		},
		{
			name:    "list longer than detail",
			policy:  Policy{Detail: time.Hour, Lookup: 24 * time.Hour, List: 2 * time.Hour, Count: time.Minute},
			wantErr: true,
		},
		{
			name:    "count longer than detail",
			policy:  Policy{Detail: time.Hour, Lookup: 24 * time.Hour, List: time.Minute, Count: 2 * time.Hour},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
