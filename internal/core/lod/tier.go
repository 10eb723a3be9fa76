package lod

import (
	"fmt"
	"time"
)

// Tier is one of four fixed fidelity levels for simulating an entity,
// ordered from most to least detailed.
type Tier uint8

const (
	TierFull Tier = iota
	TierSimplified
	TierStatistical
	TierAggregate

	tierCount = 4
)

// Tiers lists every tier in downgrade order.
var Tiers = [tierCount]Tier{TierFull, TierSimplified, TierStatistical, TierAggregate}

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierSimplified:
		return "simplified"
	case TierStatistical:
		return "statistical"
	case TierAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool {
	return t < tierCount
}

// MarshalText serializes the tier as its name, also for JSON map keys.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, t)
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Lower returns the next tier down the downgrade path and false once at
// TierAggregate.
func (t Tier) Lower() (Tier, bool) {
	if t >= TierAggregate {
		return TierAggregate, false
	}
	return t + 1, true
}

// ParseTier resolves a tier by name, for configuration files.
func ParseTier(name string) (Tier, error) {
	for _, t := range Tiers {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, name)
}

// TierConfig is the immutable per-tier definition established at startup.
type TierConfig struct {
	MaxEntities     int
	Features        []string
	UpdateHz        float64
	CPUCost         float64
	MemoryPerEntity int
	Quality         float64
}

// UpdatePeriod converts the tier's update frequency into the minimum
// interval between two updates of the same entity.
func (c TierConfig) UpdatePeriod() time.Duration {
	if c.UpdateHz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.UpdateHz)
}

// TierSet holds the four tier definitions. Built once, never mutated;
// runtime capacity adjustments live in the assignment engine.
type TierSet struct {
	configs [tierCount]TierConfig
}

func NewTierSet(configs map[Tier]TierConfig) (*TierSet, error) {
	set := &TierSet{}
	for t, cfg := range configs {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTier, t)
		}
		set.configs[t] = cfg
	}
	return set, nil
}

// DefaultTierSet mirrors the stock simulation profile: a small fully
// simulated core, a broad statistical middle, and an unbounded aggregate
// floor.
func DefaultTierSet() *TierSet {
	set, _ := NewTierSet(DefaultTierConfigs())
	return set
}

// DefaultTierConfigs returns the stock per-tier definitions; callers may
// override entries before building a TierSet.
func DefaultTierConfigs() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		TierFull: {
			MaxEntities:     500,
			Features:        []string{"pathfinding", "pheromones", "combat", "carry"},
			UpdateHz:        30,
			CPUCost:         1.0,
			MemoryPerEntity: 2048,
			Quality:         1.0,
		},
		TierSimplified: {
			MaxEntities:     2000,
			Features:        []string{"pathfinding", "pheromones"},
			UpdateHz:        10,
			CPUCost:         0.4,
			MemoryPerEntity: 768,
			Quality:         0.7,
		},
		TierStatistical: {
			MaxEntities:     10000,
			Features:        []string{"flow"},
			UpdateHz:        2,
			CPUCost:         0.1,
			MemoryPerEntity: 128,
			Quality:         0.35,
		},
		TierAggregate: {
			MaxEntities:     1 << 20,
			Features:        nil,
			UpdateHz:        0.5,
			CPUCost:         0.02,
			MemoryPerEntity: 16,
			Quality:         0.1,
		},
	}
}

// Config returns the definition for t.
func (s *TierSet) Config(t Tier) (TierConfig, error) {
	if !t.Valid() {
		return TierConfig{}, fmt.Errorf("%w: %d", ErrUnknownTier, t)
	}
	return s.configs[t], nil
}

// MustConfig is Config for callers holding an already validated tier.
func (s *TierSet) MustConfig(t Tier) TierConfig {
	return s.configs[t]
}

// Capacities returns the configured maximum per tier.
func (s *TierSet) Capacities() map[Tier]int {
	out := make(map[Tier]int, tierCount)
	for _, t := range Tiers {
		out[t] = s.configs[t].MaxEntities
	}
	return out
}
