package scaling

import (
	"errors"

	"github.com/antscale/antscale/internal/core/lod"
)

var ErrUnknownPreset = errors.New("unknown quality preset")

// PresetName identifies a quality preset.
type PresetName string

const (
	PresetUltra       PresetName = "ultra"
	PresetHigh        PresetName = "high"
	PresetBalanced    PresetName = "balanced"
	PresetPerformance PresetName = "performance"
	PresetExtreme     PresetName = "extreme"
)

// presetOrder lists presets from highest to lowest quality. Downgrades
// step right, upgrades step left.
var presetOrder = []PresetName{
	PresetUltra,
	PresetHigh,
	PresetBalanced,
	PresetPerformance,
	PresetExtreme,
}

// QualityPreset is a named bundle of capacity, tier-distribution targets
// and feature toggles, selected as a whole.
type QualityPreset struct {
	Name             PresetName
	MaxEntities      int
	TierDistribution map[lod.Tier]float64
	ComputeEnabled   bool
	GPUEnabled       bool
	GridResolution   int
	PhysicsAccuracy  float64
	RenderAccuracy   float64
	TargetFPS        float64
	MaxLoadFactor    float64
}

// EffectiveCapacity applies the continuous complexity factor to the
// preset's entity target.
func (p QualityPreset) EffectiveCapacity(factor float64) int {
	return int(float64(p.MaxEntities) * factor)
}

// TierCapacities splits the effective capacity across tiers by the
// preset's distribution percentages.
func (p QualityPreset) TierCapacities(factor float64) map[lod.Tier]int {
	total := p.EffectiveCapacity(factor)
	out := make(map[lod.Tier]int, len(p.TierDistribution))
	for t, share := range p.TierDistribution {
		out[t] = int(float64(total) * share)
	}
	return out
}

// DefaultPresets returns the stock preset table, keyed by name.
func DefaultPresets() map[PresetName]QualityPreset {
	return map[PresetName]QualityPreset{
		PresetUltra: {
			Name:        PresetUltra,
			MaxEntities: 10000,
			TierDistribution: map[lod.Tier]float64{
				lod.TierFull:        0.10,
				lod.TierSimplified:  0.25,
				lod.TierStatistical: 0.40,
				lod.TierAggregate:   0.25,
			},
			ComputeEnabled:  true,
			GPUEnabled:      true,
			GridResolution:  256,
			PhysicsAccuracy: 1.0,
			RenderAccuracy:  1.0,
			TargetFPS:       60,
			MaxLoadFactor:   1.0,
		},
		PresetHigh: {
			Name:        PresetHigh,
			MaxEntities: 7500,
			TierDistribution: map[lod.Tier]float64{
				lod.TierFull:        0.08,
				lod.TierSimplified:  0.22,
				lod.TierStatistical: 0.40,
				lod.TierAggregate:   0.30,
			},
			ComputeEnabled:  true,
			GPUEnabled:      true,
			GridResolution:  192,
			PhysicsAccuracy: 0.85,
			RenderAccuracy:  0.9,
			TargetFPS:       60,
			MaxLoadFactor:   1.0,
		},
		PresetBalanced: {
			Name:        PresetBalanced,
			MaxEntities: 5000,
			TierDistribution: map[lod.Tier]float64{
				lod.TierFull:        0.06,
				lod.TierSimplified:  0.20,
				lod.TierStatistical: 0.44,
				lod.TierAggregate:   0.30,
			},
			ComputeEnabled:  true,
			GPUEnabled:      false,
			GridResolution:  128,
			PhysicsAccuracy: 0.7,
			RenderAccuracy:  0.75,
			TargetFPS:       30,
			MaxLoadFactor:   0.95,
		},
		PresetPerformance: {
			Name:        PresetPerformance,
			MaxEntities: 2500,
			TierDistribution: map[lod.Tier]float64{
				lod.TierFull:        0.04,
				lod.TierSimplified:  0.16,
				lod.TierStatistical: 0.40,
				lod.TierAggregate:   0.40,
			},
			ComputeEnabled:  true,
			GPUEnabled:      false,
			GridResolution:  96,
			PhysicsAccuracy: 0.5,
			RenderAccuracy:  0.6,
			TargetFPS:       30,
			MaxLoadFactor:   0.9,
		},
		PresetExtreme: {
			Name:        PresetExtreme,
			MaxEntities: 1000,
			TierDistribution: map[lod.Tier]float64{
				lod.TierFull:        0.02,
				lod.TierSimplified:  0.08,
				lod.TierStatistical: 0.35,
				lod.TierAggregate:   0.55,
			},
			ComputeEnabled:  false,
			GPUEnabled:      false,
			GridResolution:  64,
			PhysicsAccuracy: 0.3,
			RenderAccuracy:  0.4,
			TargetFPS:       24,
			MaxLoadFactor:   0.85,
		},
	}
}

func presetIndex(name PresetName) int {
	for i, n := range presetOrder {
		if n == name {
			return i
		}
	}
	return -1
}
