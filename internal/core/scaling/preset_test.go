package scaling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antscale/antscale/internal/core/lod"
)

func TestPreset_EffectiveCapacity(t *testing.T) {
	balanced := DefaultPresets()[PresetBalanced]
	require.Equal(t, 5000, balanced.EffectiveCapacity(1.0))
	require.Equal(t, 3000, balanced.EffectiveCapacity(0.6))
	require.Equal(t, 500, balanced.EffectiveCapacity(0.1))
}

func TestPreset_TierCapacities(t *testing.T) {
	balanced := DefaultPresets()[PresetBalanced]
	caps := balanced.TierCapacities(1.0)

	require.Equal(t, 300, caps[lod.TierFull])
	require.Equal(t, 1000, caps[lod.TierSimplified])

	total := 0
	for _, n := range caps {
		total += n
	}
	require.LessOrEqual(t, total, balanced.MaxEntities)
}

func TestPreset_OrderCoversAllDefaults(t *testing.T) {
	presets := DefaultPresets()
	require.Len(t, presetOrder, len(presets))
	for _, name := range presetOrder {
		p, ok := presets[name]
		require.True(t, ok, "preset %q missing from defaults", name)
		require.Equal(t, name, p.Name)
		require.Positive(t, p.MaxEntities)
		require.Positive(t, p.TargetFPS)
	}

	// Quality strictly decreases down the order.
	for i := 1; i < len(presetOrder); i++ {
		require.Greater(t,
			presets[presetOrder[i-1]].MaxEntities,
			presets[presetOrder[i]].MaxEntities)
	}
}

func TestPresetIndex(t *testing.T) {
	require.Equal(t, 0, presetIndex(PresetUltra))
	require.Equal(t, 4, presetIndex(PresetExtreme))
	require.Equal(t, -1, presetIndex("potato"))
}
