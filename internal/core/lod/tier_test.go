package lod

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTierOrderAndLower(t *testing.T) {
	require.Equal(t, [tierCount]Tier{TierFull, TierSimplified, TierStatistical, TierAggregate}, Tiers)

	next, ok := TierFull.Lower()
	require.True(t, ok)
	require.Equal(t, TierSimplified, next)

	next, ok = TierAggregate.Lower()
	require.False(t, ok, "aggregate is the floor")
	require.Equal(t, TierAggregate, next)
}

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err)
		require.Equal(t, tier, parsed)
	}
	_, err := ParseTier("imaginary")
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestTierJSONMapKeys(t *testing.T) {
	data, err := json.Marshal(map[Tier]int{TierFull: 3, TierAggregate: 9})
	require.NoError(t, err)
	require.JSONEq(t, `{"full":3,"aggregate":9}`, string(data))

	var back map[Tier]int
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 3, back[TierFull])
	require.Equal(t, 9, back[TierAggregate])
}

func TestTierConfigUpdatePeriod(t *testing.T) {
	require.Equal(t, time.Second/30, TierConfig{UpdateHz: 30}.UpdatePeriod())
	require.Equal(t, 2*time.Second, TierConfig{UpdateHz: 0.5}.UpdatePeriod())
	require.Equal(t, time.Second, TierConfig{}.UpdatePeriod(), "unset frequency defaults to 1s")
}

func TestTierSetRejectsUnknownTier(t *testing.T) {
	_, err := NewTierSet(map[Tier]TierConfig{Tier(42): {}})
	require.ErrorIs(t, err, ErrUnknownTier)
}
