package lod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMaterializer_FreshRepresentations(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})

	rep, err := m.Adapt(nil, 5, TierFull)
	require.NoError(t, err)
	ent, ok := rep.(*Entity)
	require.True(t, ok)
	require.Equal(t, EntityID(5), ent.ID)

	rep, err = m.Adapt(nil, 6, TierAggregate)
	require.NoError(t, err)
	stat, ok := rep.(*StatRecord)
	require.True(t, ok)
	require.Equal(t, EntityID(6), stat.ID)
}

func TestMaterializer_FullToStatisticalAndBack(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})
	m.clock = func() time.Time { return time.Unix(7000, 0) }

	full := &Entity{
		ID:       42,
		Position: Vec3{X: 250, Z: -130},
		Velocity: Vec3{X: 1.5},
		Caste:    "forager",
	}

	rep, err := m.Adapt(full, 42, TierStatistical)
	require.NoError(t, err)
	stat, ok := rep.(*StatRecord)
	require.True(t, ok)
	require.Equal(t, EntityID(42), stat.ID)
	require.Equal(t, full.Position, stat.Position)
	require.Equal(t, full.Velocity, stat.Flow)
	require.Equal(t, m.GroupID(full.Position), stat.GroupID)
	require.Equal(t, time.Unix(7000, 0), stat.UpdatedAt)

	// Coming back up keeps identity and continuity but not behavior.
	rep, err = m.Adapt(stat, 42, TierFull)
	require.NoError(t, err)
	back, ok := rep.(*Entity)
	require.True(t, ok)
	require.Equal(t, EntityID(42), back.ID)
	require.Equal(t, stat.Position, back.Position)
	require.Equal(t, stat.Flow, back.Velocity)
	require.Empty(t, back.Caste, "behavioral state is not reconstructed")
}

// Re-adapting an already statistical representation keeps its identity
// and spatial group, reusing the record in place.
func TestMaterializer_StatisticalReadaptKeepsIdentity(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})
	now := time.Unix(7000, 0)
	m.clock = func() time.Time { return now }

	rep, err := m.Adapt(&Entity{ID: 21, Position: Vec3{X: 420, Z: -50}}, 21, TierStatistical)
	require.NoError(t, err)
	stat := rep.(*StatRecord)

	now = now.Add(time.Second)
	again, err := m.Adapt(stat, 21, TierStatistical)
	require.NoError(t, err)
	require.Same(t, stat, again.(*StatRecord))
	require.Equal(t, EntityID(21), again.EntityID())
	require.Equal(t, m.GroupID(Vec3{X: 420, Z: -50}), again.(*StatRecord).GroupID)
	require.Equal(t, now, again.(*StatRecord).UpdatedAt)

	// Movement across a cell boundary refreshes the group on re-adapt.
	stat.Position = Vec3{X: 620, Z: -50}
	moved, err := m.Adapt(stat, 21, TierAggregate)
	require.NoError(t, err)
	require.Equal(t, EntityID(21), moved.EntityID())
	require.Equal(t, m.GroupID(Vec3{X: 620, Z: -50}), moved.(*StatRecord).GroupID)
}

func TestMaterializer_FullSimplifiedShareRepresentation(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})

	full := &Entity{ID: 9, Position: Vec3{X: 1}}
	rep, err := m.Adapt(full, 9, TierSimplified)
	require.NoError(t, err)
	require.Same(t, full, rep.(*Entity))
}

func TestMaterializer_IdentityWinsOverPassedID(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})

	full := &Entity{ID: 11}
	rep, err := m.Adapt(full, 999, TierStatistical)
	require.NoError(t, err)
	require.Equal(t, EntityID(11), rep.EntityID())
}

func TestMaterializer_GroupIDQuantizesToGrid(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{GridCell: 100})

	// Same 100-unit cell, same group.
	require.Equal(t,
		m.GroupID(Vec3{X: 250, Z: -130}),
		m.GroupID(Vec3{X: 299.9, Z: -101}))

	// Neighboring cell differs.
	require.NotEqual(t,
		m.GroupID(Vec3{X: 250}),
		m.GroupID(Vec3{X: 350}))

	// Negative coordinates floor toward the lower cell.
	require.NotEqual(t,
		m.GroupID(Vec3{X: -1}),
		m.GroupID(Vec3{X: 1}))
}

func TestMaterializer_InvalidTier(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})
	_, err := m.Adapt(nil, 1, Tier(99))
	require.ErrorIs(t, err, ErrUnknownTier)
}
