package lod

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Representation is either a full Entity or a StatRecord. The set is
// closed; nothing outside this package implements it.
type Representation interface {
	EntityID() EntityID
	representation()
}

// Entity is the full simulation representation used by the Full and
// Simplified tiers. Behavioral depth between those two tiers is decided by
// the behavior subsystem from the assigned tier, not by this type.
type Entity struct {
	ID       EntityID
	Position Vec3
	Velocity Vec3
	Caste    string
}

func (e *Entity) EntityID() EntityID { return e.ID }
func (e *Entity) representation() {}

// StatRecord is the lightweight statistical representation used by the
// Statistical and Aggregate tiers.
type StatRecord struct {
	ID        EntityID
	Position  Vec3
	GroupID   uint64
	Flow      Vec3
	Density   float64
	UpdatedAt time.Time
}

func (r *StatRecord) EntityID() EntityID { return r.ID }
func (r *StatRecord) representation() {}

// MaterializerConfig tunes the spatial grouping grid.
type MaterializerConfig struct {
	// GridCell is the edge length of the spatial group cells. Default 100.
	GridCell float64
}

// Materializer converts entities between full and statistical form when
// their tier changes. Crossing from full into statistical form drops
// behavioral state; that loss is intended.
type Materializer struct {
	cell  float64
	clock func() time.Time
}

func NewMaterializer(cfg MaterializerConfig) *Materializer {
	cell := cfg.GridCell
	if cell <= 0 {
		cell = 100
	}
	return &Materializer{cell: cell, clock: time.Now}
}

// Adapt produces the representation required by target from whatever
// currently exists. A nil existing value yields a fresh zero-state
// representation carrying only the id. Identity is always preserved.
func (m *Materializer) Adapt(existing Representation, id EntityID, target Tier) (Representation, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, target)
	}
	if existing != nil {
		id = existing.EntityID()
	}

	switch target {
	case TierFull, TierSimplified:
		return m.toFull(existing, id), nil
	default:
		return m.toStatistical(existing, id), nil
	}
}

func (m *Materializer) toFull(existing Representation, id EntityID) *Entity {
	switch prev := existing.(type) {
	case *Entity:
		// Full and Simplified share the full representation as-is.
		return prev
	case *StatRecord:
		return &Entity{
			ID:       id,
			Position: prev.Position,
			Velocity: prev.Flow,
		}
	default:
		return &Entity{ID: id}
	}
}

func (m *Materializer) toStatistical(existing Representation, id EntityID) *StatRecord {
	now := m.clock()
	switch prev := existing.(type) {
	case *StatRecord:
		// Already statistical; refresh the group in case it moved.
		prev.GroupID = m.GroupID(prev.Position)
		prev.UpdatedAt = now
		return prev
	case *Entity:
		return &StatRecord{
			ID:        id,
			Position:  prev.Position,
			GroupID:   m.GroupID(prev.Position),
			Flow:      prev.Velocity,
			Density:   1,
			UpdatedAt: now,
		}
	default:
		return &StatRecord{
			ID:        id,
			GroupID:   m.GroupID(Vec3{}),
			UpdatedAt: now,
		}
	}
}

// GroupID derives the spatial group from the position quantized to the
// grid: the (x, y, z) cell triple hashed with xxhash.
func (m *Materializer) GroupID(p Vec3) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(int64(math.Floor(p.X/m.cell))))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(math.Floor(p.Y/m.cell))))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(math.Floor(p.Z/m.cell))))
	return xxhash.Sum64(buf[:])
}
