package lod

import (
	"math"
	"time"
)

// EntityID identifies a simulated entity for the lifetime of the process.
type EntityID uint64

// Vec3 is a position or direction in world units.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) DistanceTo(o Vec3) float64 {
	return v.Sub(o).Length()
}

// CameraPose is the viewpoint supplied by the render/input side each tick.
type CameraPose struct {
	Position  Vec3
	Direction Vec3
	FOV       float64
	FarClip   float64
}

// EntityState is the read-only per-entity record the world hands to the
// factor controller. Behavior state stays with the behavior subsystem.
type EntityState struct {
	ID           EntityID
	Position     Vec3
	Caste        string
	LastActivity time.Time
	Selected     bool
	GroupSize    int
}

// WorldInput is the full per-tick input to the factor controller.
type WorldInput struct {
	Camera   CameraPose
	Selected map[EntityID]struct{}
	Entities []EntityState
}
