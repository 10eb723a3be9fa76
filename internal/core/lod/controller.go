package lod

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/antscale/antscale/internal/core/observability/log"
)

// ControllerConfig tunes how raw world state is folded into priority
// factors. Zero values fall back to the defaults below.
type ControllerConfig struct {
	// ActivityWindow is how long after its last action an entity still
	// counts as active; the score decays linearly to zero across it.
	ActivityWindow time.Duration
	// FocusWindow bounds the decaying interaction-recency bonus.
	FocusWindow time.Duration
	// SelectionBonus is the flat focus contribution of direct selection.
	SelectionBonus float64
	// InteractionBonus is the maximum focus contribution of a recent
	// interaction, before decay.
	InteractionBonus float64
	// NeighborRadius and NeighborCap normalize the group-density score.
	NeighborRadius float64
	NeighborCap    int
	// DistanceFalloff is the exponent multiplier of the distance curve.
	DistanceFalloff float64
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = 60 * time.Second
	}
	if c.FocusWindow <= 0 {
		c.FocusWindow = 30 * time.Second
	}
	if c.SelectionBonus <= 0 {
		c.SelectionBonus = 0.5
	}
	if c.InteractionBonus <= 0 {
		c.InteractionBonus = 0.5
	}
	if c.NeighborRadius <= 0 {
		c.NeighborRadius = 50
	}
	if c.NeighborCap <= 0 {
		c.NeighborCap = 20
	}
	if c.DistanceFalloff <= 0 {
		c.DistanceFalloff = 3
	}
	return c
}

// casteImportance maps a role label to its 0-10 importance weight.
var casteImportance = map[string]float64{
	"queen":   10,
	"soldier": 5,
	"nurse":   4,
	"worker":  3,
	"forager": 3,
	"male":    1,
}

const defaultImportance = 2

// FactorController converts camera pose, selection and activity state into
// PriorityFactors, independent of the engine's scoring weights.
type FactorController struct {
	mu  sync.RWMutex
	cfg ControllerConfig
	lg  log.Log

	camera       CameraPose
	entities     map[EntityID]EntityState
	order        []EntityState
	interactions map[EntityID]time.Time

	clock func() time.Time
}

var _ FactorProvider = (*FactorController)(nil)

func NewFactorController(cfg ControllerConfig, lg log.Log) *FactorController {
	return &FactorController{
		cfg:          cfg.withDefaults(),
		lg:           lg,
		entities:     make(map[EntityID]EntityState),
		interactions: make(map[EntityID]time.Time),
		clock:        time.Now,
	}
}

// Observe replaces the controller's view of the world with the current
// tick's input and purges stale interaction history.
func (c *FactorController) Observe(in WorldInput) {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.camera = in.Camera
	c.order = in.Entities
	clear(c.entities)
	for _, e := range in.Entities {
		c.entities[e.ID] = e
		if e.Selected {
			c.interactions[e.ID] = now
		}
	}
	for id := range in.Selected {
		c.interactions[id] = now
	}

	// Entries past twice the decay window contribute nothing.
	horizon := now.Add(-2 * c.cfg.FocusWindow)
	for id, at := range c.interactions {
		if at.Before(horizon) {
			delete(c.interactions, id)
		}
	}
}

// RecordInteraction notes a direct user interaction with an entity so its
// focus score carries a decaying bonus for the next FocusWindow.
func (c *FactorController) RecordInteraction(id EntityID) {
	now := c.clock()
	c.mu.Lock()
	c.interactions[id] = now
	c.mu.Unlock()
}

// Tracked returns the ids of all entities seen in the last Observe call,
// in input order.
func (c *FactorController) Tracked() []EntityID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]EntityID, len(c.order))
	for i, e := range c.order {
		ids[i] = e.ID
	}
	return ids
}

// FactorsFor computes the priority factors for one tracked entity.
// The SystemLoad component is left zero; the assignment engine fills it in
// once per batch so every entity in a pass observes the same value.
func (c *FactorController) FactorsFor(id EntityID) (PriorityFactors, error) {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entities[id]
	if !ok {
		return PriorityFactors{}, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}

	return PriorityFactors{
		Distance:   c.distanceScore(e),
		Activity:   c.activityScore(e, now),
		Focus:      c.focusScore(e, now),
		Importance: importanceFor(e.Caste),
		Density:    c.densityScore(e),
	}, nil
}

func (c *FactorController) distanceScore(e EntityState) float64 {
	farClip := c.camera.FarClip
	if farClip <= 0 {
		return 1
	}
	d := e.Position.DistanceTo(c.camera.Position)
	return math.Exp(-c.cfg.DistanceFalloff * math.Min(d/farClip, 1))
}

func (c *FactorController) activityScore(e EntityState, now time.Time) float64 {
	if e.LastActivity.IsZero() {
		return 0
	}
	age := now.Sub(e.LastActivity)
	if age >= c.cfg.ActivityWindow {
		return 0
	}
	if age < 0 {
		return 1
	}
	return 1 - float64(age)/float64(c.cfg.ActivityWindow)
}

func (c *FactorController) focusScore(e EntityState, now time.Time) float64 {
	score := 0.0
	if e.Selected {
		score += c.cfg.SelectionBonus
	}
	if at, ok := c.interactions[e.ID]; ok {
		age := now.Sub(at)
		if age < c.cfg.FocusWindow {
			decay := 1 - float64(age)/float64(c.cfg.FocusWindow)
			if decay < 0 {
				decay = 0
			}
			score += c.cfg.InteractionBonus * decay
		}
	}
	return math.Min(score, 1)
}

func (c *FactorController) densityScore(e EntityState) float64 {
	count := e.GroupSize
	if count <= 0 {
		count = c.countNeighbors(e)
	}
	return math.Min(float64(count)/float64(c.cfg.NeighborCap), 1)
}

// countNeighbors is the fallback when the world does not supply a local
// group size. Linear scan; fine for the population sizes we track.
func (c *FactorController) countNeighbors(e EntityState) int {
	count := 0
	for _, other := range c.order {
		if other.ID == e.ID {
			continue
		}
		if other.Position.DistanceTo(e.Position) <= c.cfg.NeighborRadius {
			count++
		}
	}
	return count
}

func importanceFor(caste string) float64 {
	if w, ok := casteImportance[caste]; ok {
		return w
	}
	return defaultImportance
}
