package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/antscale/antscale/internal/core/compute"
	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/sim"
)

// demoColony is a synthetic ant colony used when the daemon runs without
// a host simulation: random-walking entities around a fixed camera. It
// exists to exercise the full scheduling loop, not to be a simulation.
type demoColony struct {
	mu     sync.Mutex
	ants   []lod.EntityState
	camera lod.CameraPose
}

var demoCastes = []string{"worker", "worker", "worker", "forager", "forager", "soldier", "nurse", "male"}

func newDemoColony(population int) *demoColony {
	ants := make([]lod.EntityState, population)
	now := time.Now()
	for i := range ants {
		ants[i] = lod.EntityState{
			ID: lod.EntityID(i + 1),
			Position: lod.Vec3{
				X: rand.Float64()*2000 - 1000,
				Y: 0,
				Z: rand.Float64()*2000 - 1000,
			},
			Caste:        demoCastes[rand.Intn(len(demoCastes))],
			LastActivity: now,
		}
	}
	if population > 0 {
		ants[0].Caste = "queen"
	}
	return &demoColony{
		ants: ants,
		camera: lod.CameraPose{
			Position: lod.Vec3{Y: 120},
			FOV:      70,
			FarClip:  1500,
		},
	}
}

func (c *demoColony) Snapshot() lod.WorldInput {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for i := range c.ants {
		c.ants[i].Position.X += rand.Float64()*4 - 2
		c.ants[i].Position.Z += rand.Float64()*4 - 2
		if rand.Float64() < 0.05 {
			c.ants[i].LastActivity = now
		}
	}

	out := make([]lod.EntityState, len(c.ants))
	copy(out, c.ants)
	return lod.WorldInput{
		Camera:   c.camera,
		Entities: out,
	}
}

// demoKernels are stand-in bulk operations: each reports how many
// entities it touched. Real hosts install their physics/AI/pathfinding/
// pheromone kernels here.
func demoKernels() sim.KernelSet {
	step := func(ctx context.Context, tier lod.Tier, ids []lod.EntityID) (any, error) {
		return len(ids), nil
	}
	return sim.KernelSet{
		compute.TaskPhysics:     step,
		compute.TaskAI:          step,
		compute.TaskPathfinding: step,
		compute.TaskPheromone:   step,
	}
}
