package sim

import (
	"context"
	"time"

	"github.com/antscale/antscale/internal/core/compute"
	"github.com/antscale/antscale/internal/core/lod"
	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/internal/core/scaling"
)

// WorldSource supplies the per-tick world state: camera pose, selection
// and the read-only entity records.
type WorldSource interface {
	Snapshot() lod.WorldInput
}

// Kernel is one bulk per-tier operation (physics step, AI step, path
// batch, pheromone diffusion) supplied by the behavior subsystem.
type Kernel func(ctx context.Context, tier lod.Tier, ids []lod.EntityID) (any, error)

// KernelSet maps each task type to its kernel. Missing entries generate
// no tasks of that type.
type KernelSet map[compute.TaskType]Kernel

// RunnerConfig tunes the simulation loop.
type RunnerConfig struct {
	// TickInterval is the loop period. Default 33ms (~30 Hz).
	TickInterval time.Duration
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = 33 * time.Millisecond
	}
	return c
}

// Runner drives one simulation tick at a time: world state in, factors,
// assignments, bulk task submission, then the scaling feedback loop.
type Runner struct {
	cfg     RunnerConfig
	source  WorldSource
	factors *lod.FactorController
	engine  *lod.Engine
	scaler  *scaling.AutoScaler
	coord   *compute.Coordinator
	mat     *lod.Materializer
	kernels KernelSet
	lg      log.Log

	reps    map[lod.EntityID]lod.Representation
	tracked map[lod.EntityID]struct{}

	// OnSnapshot, when set, receives every performance snapshot after the
	// scaler has seen it. Used by the status server to push live metrics.
	OnSnapshot func(scaling.PerformanceSnapshot)
}

func NewRunner(cfg RunnerConfig, source WorldSource, factors *lod.FactorController, engine *lod.Engine, scaler *scaling.AutoScaler, coord *compute.Coordinator, mat *lod.Materializer, kernels KernelSet, lg log.Log) *Runner {
	return &Runner{
		cfg:     cfg.withDefaults(),
		source:  source,
		factors: factors,
		engine:  engine,
		scaler:  scaler,
		coord:   coord,
		mat:     mat,
		kernels: kernels,
		lg:      lg,
		reps:    make(map[lod.EntityID]lod.Representation),
		tracked: make(map[lod.EntityID]struct{}),
	}
}

// Run loops until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := r.Tick(ctx, dt); err != nil {
				return err
			}
		}
	}
}

// Tick runs one full pass. deltaTime is the measured duration of the
// previous frame and feeds the engine's system-load buffer.
func (r *Runner) Tick(ctx context.Context, deltaTime time.Duration) error {
	in := r.source.Snapshot()
	r.factors.Observe(in)
	ids := r.factors.Tracked()

	// Due-ness has to be read before the pass refreshes every nextUpdate.
	due := make(map[lod.EntityID]struct{}, len(ids))
	for _, id := range ids {
		if r.engine.ShouldUpdate(id) {
			due[id] = struct{}{}
		}
	}

	dist, err := r.engine.UpdateAssignments(ids, r.factors, deltaTime)
	if err != nil {
		return err
	}

	r.reconcile(ids, dist)
	r.submitBulkWork(ctx, dist, due)

	snap := scaling.PerformanceSnapshot{
		FPS:              fpsFrom(deltaTime),
		FrameTime:        deltaTime,
		EntityCount:      len(ids),
		TierDistribution: r.engine.Distribution(),
		BackendUtilization: map[string]float64{
			"queue":    float64(r.coord.QueueLen()),
			"inflight": inflightRatio(r.coord),
		},
	}
	r.scaler.Observe(snap)
	r.scaler.Evaluate()
	if r.OnSnapshot != nil {
		r.OnSnapshot(snap)
	}
	return nil
}

// reconcile drops assignments and representations for entities that left
// tracking and re-materializes the ones whose tier changed.
func (r *Runner) reconcile(ids []lod.EntityID, dist map[lod.Tier][]lod.EntityID) {
	current := make(map[lod.EntityID]struct{}, len(ids))
	for _, id := range ids {
		current[id] = struct{}{}
	}
	for id := range r.tracked {
		if _, ok := current[id]; !ok {
			r.engine.Remove(id)
			delete(r.reps, id)
			delete(r.tracked, id)
		}
	}
	for id := range current {
		r.tracked[id] = struct{}{}
	}

	for tier, tierIDs := range dist {
		for _, id := range tierIDs {
			rep, err := r.mat.Adapt(r.reps[id], id, tier)
			if err != nil {
				r.lg.Error("materialization failed",
					log.Uint64("entity", uint64(id)),
					log.String("tier", tier.String()),
					log.Error(err))
				continue
			}
			r.reps[id] = rep
		}
	}
}

// submitBulkWork emits one task per (tier, kernel) over the entities due
// this tick. Results are consumed asynchronously; a failed bulk task is
// logged and the next tick simply regenerates the work.
func (r *Runner) submitBulkWork(ctx context.Context, dist map[lod.Tier][]lod.EntityID, due map[lod.EntityID]struct{}) {
	for _, tier := range lod.Tiers {
		tierIDs := dist[tier]
		if len(tierIDs) == 0 {
			continue
		}
		dueIDs := make([]lod.EntityID, 0, len(tierIDs))
		for _, id := range tierIDs {
			if _, ok := due[id]; ok {
				dueIDs = append(dueIDs, id)
			}
		}
		if len(dueIDs) == 0 {
			continue
		}
		for taskType, kernel := range r.kernels {
			r.submitKernel(ctx, taskType, tier, dueIDs, kernel)
		}
	}
}

func (r *Runner) submitKernel(ctx context.Context, taskType compute.TaskType, tier lod.Tier, ids []lod.EntityID, kernel Kernel) {
	task := &compute.Task{
		Type:        taskType,
		Class:       classFor(taskType, tier),
		PayloadSize: len(ids),
		Tier:        tier,
		Work: compute.WorkloadFunc(func(ctx context.Context) (any, error) {
			return kernel(ctx, tier, ids)
		}),
	}
	ch, err := r.coord.Submit(task)
	if err != nil {
		r.lg.Warn("bulk task rejected",
			log.String("type", taskType.String()),
			log.String("tier", tier.String()),
			log.Error(err))
		return
	}
	go func() {
		select {
		case res := <-ch:
			if !res.OK {
				r.lg.Warn("bulk task failed",
					log.String("type", taskType.String()),
					log.String("tier", tier.String()),
					log.Error(res.Err))
			}
		case <-ctx.Done():
		}
	}()
}

// classFor maps work to a priority class: physics on the fully simulated
// core is frame-critical, statistical refreshes can wait.
func classFor(taskType compute.TaskType, tier lod.Tier) compute.PriorityClass {
	if tier == lod.TierFull {
		if taskType == compute.TaskPhysics {
			return compute.ClassCritical
		}
		return compute.ClassHigh
	}
	if tier == lod.TierSimplified {
		return compute.ClassMedium
	}
	return compute.ClassLow
}

func fpsFrom(dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	return 1 / dt.Seconds()
}

func inflightRatio(c *compute.Coordinator) float64 {
	limit := c.Capabilities().MaxConcurrent
	if limit <= 0 {
		return 0
	}
	return float64(c.InFlight()) / float64(limit)
}
