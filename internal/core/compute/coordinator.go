package compute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/pkg/sequence"
)

// nativeAdvantage is the historical latency ratio at which the native
// backend wins over the default one: at least 20% faster.
const nativeAdvantage = 0.8

// CoordinatorConfig tunes queueing and routing.
type CoordinatorConfig struct {
	// SizeThreshold is the payload size above which work prefers the
	// native backend. Default 1000.
	SizeThreshold int
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = 1000
	}
	return c
}

type pendingTask struct {
	task   *Task
	result chan Result
}

// Coordinator queues bulk compute tasks, routes each to the fastest
// suitable backend and delivers results asynchronously. Total in-flight
// tasks across all backends are bounded by the detected concurrency limit.
type Coordinator struct {
	mu       sync.Mutex
	caps     Capabilities
	cfg      CoordinatorConfig
	backends map[BackendKind]Backend
	queue    *sequence.PriorityQueue[*pendingTask]
	seq      int64
	inflight map[uuid.UUID]*pendingTask
	history  *latencyHistory

	computeEnabled bool
	gpuEnabled     bool
	closed         bool

	drainCh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	lg      log.Log
}

// NewCoordinator builds a coordinator over the detected capabilities.
// Extra backends replace the defaults of the same kind, which lets hosts
// install real native or accelerator bridges.
func NewCoordinator(parent context.Context, caps Capabilities, cfg CoordinatorConfig, lg log.Log, extra ...Backend) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		caps:           caps,
		cfg:            cfg.withDefaults(),
		backends:       make(map[BackendKind]Backend, 3),
		queue:          sequence.NewPriorityQueue[*pendingTask](),
		inflight:       make(map[uuid.UUID]*pendingTask),
		history:        newLatencyHistory(),
		computeEnabled: true,
		gpuEnabled:     true,
		drainCh:        make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		lg:             lg,
	}
	c.backends[BackendInProcess] = NewInProcessBackend(caps.MaxConcurrent)
	if caps.NativeModule {
		c.backends[BackendNative] = NewBridgeBackend(BackendNative, nil)
	}
	if caps.Accelerator {
		c.backends[BackendAccelerator] = NewBridgeBackend(BackendAccelerator, nil)
	}
	for _, b := range extra {
		c.backends[b.Kind()] = b
	}
	go c.drainLoop()
	return c
}

// Capabilities returns the immutable capability probe.
func (c *Coordinator) Capabilities() Capabilities {
	return c.caps
}

// SetFeatures applies backend feature toggles; called by the adaptive
// scaler on preset changes.
func (c *Coordinator) SetFeatures(computeEnabled, gpuEnabled bool) {
	c.mu.Lock()
	c.computeEnabled = computeEnabled
	c.gpuEnabled = gpuEnabled
	c.mu.Unlock()
}

// Submit queues a task and returns the channel its single result will be
// delivered on. The channel is buffered; callers may abandon it.
func (c *Coordinator) Submit(task *Task) (<-chan Result, error) {
	if task == nil {
		return nil, fmt.Errorf("submit: nil task")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCoordinatorClosed
	}
	p := &pendingTask{
		task:   task,
		result: make(chan Result, 1),
	}
	c.seq++
	c.queue.Enqueue(p, queueKey(task.Class, c.seq))
	c.mu.Unlock()

	c.signalDrain()
	return p.result, nil
}

// QueueLen reports the number of tasks waiting for admission.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// InFlight reports the number of admitted, still-running tasks.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// LatencyStats exposes the per-(type, backend) rolling timing averages.
func (c *Coordinator) LatencyStats() []LatencyStat {
	return c.history.Stats()
}

// SelectBackend applies the routing policy to a task without executing
// it. Deterministic for fixed capabilities, toggles and latency history:
//
//  1. GPU demanded, available and the type is accelerator-eligible →
//     accelerator; demanded but unavailable is a failure, not a fallback.
//  2. Native backend available and payload above the size threshold →
//     native.
//  3. Native historical average at least 20% better than the default's
//     for this task type → native.
//  4. Default in-process backend.
func (c *Coordinator) SelectBackend(task *Task) (BackendKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectBackendLocked(task)
}

// Close stops admission and fails every queued task. In-flight tasks keep
// their slots and deliver a result, but they execute under the
// coordinator's context, which Close cancels: workloads that honor it
// abort with a failure result instead of finishing.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	queued := c.queue.Drain()
	c.mu.Unlock()

	for _, p := range queued {
		p.result <- Result{
			TaskID: p.task.ID,
			OK:     false,
			Err:    ErrCoordinatorClosed,
		}
	}
	c.cancel()
	return nil
}

func (c *Coordinator) drainLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.drainCh:
			c.drain()
		}
	}
}

// drain admits tasks while below the concurrency limit. Completion of a
// task signals another drain pass instead of recursing, so the call stack
// stays flat under high task volume.
func (c *Coordinator) drain() {
	for {
		c.mu.Lock()
		if c.closed || len(c.inflight) >= c.caps.MaxConcurrent {
			c.mu.Unlock()
			return
		}
		p, ok := c.queue.Dequeue()
		if !ok {
			c.mu.Unlock()
			return
		}

		kind, err := c.selectBackendLocked(p.task)
		if err != nil {
			c.mu.Unlock()
			p.result <- Result{
				TaskID: p.task.ID,
				OK:     false,
				Err:    err,
			}
			c.lg.Warn("task failed backend selection",
				log.String("task", p.task.ID.String()),
				log.String("type", p.task.Type.String()),
				log.Error(err))
			continue
		}
		backend := c.backends[kind]
		c.inflight[p.task.ID] = p
		c.mu.Unlock()

		go c.execute(backend, p)
	}
}

func (c *Coordinator) selectBackendLocked(task *Task) (BackendKind, error) {
	gpuAvail := c.caps.Accelerator && c.gpuEnabled
	nativeAvail := c.caps.NativeModule && c.computeEnabled

	if task.RequiresGPU {
		if gpuAvail && acceleratorEligible(task.Type) {
			return BackendAccelerator, nil
		}
		return BackendInProcess, fmt.Errorf("%w: %s task demands accelerator", ErrBackendUnavailable, task.Type)
	}
	if nativeAvail {
		if task.PayloadSize > c.cfg.SizeThreshold {
			return BackendNative, nil
		}
		nativeAvg, haveNative := c.history.Average(task.Type, BackendNative)
		defaultAvg, haveDefault := c.history.Average(task.Type, BackendInProcess)
		if haveNative && haveDefault && float64(nativeAvg) <= nativeAdvantage*float64(defaultAvg) {
			return BackendNative, nil
		}
	}
	return BackendInProcess, nil
}

func (c *Coordinator) execute(backend Backend, p *pendingTask) {
	start := time.Now()
	payload, err := backend.Execute(c.ctx, p.task)
	elapsed := time.Since(start)

	// Measured duration feeds routing regardless of success.
	c.history.Record(p.task.Type, backend.Kind(), elapsed)

	c.mu.Lock()
	delete(c.inflight, p.task.ID)
	c.mu.Unlock()

	p.result <- Result{
		TaskID:   p.task.ID,
		Backend:  backend.Kind(),
		Duration: elapsed,
		OK:       err == nil,
		Payload:  payload,
		Err:      err,
	}
	if err != nil {
		c.lg.Warn("task execution failed",
			log.String("task", p.task.ID.String()),
			log.String("type", p.task.Type.String()),
			log.String("backend", backend.Kind().String()),
			log.Duration("duration", elapsed),
			log.Error(err))
	}

	c.signalDrain()
}

func (c *Coordinator) signalDrain() {
	select {
	case c.drainCh <- struct{}{}:
	default:
	}
}

// queueKey folds the priority class and a monotonically increasing
// sequence into one ordering key: class-major, FIFO within a class.
func queueKey(class PriorityClass, seq int64) int64 {
	return int64(classCount-class)<<40 - seq
}

// acceleratorEligible lists the task types with a GPU kernel mapping:
// grid-shaped bulk work. Path queries and per-entity AI stay on the CPU
// backends.
func acceleratorEligible(t TaskType) bool {
	switch t {
	case TaskPhysics, TaskPheromone:
		return true
	default:
		return false
	}
}
