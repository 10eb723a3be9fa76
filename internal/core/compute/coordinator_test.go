package compute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antscale/antscale/internal/core/observability/log"
)

func newTestCoordinator(t *testing.T, caps Capabilities) *Coordinator {
	t.Helper()
	c := NewCoordinator(context.Background(), caps, CoordinatorConfig{}, log.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task result")
		return Result{}
	}
}

func TestCoordinator_SelectBackendRouting(t *testing.T) {
	caps := Capabilities{Accelerator: true, NativeModule: true, MaxConcurrent: 4}
	c := newTestCoordinator(t, caps)

	cases := []struct {
		name string
		task *Task
		want BackendKind
	}{
		{"gpu-eligible physics", &Task{Type: TaskPhysics, RequiresGPU: true}, BackendAccelerator},
		{"gpu-eligible pheromone", &Task{Type: TaskPheromone, RequiresGPU: true}, BackendAccelerator},
		{"large pathfinding batch", &Task{Type: TaskPathfinding, PayloadSize: 5000}, BackendNative},
		{"small batch defaults in-process", &Task{Type: TaskAI, PayloadSize: 10}, BackendInProcess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.SelectBackend(tc.task)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			// Same inputs, same decision.
			for i := 0; i < 5; i++ {
				again, err := c.SelectBackend(tc.task)
				require.NoError(t, err)
				require.Equal(t, got, again)
			}
		})
	}
}

func TestCoordinator_GPUDemandNeverFallsBack(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 2})

	_, err := c.SelectBackend(&Task{Type: TaskPhysics, RequiresGPU: true})
	require.ErrorIs(t, err, ErrBackendUnavailable)

	// Ineligible task types fail even with an accelerator present.
	withGPU := newTestCoordinator(t, Capabilities{Accelerator: true, MaxConcurrent: 2})
	_, err = withGPU.SelectBackend(&Task{Type: TaskPathfinding, RequiresGPU: true})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestCoordinator_GPUDemandFailureDeliversResult(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 2})

	ch, err := c.Submit(&Task{
		Type:        TaskPhysics,
		Class:       ClassCritical,
		RequiresGPU: true,
		Work:        WorkloadFunc(func(context.Context) (any, error) { return nil, nil }),
	})
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrBackendUnavailable)
}

func TestCoordinator_LatencyHistorySwaysRouting(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{NativeModule: true, MaxConcurrent: 2})

	task := &Task{Type: TaskAI, PayloadSize: 10}
	got, err := c.SelectBackend(task)
	require.NoError(t, err)
	require.Equal(t, BackendInProcess, got, "no history yet")

	// Native has proven at least 20% faster for this task type.
	c.history.Record(TaskAI, BackendNative, 10*time.Millisecond)
	c.history.Record(TaskAI, BackendInProcess, 50*time.Millisecond)

	got, err = c.SelectBackend(task)
	require.NoError(t, err)
	require.Equal(t, BackendNative, got)

	// A marginal advantage is not worth the switch.
	marginal := newTestCoordinator(t, Capabilities{NativeModule: true, MaxConcurrent: 2})
	marginal.history.Record(TaskAI, BackendNative, 46*time.Millisecond)
	marginal.history.Record(TaskAI, BackendInProcess, 50*time.Millisecond)
	got, err = marginal.SelectBackend(task)
	require.NoError(t, err)
	require.Equal(t, BackendInProcess, got)
}

func TestCoordinator_FeatureTogglesDisableBackends(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{Accelerator: true, NativeModule: true, MaxConcurrent: 2})
	c.SetFeatures(false, false)

	got, err := c.SelectBackend(&Task{Type: TaskPathfinding, PayloadSize: 5000})
	require.NoError(t, err)
	require.Equal(t, BackendInProcess, got, "native disabled")

	_, err = c.SelectBackend(&Task{Type: TaskPhysics, RequiresGPU: true})
	require.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestCoordinator_SubmitDeliversResult(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 2})

	ch, err := c.Submit(&Task{
		Type:  TaskAI,
		Class: ClassMedium,
		Work:  WorkloadFunc(func(context.Context) (any, error) { return 42, nil }),
	})
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.True(t, res.OK)
	require.NoError(t, res.Err)
	require.Equal(t, 42, res.Payload)
	require.Equal(t, BackendInProcess, res.Backend)
	require.GreaterOrEqual(t, res.Duration, time.Duration(0))
}

func TestCoordinator_WorkloadErrorsStillDeliver(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 2})
	boom := errors.New("kernel exploded")

	ch, err := c.Submit(&Task{
		Type:  TaskPhysics,
		Class: ClassHigh,
		Work:  WorkloadFunc(func(context.Context) (any, error) { return nil, boom }),
	})
	require.NoError(t, err)

	res := waitResult(t, ch)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, boom)

	// The coordinator keeps accepting work after a failure.
	ch, err = c.Submit(&Task{
		Type:  TaskPhysics,
		Class: ClassHigh,
		Work:  WorkloadFunc(func(context.Context) (any, error) { return "ok", nil }),
	})
	require.NoError(t, err)
	require.True(t, waitResult(t, ch).OK)
}

func TestCoordinator_ConcurrencyBound(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 1})

	gate := make(chan struct{})
	blocker := WorkloadFunc(func(context.Context) (any, error) {
		<-gate
		return nil, nil
	})

	var channels []<-chan Result
	for i := 0; i < 3; i++ {
		ch, err := c.Submit(&Task{Type: TaskAI, Class: ClassMedium, Work: blocker})
		require.NoError(t, err)
		channels = append(channels, ch)
	}

	require.Eventually(t, func() bool {
		return c.InFlight() == 1 && c.QueueLen() == 2
	}, 2*time.Second, 5*time.Millisecond, "one admitted, the rest queued")

	close(gate)
	for _, ch := range channels {
		require.True(t, waitResult(t, ch).OK)
	}
	require.Zero(t, c.InFlight())
	require.Zero(t, c.QueueLen())
}

// With a single execution slot held by a blocker, later submissions run
// class-major and FIFO within a class regardless of submission order.
func TestCoordinator_ClassMajorFIFOOrdering(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 1})

	gate := make(chan struct{})
	_, err := c.Submit(&Task{Type: TaskAI, Class: ClassCritical, Work: WorkloadFunc(func(context.Context) (any, error) {
		<-gate
		return nil, nil
	})})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	var mu sync.Mutex
	var order []string
	tracked := func(name string) Workload {
		return WorkloadFunc(func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		})
	}

	var channels []<-chan Result
	for _, sub := range []struct {
		name  string
		class PriorityClass
	}{
		{"low", ClassLow},
		{"critical-1", ClassCritical},
		{"medium", ClassMedium},
		{"critical-2", ClassCritical},
		{"high", ClassHigh},
	} {
		ch, err := c.Submit(&Task{Type: TaskAI, Class: sub.class, Work: tracked(sub.name)})
		require.NoError(t, err)
		channels = append(channels, ch)
	}

	close(gate)
	for _, ch := range channels {
		require.True(t, waitResult(t, ch).OK)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"critical-1", "critical-2", "high", "medium", "low"}, order)
}

func TestCoordinator_ExecutionFeedsLatencyHistory(t *testing.T) {
	c := newTestCoordinator(t, Capabilities{MaxConcurrent: 2})

	ch, err := c.Submit(&Task{
		Type:  TaskPheromone,
		Class: ClassLow,
		Work:  WorkloadFunc(func(context.Context) (any, error) { return nil, nil }),
	})
	require.NoError(t, err)
	waitResult(t, ch)

	stats := c.LatencyStats()
	require.Len(t, stats, 1)
	require.Equal(t, TaskPheromone, stats[0].TaskType)
	require.Equal(t, BackendInProcess, stats[0].Backend)
	require.Equal(t, 1, stats[0].Samples)
}

func TestCoordinator_CloseFailsQueuedTasks(t *testing.T) {
	c := NewCoordinator(context.Background(), Capabilities{MaxConcurrent: 1}, CoordinatorConfig{}, log.Nop())

	gate := make(chan struct{})
	running, err := c.Submit(&Task{Type: TaskAI, Class: ClassCritical, Work: WorkloadFunc(func(context.Context) (any, error) {
		<-gate
		return "done", nil
	})})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	queued, err := c.Submit(&Task{Type: TaskAI, Class: ClassLow, Work: WorkloadFunc(func(context.Context) (any, error) {
		return nil, nil
	})})
	require.NoError(t, err)

	require.NoError(t, c.Close())

	res := waitResult(t, queued)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, ErrCoordinatorClosed)

	// The in-flight task still runs to completion.
	close(gate)
	res = waitResult(t, running)
	require.True(t, res.OK)
	require.Equal(t, "done", res.Payload)

	_, err = c.Submit(&Task{Type: TaskAI, Work: WorkloadFunc(func(context.Context) (any, error) { return nil, nil })})
	require.ErrorIs(t, err, ErrCoordinatorClosed)
	require.NoError(t, c.Close(), "close is idempotent")
}

// Close cancels the execution context, so an in-flight workload that
// honors it aborts and still delivers its failure result.
func TestCoordinator_CloseCancelsInFlightContext(t *testing.T) {
	c := NewCoordinator(context.Background(), Capabilities{MaxConcurrent: 1}, CoordinatorConfig{}, log.Nop())

	started := make(chan struct{})
	ch, err := c.Submit(&Task{Type: TaskAI, Class: ClassHigh, Work: WorkloadFunc(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}
	require.NoError(t, c.Close())

	res := waitResult(t, ch)
	require.False(t, res.OK)
	require.ErrorIs(t, res.Err, context.Canceled)
}

func TestQueueKeyOrdering(t *testing.T) {
	// Higher key dequeues first: class-major, FIFO within a class.
	require.Greater(t, queueKey(ClassCritical, 5), queueKey(ClassHigh, 1))
	require.Greater(t, queueKey(ClassHigh, 1), queueKey(ClassHigh, 2))
	require.Greater(t, queueKey(ClassMedium, 100), queueKey(ClassLow, 1))
}

func TestAcceleratorEligibility(t *testing.T) {
	if !acceleratorEligible(TaskPhysics) || !acceleratorEligible(TaskPheromone) {
		t.Error("grid-shaped work should be accelerator-eligible")
	}
	if acceleratorEligible(TaskAI) || acceleratorEligible(TaskPathfinding) {
		t.Error("per-entity work should stay on CPU backends")
	}
}
