package compute

import (
	"context"
	"fmt"
	"runtime"

	"github.com/antscale/antscale/pkg/concurrent"
)

// BackendKind identifies an execution target.
type BackendKind uint8

const (
	BackendInProcess BackendKind = iota
	BackendNative
	BackendAccelerator
)

func (k BackendKind) String() string {
	switch k {
	case BackendInProcess:
		return "inprocess"
	case BackendNative:
		return "native"
	case BackendAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("backend(%d)", uint8(k))
	}
}

// Backend executes a task's workload. Implementations are opaque
// execution targets; the coordinator only cares about routing and timing.
type Backend interface {
	Kind() BackendKind
	Execute(ctx context.Context, task *Task) (any, error)
}

// InProcessBackend runs workloads on the Go runtime. Chunkable workloads
// are split across the CPUs and executed in parallel.
type InProcessBackend struct {
	workers int
}

func NewInProcessBackend(workers int) *InProcessBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &InProcessBackend{workers: workers}
}

func (b *InProcessBackend) Kind() BackendKind {
	return BackendInProcess
}

func (b *InProcessBackend) Execute(ctx context.Context, task *Task) (any, error) {
	if task.Work == nil {
		return nil, ErrNilWorkload
	}
	chunked, ok := task.Work.(ChunkedWorkload)
	if !ok {
		return task.Work.Run(ctx)
	}

	parts := chunked.Split(b.workers)
	if len(parts) <= 1 {
		return task.Work.Run(ctx)
	}

	// Each goroutine writes a distinct index; no locking needed.
	results := make([]any, len(parts))
	type indexed struct {
		i int
		w Workload
	}
	work := make([]indexed, len(parts))
	for i, w := range parts {
		work[i] = indexed{i: i, w: w}
	}
	err := concurrent.ForEach(work, func(item indexed) error {
		out, err := item.w.Run(ctx)
		if err != nil {
			return err
		}
		results[item.i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BridgeFunc hands a task to an out-of-process or native execution
// target and returns its payload.
type BridgeFunc func(ctx context.Context, task *Task) (any, error)

// BridgeBackend wraps an external execution target (native-code module,
// GPU accelerator) behind the uniform Backend interface. When no bridge
// is installed it falls back to running the workload in-process, which
// keeps routing observable in hosts without the real kernels.
type BridgeBackend struct {
	kind   BackendKind
	bridge BridgeFunc
}

func NewBridgeBackend(kind BackendKind, bridge BridgeFunc) *BridgeBackend {
	return &BridgeBackend{kind: kind, bridge: bridge}
}

func (b *BridgeBackend) Kind() BackendKind {
	return b.kind
}

func (b *BridgeBackend) Execute(ctx context.Context, task *Task) (any, error) {
	if b.bridge != nil {
		return b.bridge(ctx, task)
	}
	if task.Work == nil {
		return nil, ErrNilWorkload
	}
	return task.Work.Run(ctx)
}
