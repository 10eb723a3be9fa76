package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antscale/antscale/internal/core/lod"
)

// TaskType is the closed set of bulk per-tier workload kinds.
type TaskType uint8

const (
	TaskPhysics TaskType = iota
	TaskAI
	TaskPathfinding
	TaskPheromone

	taskTypeCount = 4
)

func (t TaskType) String() string {
	switch t {
	case TaskPhysics:
		return "physics"
	case TaskAI:
		return "ai"
	case TaskPathfinding:
		return "pathfinding"
	case TaskPheromone:
		return "pheromone"
	default:
		return fmt.Sprintf("task(%d)", uint8(t))
	}
}

// PriorityClass orders tasks in the queue: critical before high before
// medium before low, FIFO within a class.
type PriorityClass uint8

const (
	ClassCritical PriorityClass = iota
	ClassHigh
	ClassMedium
	ClassLow

	classCount = 4
)

func (c PriorityClass) String() string {
	switch c {
	case ClassCritical:
		return "critical"
	case ClassHigh:
		return "high"
	case ClassMedium:
		return "medium"
	case ClassLow:
		return "low"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Workload is the unit of work a task carries. The actual simulation
// kernels live outside this package; the coordinator only routes them.
type Workload interface {
	Run(ctx context.Context) (any, error)
}

// WorkloadFunc adapts a function to the Workload interface.
type WorkloadFunc func(ctx context.Context) (any, error)

func (f WorkloadFunc) Run(ctx context.Context) (any, error) {
	return f(ctx)
}

// ChunkedWorkload is implemented by workloads that can be split for
// data-parallel execution on the in-process backend.
type ChunkedWorkload interface {
	Workload
	Split(parts int) []Workload
}

// Task is a transient unit of bulk work, owned by the coordinator from
// submission until its result is delivered.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Class       PriorityClass
	PayloadSize int
	EstDuration time.Duration
	Tier        lod.Tier
	RequiresGPU bool
	Work        Workload
}

// Result is delivered exactly once per submitted task, for failures too.
type Result struct {
	TaskID   uuid.UUID
	Backend  BackendKind
	Duration time.Duration
	OK       bool
	Payload  any
	Err      error
}
