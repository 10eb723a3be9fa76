package scaling

import "runtime"

// ResourceSampler supplies CPU and memory utilization estimates for
// scaling decisions. Both values are ratios in [0, 1].
//
// Host applications with real telemetry (cgroup stats, OS counters)
// should plug their own implementation in here.
type ResourceSampler interface {
	CPU() float64
	Memory() float64
}

// RuntimeSampler measures heap usage against a fixed byte budget using
// runtime.ReadMemStats. It reports no CPU estimate; without an OS-level
// counter any number here would be a guess, so it stays at zero and the
// FPS-based rules carry the decision.
type RuntimeSampler struct {
	MemoryBudget uint64
}

func NewRuntimeSampler(memoryBudget uint64) *RuntimeSampler {
	if memoryBudget == 0 {
		memoryBudget = 2 << 30
	}
	return &RuntimeSampler{MemoryBudget: memoryBudget}
}

func (s *RuntimeSampler) CPU() float64 {
	return 0
}

func (s *RuntimeSampler) Memory() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ratio := float64(m.HeapAlloc) / float64(s.MemoryBudget)
	if ratio > 1 {
		return 1
	}
	return ratio
}
