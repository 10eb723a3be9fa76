package compute

import (
	"sync"
	"time"
)

// latencySamples is the per-(task-type, backend) rolling sample cap.
const latencySamples = 100

type latencyKey struct {
	taskType TaskType
	backend  BackendKind
}

type latencyRing struct {
	samples []time.Duration
	idx     int
	count   int
}

func (r *latencyRing) record(d time.Duration) {
	if r.samples == nil {
		r.samples = make([]time.Duration, latencySamples)
	}
	r.samples[r.idx] = d
	r.idx = (r.idx + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

func (r *latencyRing) average() time.Duration {
	if r.count == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < r.count; i++ {
		total += r.samples[i]
	}
	return total / time.Duration(r.count)
}

// LatencyStat is one observable per-(type, backend) timing aggregate.
type LatencyStat struct {
	TaskType TaskType      `json:"task_type"`
	Backend  BackendKind   `json:"backend"`
	Samples  int           `json:"samples"`
	Average  time.Duration `json:"average"`
}

// latencyHistory keeps bounded rolling execution timings, used by the
// backend selection policy and exposed for observability.
type latencyHistory struct {
	mu    sync.RWMutex
	rings map[latencyKey]*latencyRing
}

func newLatencyHistory() *latencyHistory {
	return &latencyHistory{rings: make(map[latencyKey]*latencyRing)}
}

func (h *latencyHistory) Record(t TaskType, b BackendKind, d time.Duration) {
	key := latencyKey{taskType: t, backend: b}
	h.mu.Lock()
	ring, ok := h.rings[key]
	if !ok {
		ring = &latencyRing{}
		h.rings[key] = ring
	}
	ring.record(d)
	h.mu.Unlock()
}

// Average returns the rolling mean for the pair and whether any sample
// exists.
func (h *latencyHistory) Average(t TaskType, b BackendKind) (time.Duration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ring, ok := h.rings[latencyKey{taskType: t, backend: b}]
	if !ok || ring.count == 0 {
		return 0, false
	}
	return ring.average(), true
}

func (h *latencyHistory) Stats() []LatencyStat {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]LatencyStat, 0, len(h.rings))
	for key, ring := range h.rings {
		out = append(out, LatencyStat{
			TaskType: key.taskType,
			Backend:  key.backend,
			Samples:  ring.count,
			Average:  ring.average(),
		})
	}
	return out
}
