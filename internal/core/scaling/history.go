package scaling

import (
	"time"

	"github.com/antscale/antscale/internal/core/lod"
)

// PerformanceSnapshot is one rolling measurement of the simulation's
// health, appended each tick.
type PerformanceSnapshot struct {
	Time               time.Time          `json:"time"`
	FPS                float64            `json:"fps"`
	FrameTime          time.Duration      `json:"frame_time"`
	CPU                float64            `json:"cpu"`
	Memory             float64            `json:"memory"`
	EntityCount        int                `json:"entity_count"`
	TierDistribution   map[lod.Tier]int   `json:"tier_distribution"`
	BackendUtilization map[string]float64 `json:"backend_utilization"`
}

// Trend classifies how performance is moving between sampling windows.
type Trend int8

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

func (t Trend) String() string {
	switch t {
	case TrendImproving:
		return "improving"
	case TrendDegrading:
		return "degrading"
	default:
		return "stable"
	}
}

// History is a bounded ring of performance snapshots, oldest evicted first.
type History struct {
	buf   []PerformanceSnapshot
	start int
	count int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 120
	}
	return &History{buf: make([]PerformanceSnapshot, capacity)}
}

func (h *History) Append(s PerformanceSnapshot) {
	idx := (h.start + h.count) % len(h.buf)
	h.buf[idx] = s
	if h.count < len(h.buf) {
		h.count++
	} else {
		h.start = (h.start + 1) % len(h.buf)
	}
}

func (h *History) Len() int {
	return h.count
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (PerformanceSnapshot, bool) {
	if h.count == 0 {
		return PerformanceSnapshot{}, false
	}
	return h.at(h.count - 1), true
}

// Recent returns up to n most recent snapshots, oldest first.
func (h *History) Recent(n int) []PerformanceSnapshot {
	if n > h.count {
		n = h.count
	}
	out := make([]PerformanceSnapshot, n)
	for i := 0; i < n; i++ {
		out[i] = h.at(h.count - n + i)
	}
	return out
}

func (h *History) at(i int) PerformanceSnapshot {
	return h.buf[(h.start+i)%len(h.buf)]
}

// ClassifyTrend compares the mean FPS of the most recent window against
// the window preceding it. A relative change beyond threshold flips the
// trend; anything less is stable, as is insufficient history.
func (h *History) ClassifyTrend(window int, threshold float64) Trend {
	if window <= 0 || h.count < 2*window {
		return TrendStable
	}
	recent := h.meanFPS(h.count-window, h.count)
	previous := h.meanFPS(h.count-2*window, h.count-window)
	if previous <= 0 {
		return TrendStable
	}
	change := (recent - previous) / previous
	switch {
	case change > threshold:
		return TrendImproving
	case change < -threshold:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func (h *History) meanFPS(from, to int) float64 {
	if to <= from {
		return 0
	}
	total := 0.0
	for i := from; i < to; i++ {
		total += h.at(i).FPS
	}
	return total / float64(to-from)
}
