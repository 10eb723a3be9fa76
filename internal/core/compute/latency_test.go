package compute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyHistory_Average(t *testing.T) {
	h := newLatencyHistory()

	_, ok := h.Average(TaskAI, BackendNative)
	require.False(t, ok, "no samples yet")

	h.Record(TaskAI, BackendNative, 10*time.Millisecond)
	h.Record(TaskAI, BackendNative, 30*time.Millisecond)

	avg, ok := h.Average(TaskAI, BackendNative)
	require.True(t, ok)
	require.Equal(t, 20*time.Millisecond, avg)

	// Pairs are independent.
	_, ok = h.Average(TaskAI, BackendInProcess)
	require.False(t, ok)
	_, ok = h.Average(TaskPhysics, BackendNative)
	require.False(t, ok)
}

func TestLatencyHistory_BoundedSamples(t *testing.T) {
	h := newLatencyHistory()

	// 150 slow samples then 100 fast ones: the ring must forget the slow era.
	for i := 0; i < 150; i++ {
		h.Record(TaskPhysics, BackendInProcess, time.Second)
	}
	for i := 0; i < latencySamples; i++ {
		h.Record(TaskPhysics, BackendInProcess, time.Millisecond)
	}

	avg, ok := h.Average(TaskPhysics, BackendInProcess)
	require.True(t, ok)
	require.Equal(t, time.Millisecond, avg)

	stats := h.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, latencySamples, stats[0].Samples)
}
