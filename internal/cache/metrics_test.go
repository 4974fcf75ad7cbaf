package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsHitRate(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 3; i++ {
		m.RecordHit(time.Millisecond)
	}
	m.RecordMiss(time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.InDelta(t, 0.75, snap.HitRate, 1e-9)
	assert.InDelta(t, 1.0, snap.AvgLatencyMs, 0.01)
}

func TestMetricsRingBufferIsBounded(t *testing.T) {
	m := NewMetrics()
	// Overflow the ring: old samples fall out, average reflects the
	// last window only.
	for i := 0; i < latencySampleCap; i++ {
		m.RecordHit(10 * time.Millisecond)
	}
	for i := 0; i < latencySampleCap; i++ {
		m.RecordHit(2 * time.Millisecond)
	}

	snap := m.Snapshot()
	assert.Equal(t, int64(2*latencySampleCap), snap.Hits)
	assert.InDelta(t, 2.0, snap.AvgLatencyMs, 0.01)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordHit(time.Millisecond)
	m.RecordMiss(time.Millisecond)
	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.Hits)
	assert.Zero(t, snap.Misses)
	assert.Zero(t, snap.HitRate)
	assert.Zero(t, snap.AvgLatencyMs)
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"
	assert.Equal(t, int64(1048576), parseUsedMemory(info))
	assert.Zero(t, parseUsedMemory("# Memory\r\n"))
}
