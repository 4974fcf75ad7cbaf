package cache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// latencySampleCap bounds the ring buffer so a hot cache cannot grow the
// window without limit.
const latencySampleCap = 1000

// Metrics is the in-memory hit/miss window with a bounded latency ring
// buffer. Reset clears counters without touching live cache entries.
type Metrics struct {
	mu          sync.Mutex
	hits        int64
	misses      int64
	samples     []time.Duration
	next        int
	filled      bool
	windowStart time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		samples:     make([]time.Duration, latencySampleCap),
		windowStart: time.Now().UTC(),
	}
}

func (m *Metrics) RecordHit(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
	m.record(latency)
}

func (m *Metrics) RecordMiss(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
	m.record(latency)
}

func (m *Metrics) record(latency time.Duration) {
	m.samples[m.next] = latency
	m.next++
	if m.next == latencySampleCap {
		m.next = 0
		m.filled = true
	}
}

func (m *Metrics) Snapshot() models.CacheMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.filled {
		n = latencySampleCap
	}
	var total time.Duration
	for i := 0; i < n; i++ {
		total += m.samples[i]
	}
	var avgMs float64
	if n > 0 {
		avgMs = float64(total.Microseconds()) / float64(n) / 1000.0
	}

	var hitRate float64
	if m.hits+m.misses > 0 {
		hitRate = float64(m.hits) / float64(m.hits+m.misses)
	}

	return models.CacheMetricsSnapshot{
		Hits:         m.hits,
		Misses:       m.misses,
		HitRate:      hitRate,
		AvgLatencyMs: avgMs,
		WindowStart:  m.windowStart,
		TakenAt:      time.Now().UTC(),
	}
}

// Reset clears the window counters and samples.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = 0
	m.misses = 0
	m.next = 0
	m.filled = false
	m.windowStart = time.Now().UTC()
}

func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
