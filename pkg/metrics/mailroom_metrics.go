// Package metrics keeps lightweight in-process metrics: per-endpoint
// latency windows and database pool statistics, both served by the
// health endpoints.
package metrics

import (
	"database/sql"
	"sort"
	"sync"
	"time"
)

// LatencyTracker records durations over a fixed-size ring.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []int64 // microseconds
	pos     int
	count   int
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 256
	}
	return &LatencyTracker{samples: make([]int64, windowSize)}
}

func (t *LatencyTracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.pos] = d.Microseconds()
	t.pos = (t.pos + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
}

// LatencyStats summarizes a tracker window in milliseconds.
type LatencyStats struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
	MaxMs float64 `json:"max_ms"`
}

func (t *LatencyTracker) Stats() LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 {
		return LatencyStats{}
	}

	sorted := make([]int64, t.count)
	copy(sorted, t.samples[:t.count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}

	pct := func(p float64) float64 {
		idx := int(p * float64(len(sorted)-1))
		return float64(sorted[idx]) / 1000.0
	}

	return LatencyStats{
		Count: t.count,
		AvgMs: float64(sum) / float64(t.count) / 1000.0,
		P50Ms: pct(0.50),
		P95Ms: pct(0.95),
		P99Ms: pct(0.99),
		MaxMs: float64(sorted[len(sorted)-1]) / 1000.0,
	}
}

// LatencyRegistry holds one tracker per endpoint.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

func (r *LatencyRegistry) Record(endpoint string, d time.Duration) {
	r.mu.RLock()
	t, ok := r.trackers[endpoint]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if t, ok = r.trackers[endpoint]; !ok {
			t = NewLatencyTracker(r.window)
			r.trackers[endpoint] = t
		}
		r.mu.Unlock()
	}
	t.Record(d)
}

func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]LatencyStats, len(r.trackers))
	for name, t := range r.trackers {
		stats[name] = t.Stats()
	}
	return stats
}

var (
	globalRegistry     *LatencyRegistry
	globalRegistryOnce sync.Once
)

func GlobalRegistry() *LatencyRegistry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewLatencyRegistry(512)
	})
	return globalRegistry
}

func RecordLatency(endpoint string, d time.Duration) {
	GlobalRegistry().Record(endpoint, d)
}

func GetAllLatencyStats() map[string]LatencyStats {
	return GlobalRegistry().AllStats()
}

// ---- database pool monitoring ----------------------------------------------

// DBPoolStats is a snapshot of sql.DB pool counters.
type DBPoolStats struct {
	MaxOpen           int   `json:"max_open"`
	Open              int   `json:"open"`
	InUse             int   `json:"in_use"`
	Idle              int   `json:"idle"`
	WaitCount         int64 `json:"wait_count"`
	WaitDurationMs    int64 `json:"wait_duration_ms"`
	MaxIdleClosed     int64 `json:"max_idle_closed"`
	MaxLifetimeClosed int64 `json:"max_lifetime_closed"`
}

func GetDBPoolStats(db *sql.DB) DBPoolStats {
	s := db.Stats()
	return DBPoolStats{
		MaxOpen:           s.MaxOpenConnections,
		Open:              s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDurationMs:    s.WaitDuration.Milliseconds(),
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

// PoolMonitor tracks registered sql.DB pools by name.
type PoolMonitor struct {
	mu    sync.RWMutex
	pools map[string]*sql.DB
}

func NewPoolMonitor() *PoolMonitor {
	return &PoolMonitor{pools: make(map[string]*sql.DB)}
}

func (m *PoolMonitor) Register(name string, db *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[name] = db
}

func (m *PoolMonitor) AllStats() map[string]DBPoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]DBPoolStats, len(m.pools))
	for name, db := range m.pools {
		stats[name] = GetDBPoolStats(db)
	}
	return stats
}

var (
	globalMonitor     *PoolMonitor
	globalMonitorOnce sync.Once
)

func GlobalPoolMonitor() *PoolMonitor {
	globalMonitorOnce.Do(func() {
		globalMonitor = NewPoolMonitor()
	})
	return globalMonitor
}

func RegisterPool(name string, db *sql.DB) {
	GlobalPoolMonitor().Register(name, db)
}

func GetAllPoolStats() map[string]DBPoolStats {
	return GlobalPoolMonitor().AllStats()
}
