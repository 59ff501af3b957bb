// Package timeseries provides time-windowed rate tracking over cumulative
// counters.
//
// SIPp reports calls created as a cumulative counter per process. The
// swarm total can drop when an instance is removed, so CallTracker folds
// observations into a monotonic count and computes rolling averages over
// 1s, 30s, 60s and 300s windows from periodic samples.
package timeseries

import (
	"sync"
	"time"
)

const (
	// ringBufferSize is the number of samples to retain (5 minutes at 1 sample/sec)
	ringBufferSize = 300

	window1s   = 1 * time.Second
	window30s  = 30 * time.Second
	window60s  = 60 * time.Second
	window300s = 300 * time.Second
)

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	timestamp time.Time
	total     int64
}

// CallTracker tracks a monotonic call count and computes rolling rates.
//
// Usage:
//
//	tracker := NewCallTracker()
//	tracker.Observe(swarmTotal) // latest cumulative total, any order
//	tracker.RecordSample()      // periodically, e.g. every poll
//	rates := tracker.GetStats()
type CallTracker struct {
	mu sync.RWMutex

	total    int64 // monotonic
	last     int64 // last observed raw total
	samples  []sample
	writeIdx int

	startTime time.Time
	clock     Clock
}

// RateStats contains rolling averages at a point in time.
type RateStats struct {
	Total int64

	// Rolling averages (calls per second)
	Avg1s   float64
	Avg30s  float64
	Avg60s  float64
	Avg300s float64

	// AvgOverall is the average since tracking started
	AvgOverall float64
}

// NewCallTracker creates a tracker with the real clock.
func NewCallTracker() *CallTracker {
	return NewCallTrackerWithClock(realClock{})
}

// NewCallTrackerWithClock creates a tracker with a custom clock for testing.
func NewCallTrackerWithClock(clock Clock) *CallTracker {
	now := clock.Now()
	t := &CallTracker{
		samples:   make([]sample, 0, ringBufferSize),
		startTime: now,
		clock:     clock,
	}
	t.samples = append(t.samples, sample{timestamp: now})
	return t
}

// Observe folds a raw cumulative total into the tracked count. Increases
// are added; a decrease only lowers the baseline, so the tracked count
// never goes down.
func (t *CallTracker) Observe(raw int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if raw > t.last {
		t.total += raw - t.last
	}
	t.last = raw
}

// RecordSample records the current count with a timestamp.
func (t *CallTracker) RecordSample() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s := sample{timestamp: now, total: t.total}
	if len(t.samples) < ringBufferSize {
		t.samples = append(t.samples, s)
		return
	}
	// Buffer full - overwrite oldest
	t.samples[t.writeIdx] = s
	t.writeIdx = (t.writeIdx + 1) % ringBufferSize
}

// GetStats computes the current rates. Windows longer than the recorded
// history use the oldest sample available.
func (t *CallTracker) GetStats() RateStats {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := RateStats{Total: t.total}

	if elapsed := now.Sub(t.startTime).Seconds(); elapsed > 0 {
		stats.AvgOverall = float64(t.total) / elapsed
	}

	stats.Avg1s = t.avgOverWindow(now, window1s)
	stats.Avg30s = t.avgOverWindow(now, window30s)
	stats.Avg60s = t.avgOverWindow(now, window60s)
	stats.Avg300s = t.avgOverWindow(now, window300s)

	return stats
}

// avgOverWindow returns calls/sec since the sample closest to (but not
// after) now-window. Must be called with mu held.
func (t *CallTracker) avgOverWindow(now time.Time, window time.Duration) float64 {
	target := now.Add(-window)

	var best *sample
	var bestDiff time.Duration = -1
	for i := range t.samples {
		s := &t.samples[i]
		if s.timestamp.After(target) {
			continue
		}
		if diff := target.Sub(s.timestamp); bestDiff < 0 || diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	if best == nil {
		best = t.oldestSample()
	}
	if best == nil {
		return 0
	}

	elapsed := now.Sub(best.timestamp).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.total-best.total) / elapsed
}

// oldestSample must be called with mu held.
func (t *CallTracker) oldestSample() *sample {
	if len(t.samples) == 0 {
		return nil
	}
	if len(t.samples) < ringBufferSize {
		return &t.samples[0]
	}
	return &t.samples[t.writeIdx]
}

// Reset clears all data and restarts tracking.
func (t *CallTracker) Reset() {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = 0
	t.last = 0
	t.samples = append(t.samples[:0], sample{timestamp: now})
	t.writeIdx = 0
	t.startTime = now
}

// SampleCount returns the number of samples in the ring buffer.
func (t *CallTracker) SampleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}
