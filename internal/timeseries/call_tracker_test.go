package timeseries

import (
	"sync"
	"testing"
	"time"
)

// mockClock provides deterministic time for testing.
type mockClock struct {
	mu   sync.Mutex
	time time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{time: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = c.time.Add(d)
}

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// step advances one second at rate calls/s, observing the raw total.
func step(clock *mockClock, tracker *CallTracker, raw *int64, rate int64) {
	*raw += rate
	tracker.Observe(*raw)
	clock.Advance(time.Second)
	tracker.RecordSample()
}

// TestCallTracker_Observe tests folding of raw totals into a monotonic count.
func TestCallTracker_Observe(t *testing.T) {
	tests := []struct {
		name     string
		raw      []int64
		expected int64
	}{
		{name: "single", raw: []int64{100}, expected: 100},
		{name: "increasing", raw: []int64{100, 250, 400}, expected: 400},
		{name: "repeated", raw: []int64{100, 100, 100}, expected: 100},
		{name: "drop then grow", raw: []int64{500, 200, 300}, expected: 600},
		{name: "drop to zero", raw: []int64{50, 0, 10}, expected: 60},
		{name: "nothing", raw: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewCallTrackerWithClock(newMockClock(baseTime))
			for _, r := range tt.raw {
				tracker.Observe(r)
			}
			if got := tracker.GetStats().Total; got != tt.expected {
				t.Errorf("Total = %d, want %d", got, tt.expected)
			}
		})
	}
}

// TestCallTracker_RollingAverage tests rolling averages with deterministic time.
func TestCallTracker_RollingAverage(t *testing.T) {
	t.Run("constant rate", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for range 10 {
			step(clock, tracker, &raw, 100)
		}

		stats := tracker.GetStats()
		if stats.Avg1s < 90 || stats.Avg1s > 110 {
			t.Errorf("Avg1s = %f, want ~100", stats.Avg1s)
		}
		if stats.AvgOverall < 90 || stats.AvgOverall > 110 {
			t.Errorf("AvgOverall = %f, want ~100", stats.AvgOverall)
		}
	})

	t.Run("increasing rate", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for i := int64(1); i <= 10; i++ {
			step(clock, tracker, &raw, i*100)
		}

		stats := tracker.GetStats()
		if stats.Avg1s < 900 || stats.Avg1s > 1100 {
			t.Errorf("Avg1s = %f, want ~1000", stats.Avg1s)
		}
		if stats.Total != 5500 {
			t.Errorf("Total = %d, want 5500", stats.Total)
		}
	})

	t.Run("burst then idle", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		tracker.Observe(10000)
		tracker.RecordSample()
		for range 10 {
			clock.Advance(time.Second)
			tracker.RecordSample()
		}

		stats := tracker.GetStats()
		if stats.Avg1s > 1 {
			t.Errorf("Avg1s = %f, want ~0", stats.Avg1s)
		}
		if stats.Total != 10000 {
			t.Errorf("Total = %d, want 10000", stats.Total)
		}
	})

	t.Run("instance removal does not produce negative rates", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for range 5 {
			step(clock, tracker, &raw, 100)
		}
		// An instance holding 300 calls is removed.
		raw -= 300
		tracker.Observe(raw)
		clock.Advance(time.Second)
		tracker.RecordSample()

		stats := tracker.GetStats()
		if stats.Avg1s < 0 || stats.Avg30s < 0 {
			t.Errorf("negative rate after removal: %+v", stats)
		}
		if stats.Total != 500 {
			t.Errorf("Total = %d, want 500", stats.Total)
		}
	})
}

// TestCallTracker_WindowEdgeCases tests edge cases for window calculations.
func TestCallTracker_WindowEdgeCases(t *testing.T) {
	t.Run("fresh tracker has zero rates", func(t *testing.T) {
		tracker := NewCallTrackerWithClock(newMockClock(baseTime))

		stats := tracker.GetStats()
		if stats.Total != 0 || stats.Avg1s != 0 || stats.AvgOverall != 0 {
			t.Errorf("fresh stats = %+v, want zeros", stats)
		}
	})

	t.Run("all windows consistent", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for range 60 {
			step(clock, tracker, &raw, 1000)
		}

		stats := tracker.GetStats()
		windows := []struct {
			name string
			avg  float64
		}{
			{"Avg1s", stats.Avg1s},
			{"Avg30s", stats.Avg30s},
			{"Avg60s", stats.Avg60s},
			{"Avg300s", stats.Avg300s},
			{"AvgOverall", stats.AvgOverall},
		}
		for _, w := range windows {
			if w.avg < 900 || w.avg > 1100 {
				t.Errorf("%s = %f, want ~1000", w.name, w.avg)
			}
		}
	})
}

// TestCallTracker_RingBufferOverflow tests buffer wraparound correctness.
func TestCallTracker_RingBufferOverflow(t *testing.T) {
	t.Run("buffer fills exactly", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for range ringBufferSize - 1 {
			step(clock, tracker, &raw, 100)
		}
		if tracker.SampleCount() != ringBufferSize {
			t.Errorf("SampleCount = %d, want %d", tracker.SampleCount(), ringBufferSize)
		}
	})

	t.Run("buffer wraps multiple times", func(t *testing.T) {
		clock := newMockClock(baseTime)
		tracker := NewCallTrackerWithClock(clock)

		var raw int64
		for range 2 * ringBufferSize {
			step(clock, tracker, &raw, 1000)
		}
		if tracker.SampleCount() != ringBufferSize {
			t.Errorf("SampleCount = %d, want %d", tracker.SampleCount(), ringBufferSize)
		}

		stats := tracker.GetStats()
		if stats.Avg300s < 900 || stats.Avg300s > 1100 {
			t.Errorf("Avg300s = %f, want ~1000", stats.Avg300s)
		}
		if stats.Total != int64(2*ringBufferSize)*1000 {
			t.Errorf("Total = %d, want %d", stats.Total, 2*ringBufferSize*1000)
		}
	})
}

// TestCallTracker_Concurrent tests thread safety with concurrent writers and readers.
func TestCallTracker_Concurrent(t *testing.T) {
	clock := newMockClock(baseTime)
	tracker := NewCallTrackerWithClock(clock)

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				switch g {
				case 0:
					tracker.Observe(int64(i))
				case 1:
					tracker.RecordSample()
				default:
					_ = tracker.GetStats()
				}
			}
		}()
	}
	wg.Wait()

	if got := tracker.GetStats().Total; got != 499 {
		t.Errorf("Total = %d, want 499", got)
	}
}

// TestCallTracker_Reset tests that Reset clears all state.
func TestCallTracker_Reset(t *testing.T) {
	clock := newMockClock(baseTime)
	tracker := NewCallTrackerWithClock(clock)

	var raw int64
	for range 10 {
		step(clock, tracker, &raw, 100)
	}

	tracker.Reset()

	stats := tracker.GetStats()
	if stats.Total != 0 {
		t.Errorf("Total after reset = %d, want 0", stats.Total)
	}
	if tracker.SampleCount() != 1 {
		t.Errorf("SampleCount after reset = %d, want 1", tracker.SampleCount())
	}

	// A raw total below the pre-reset value counts from zero again.
	tracker.Observe(50)
	if got := tracker.GetStats().Total; got != 50 {
		t.Errorf("Total = %d, want 50", got)
	}
}
