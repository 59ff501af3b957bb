// Package stats aggregates SIPp telemetry across instances for the
// dashboard and the exit summary.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-sipp-swarm/internal/timeseries"
)

// InstanceStats is the aggregator's view of one instance.
type InstanceStats struct {
	Name  string
	State supervisor.State

	// From the latest snapshot of the current process
	TargetRate      int
	CallRate        float64
	CurrentCalls    int
	Retransmissions int
	ResponseTime    time.Duration
	LastUpdate      time.Time

	// Totals across every process the instance has run
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	Starts          int
	LastExitCode    int

	Snapshots int64
}

// AggregatedStats holds swarm-wide statistics.
type AggregatedStats struct {
	Timestamp time.Time
	Elapsed   time.Duration

	// Instance counts
	TotalInstances     int
	RunningInstances   int
	StartingOrStopping int
	StoppedInstances   int

	// Rates (sum of the latest periodic values)
	TargetRate float64
	CallRate   float64

	// Calls
	CurrentCalls    int64
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	SuccessRate     float64 // successful / (successful + failed), 0..1
	AverageCallRate float64 // TotalCalls / Elapsed

	// Rolling calls-created rates, updated by Sample
	CreatedRates timeseries.RateStats

	// Errors
	Retransmissions      int64 // last period
	RetransmissionsTotal int64
	Failures             map[string]int64

	// Response time, from the merged periodic histograms
	ResponseTimeP50 time.Duration
	ResponseTimeP95 time.Duration
	ResponseTimeP99 time.Duration
	ResponseTimes   []parser.Bucket

	TotalSnapshots int64
}

// instanceState is the mutable record behind InstanceStats.
type instanceState struct {
	stats InstanceStats

	latest *parser.Snapshot

	// Cumulative counters of exited processes
	retiredCalls      int64
	retiredSuccessful int64
	retiredFailed     int64
	retiredRetrans    int64

	failures    map[string]int64
	retransmits int64 // periodic sum of the current process
}

// StatsAggregator tracks per-instance telemetry fed by worker callbacks.
//
// Thread-safe: all methods can be called concurrently.
type StatsAggregator struct {
	mu        sync.RWMutex
	instances map[string]*instanceState
	startTime time.Time
	now       func() time.Time

	calls *timeseries.CallTracker
}

// NewStatsAggregator creates a new aggregator.
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{
		instances: make(map[string]*instanceState),
		startTime: time.Now(),
		now:       time.Now,
		calls:     timeseries.NewCallTracker(),
	}
}

// Sample records the swarm's calls-created total for the rolling rates.
// Call it periodically.
func (a *StatsAggregator) Sample() {
	a.mu.RLock()
	var total int64
	for _, st := range a.instances {
		total += st.stats.TotalCalls
	}
	a.mu.RUnlock()

	a.calls.Observe(total)
	a.calls.RecordSample()
}

// Callbacks returns worker callbacks that feed the aggregator, chaining next.
func (a *StatsAggregator) Callbacks(next supervisor.Callbacks) supervisor.Callbacks {
	return supervisor.Callbacks{
		OnStateChange: func(name string, old, new supervisor.State) {
			a.SetState(name, new)
			if next.OnStateChange != nil {
				next.OnStateChange(name, old, new)
			}
		},
		OnStart: func(name string, pid int) {
			a.RecordStart(name)
			if next.OnStart != nil {
				next.OnStart(name, pid)
			}
		},
		OnExit: func(name string, code int, uptime time.Duration) {
			a.RecordExit(name, code)
			if next.OnExit != nil {
				next.OnExit(name, code, uptime)
			}
		},
		OnSnapshot: func(name string, snap *parser.Snapshot) {
			a.Record(name, snap)
			if next.OnSnapshot != nil {
				next.OnSnapshot(name, snap)
			}
		},
	}
}

func (a *StatsAggregator) get(name string) *instanceState {
	st, ok := a.instances[name]
	if !ok {
		st = &instanceState{
			stats:    InstanceStats{Name: name, LastExitCode: -1},
			failures: make(map[string]int64),
		}
		a.instances[name] = st
	}
	return st
}

// Record ingests a decoded statistics line of instance name.
func (a *StatsAggregator) Record(name string, snap *parser.Snapshot) {
	if snap == nil || snap.IsEmpty() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.get(name)
	st.latest = snap
	st.stats.Snapshots++
	st.stats.LastUpdate = a.now()
	st.stats.TargetRate = snap.TargetRate()
	st.stats.CallRate = snap.CallRate()
	st.stats.CurrentCalls = snap.CurrentCall()
	st.stats.Retransmissions = snap.Retransmissions()
	if d, err := snap.ResponseTime(); err == nil {
		st.stats.ResponseTime = d
	}

	if r := snap.Retransmissions(); r > 0 {
		st.retransmits += int64(r)
	}
	for label, n := range snap.Failures() {
		if n > 0 {
			st.failures[label] += int64(n)
		}
	}
	st.refreshTotals()
}

// refreshTotals recomputes the cross-process totals.
func (st *instanceState) refreshTotals() {
	st.stats.TotalCalls = st.retiredCalls
	st.stats.SuccessfulCalls = st.retiredSuccessful
	st.stats.FailedCalls = st.retiredFailed
	if st.latest == nil {
		return
	}
	st.stats.TotalCalls += nonNegative(st.latest.TotalCallCreated())
	st.stats.SuccessfulCalls += nonNegative(st.latest.SuccessfulCallCumulative())
	st.stats.FailedCalls += nonNegative(st.latest.FailedCallCumulative())
}

// SetState records a worker state transition.
func (a *StatsAggregator) SetState(name string, state supervisor.State) {
	a.mu.Lock()
	a.get(name).stats.State = state
	a.mu.Unlock()
}

// RecordStart counts a successful worker start.
func (a *StatsAggregator) RecordStart(name string) {
	a.mu.Lock()
	a.get(name).stats.Starts++
	a.mu.Unlock()
}

// RecordExit folds the exited process's counters into the instance totals.
func (a *StatsAggregator) RecordExit(name string, code int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.get(name)
	st.stats.LastExitCode = code
	st.stats.State = supervisor.StateStopped
	if st.latest != nil {
		st.retiredCalls += nonNegative(st.latest.TotalCallCreated())
		st.retiredSuccessful += nonNegative(st.latest.SuccessfulCallCumulative())
		st.retiredFailed += nonNegative(st.latest.FailedCallCumulative())
	}
	st.retiredRetrans += st.retransmits
	st.retransmits = 0
	st.latest = nil
	st.stats.CallRate = 0
	st.stats.CurrentCalls = 0
	st.stats.Retransmissions = 0
	st.refreshTotals()
}

// Remove forgets an instance.
func (a *StatsAggregator) Remove(name string) {
	a.mu.Lock()
	delete(a.instances, name)
	a.mu.Unlock()
}

// InstanceCount returns the number of tracked instances.
func (a *StatsAggregator) InstanceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.instances)
}

// Instance returns the stats of one instance.
func (a *StatsAggregator) Instance(name string) (InstanceStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.instances[name]
	if !ok {
		return InstanceStats{}, false
	}
	return st.stats, true
}

// Instances returns all instance stats sorted by name.
func (a *StatsAggregator) Instances() []InstanceStats {
	a.mu.RLock()
	out := make([]InstanceStats, 0, len(a.instances))
	for _, st := range a.instances {
		out = append(out, st.stats)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Aggregate computes aggregated statistics across all instances.
//
// The returned struct is safe to use after the call returns.
func (a *StatsAggregator) Aggregate() *AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	result := &AggregatedStats{
		Timestamp:      now,
		Elapsed:        now.Sub(a.startTime),
		TotalInstances: len(a.instances),
		Failures:       make(map[string]int64),
	}

	var merged []parser.Bucket
	mergeable := true

	for _, st := range a.instances {
		switch st.stats.State {
		case supervisor.StateRunning:
			result.RunningInstances++
		case supervisor.StateStarting, supervisor.StateStopping:
			result.StartingOrStopping++
		default:
			result.StoppedInstances++
		}

		result.TotalCalls += st.stats.TotalCalls
		result.SuccessfulCalls += st.stats.SuccessfulCalls
		result.FailedCalls += st.stats.FailedCalls
		result.RetransmissionsTotal += st.retiredRetrans + st.retransmits
		result.TotalSnapshots += st.stats.Snapshots
		for label, n := range st.failures {
			result.Failures[label] += n
		}

		if st.latest == nil {
			continue
		}
		if r := st.latest.TargetRate(); r > 0 {
			result.TargetRate += float64(r)
		}
		if r := st.latest.CallRate(); r > 0 {
			result.CallRate += r
		}
		result.CurrentCalls += nonNegative(st.latest.CurrentCall())
		result.Retransmissions += nonNegative(st.latest.Retransmissions())

		if mergeable {
			if h, err := st.latest.ResponseTimeHistogram(); err == nil {
				merged, mergeable = mergeBuckets(merged, h.Buckets())
			}
		}
	}

	if done := result.SuccessfulCalls + result.FailedCalls; done > 0 {
		result.SuccessRate = float64(result.SuccessfulCalls) / float64(done)
	}
	if secs := result.Elapsed.Seconds(); secs > 0 {
		result.AverageCallRate = float64(result.TotalCalls) / secs
	}

	result.CreatedRates = a.calls.GetStats()

	if mergeable && len(merged) > 0 {
		if h, err := parser.NewHistogram(merged); err == nil && h.Total() > 0 {
			result.ResponseTimes = h.Buckets()
			result.ResponseTimeP50 = millis(h.Quantile(0.50))
			result.ResponseTimeP95 = millis(h.Quantile(0.95))
			result.ResponseTimeP99 = millis(h.Quantile(0.99))
		}
	}

	return result
}

// mergeBuckets adds b into acc when both share the same bounds. The second
// result is false when the bounds differ.
func mergeBuckets(acc, b []parser.Bucket) ([]parser.Bucket, bool) {
	if acc == nil {
		out := make([]parser.Bucket, len(b))
		for i, bk := range b {
			out[i] = bk
			out[i].Count = max(bk.Count, 0)
		}
		return out, true
	}
	if len(acc) != len(b) {
		return nil, false
	}
	for i := range acc {
		if acc[i].Lower != b[i].Lower || acc[i].Upper != b[i].Upper {
			return nil, false
		}
		acc[i].Count += max(b[i].Count, 0)
	}
	return acc, true
}

// StartTime returns when the aggregator was created.
func (a *StatsAggregator) StartTime() time.Time {
	return a.startTime
}

// Elapsed returns time since the aggregator was created.
func (a *StatsAggregator) Elapsed() time.Duration {
	return a.now().Sub(a.startTime)
}

func nonNegative(n int) int64 {
	if n < 0 {
		return 0
	}
	return int64(n)
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
