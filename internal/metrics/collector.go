// Package metrics provides Prometheus metrics for go-sipp-swarm.
//
// Metrics are organized into two tiers:
//   - Swarm (always registered): instance counts, lifecycle counters, uptime
//   - Per-instance (labelled by instance name): rates, calls, response times
//     and resource usage taken from each worker's latest snapshot
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

const namespace = "sipp_swarm"

// Collector manages all Prometheus metrics for the swarm.
type Collector struct {
	startTime time.Time

	// --- Swarm ---
	info              *prometheus.GaugeVec
	instances         prometheus.Gauge
	activeInstances   prometheus.Gauge
	startsTotal       prometheus.Counter
	exitsTotal        *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	snapshotsTotal    prometheus.Counter
	uptimeSeconds     prometheus.Histogram
	aggregateCallRate prometheus.Gauge

	// --- Per instance ---
	targetRate      *prometheus.GaugeVec
	callRate        *prometheus.GaugeVec
	currentCalls    *prometheus.GaugeVec
	totalCalls      *prometheus.GaugeVec
	failedCalls     *prometheus.GaugeVec
	retransmissions *prometheus.GaugeVec
	responseTime    *prometheus.GaugeVec
	cpuPercent      *prometheus.GaugeVec
	rssBytes        *prometheus.GaugeVec

	mu          sync.Mutex
	peakActive  int
	totalStarts int64
	exitCodes   map[int]int64
	uptimes     *tdigest.TDigest
	uptimeCount int
	callRates   map[string]float64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version     string
	SIPpVersion string
	WorkDir     string
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	perInstance := []string{"instance"}

	c := &Collector{
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		uptimes:   tdigest.NewWithCompression(100),
		callRates: make(map[string]float64),

		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the swarm (value always 1)",
		}, []string{"version", "sipp_version", "work_dir"}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Registered instances",
		}),
		activeInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Instances with a live sipp process",
		}),
		startsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_starts_total",
			Help:      "Successfully started sipp processes",
		}),
		exitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_exits_total",
			Help:      "sipp process exits by category (success, error, signal)",
		}, []string{"category"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_state_transitions_total",
			Help:      "Worker state transitions by target state",
		}, []string{"state"}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Statistics lines decoded across all workers",
		}),
		uptimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_uptime_seconds",
			Help:      "Lifetime of exited sipp processes",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		aggregateCallRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_rate",
			Help:      "Sum of the periodic call rates of all instances (calls/s)",
		}),

		targetRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_target_rate",
			Help:      "Target call rate (calls/s)",
		}, perInstance),
		callRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_call_rate",
			Help:      "Measured periodic call rate (calls/s)",
		}, perInstance),
		currentCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_current_calls",
			Help:      "Calls currently in progress",
		}, perInstance),
		totalCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_calls_created",
			Help:      "Calls created since the process started",
		}, perInstance),
		failedCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_failed_calls",
			Help:      "Cumulative failed calls",
		}, perInstance),
		retransmissions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_retransmissions",
			Help:      "Retransmissions in the last period",
		}, perInstance),
		responseTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_response_time_seconds",
			Help:      "Response time quantiles estimated from the periodic histogram",
		}, []string{"instance", "quantile"}),
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_cpu_percent",
			Help:      "CPU usage of the sipp process",
		}, perInstance),
		rssBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_rss_bytes",
			Help:      "Resident memory of the sipp process",
		}, perInstance),
	}

	registry.MustRegister(
		c.info,
		c.instances,
		c.activeInstances,
		c.startsTotal,
		c.exitsTotal,
		c.transitionsTotal,
		c.snapshotsTotal,
		c.uptimeSeconds,
		c.aggregateCallRate,
		c.targetRate,
		c.callRate,
		c.currentCalls,
		c.totalCalls,
		c.failedCalls,
		c.retransmissions,
		c.responseTime,
		c.cpuPercent,
		c.rssBytes,
	)

	c.info.WithLabelValues(cfg.Version, cfg.SIPpVersion, cfg.WorkDir).Set(1)
	return c
}

// =============================================================================
// Worker callbacks
// =============================================================================

// Callbacks returns supervisor callbacks that feed this collector. next, if
// non-nil, is invoked after the collector has recorded each event.
func (c *Collector) Callbacks(next supervisor.Callbacks) supervisor.Callbacks {
	return supervisor.Callbacks{
		OnStateChange: func(name string, old, new supervisor.State) {
			c.transitionsTotal.WithLabelValues(new.String()).Inc()
			if next.OnStateChange != nil {
				next.OnStateChange(name, old, new)
			}
		},
		OnStart: func(name string, pid int) {
			c.InstanceStarted()
			if next.OnStart != nil {
				next.OnStart(name, pid)
			}
		},
		OnExit: func(name string, code int, uptime time.Duration) {
			c.RecordExit(code, uptime)
			if next.OnExit != nil {
				next.OnExit(name, code, uptime)
			}
		},
		OnSnapshot: func(name string, snap *parser.Snapshot) {
			c.RecordSnapshot(name, snap)
			if next.OnSnapshot != nil {
				next.OnSnapshot(name, snap)
			}
		},
	}
}

// =============================================================================
// Update Methods
// =============================================================================

// responseQuantiles are exported for every instance with a histogram.
var responseQuantiles = []float64{0.5, 0.95, 0.99}

// RecordSnapshot updates the per-instance gauges from a decoded line.
func (c *Collector) RecordSnapshot(name string, snap *parser.Snapshot) {
	if snap == nil || snap.IsEmpty() {
		return
	}
	c.snapshotsTotal.Inc()

	c.targetRate.WithLabelValues(name).Set(float64(snap.TargetRate()))
	rate := snap.CallRate()
	c.callRate.WithLabelValues(name).Set(rate)
	c.currentCalls.WithLabelValues(name).Set(float64(snap.CurrentCall()))
	c.totalCalls.WithLabelValues(name).Set(float64(snap.TotalCallCreated()))
	c.failedCalls.WithLabelValues(name).Set(float64(snap.FailedCallCumulative()))
	c.retransmissions.WithLabelValues(name).Set(float64(snap.Retransmissions()))

	// Schemas without histogram columns simply skip the quantiles.
	if h, err := snap.ResponseTimeHistogram(); err == nil && h.Total() > 0 {
		for _, q := range responseQuantiles {
			ms := h.Quantile(q)
			c.responseTime.WithLabelValues(name, strconv.FormatFloat(q, 'f', -1, 64)).Set(ms / 1000)
		}
	}

	c.mu.Lock()
	if rate >= 0 {
		c.callRates[name] = rate
	}
	var sum float64
	for _, r := range c.callRates {
		sum += r
	}
	c.mu.Unlock()
	c.aggregateCallRate.Set(sum)
}

// RecordUsage updates the resource gauges of an instance.
func (c *Collector) RecordUsage(name string, u supervisor.Usage) {
	c.cpuPercent.WithLabelValues(name).Set(u.CPUPercent)
	c.rssBytes.WithLabelValues(name).Set(float64(u.RSSBytes))
}

// InstanceStarted records a worker start.
func (c *Collector) InstanceStarted() {
	c.startsTotal.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// RecordExit records a process exit event.
func (c *Collector) RecordExit(exitCode int, uptime time.Duration) {
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	c.exitsTotal.WithLabelValues(category).Inc()
	c.uptimeSeconds.Observe(uptime.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimes.Add(uptime.Seconds(), 1)
	c.uptimeCount++
	c.mu.Unlock()
}

// SetInstanceCounts updates registered and active instance gauges.
func (c *Collector) SetInstanceCounts(registered, active int) {
	c.instances.Set(float64(registered))
	c.activeInstances.Set(float64(active))

	c.mu.Lock()
	if active > c.peakActive {
		c.peakActive = active
	}
	c.mu.Unlock()
}

// =============================================================================
// Cleanup Methods
// =============================================================================

// RemoveInstance deletes the per-instance series of name.
func (c *Collector) RemoveInstance(name string) {
	c.mu.Lock()
	delete(c.callRates, name)
	c.mu.Unlock()

	for _, v := range []*prometheus.GaugeVec{
		c.targetRate, c.callRate, c.currentCalls, c.totalCalls,
		c.failedCalls, c.retransmissions, c.cpuPercent, c.rssBytes,
	} {
		v.DeleteLabelValues(name)
	}
	c.responseTime.DeletePartialMatch(prometheus.Labels{"instance": name})
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration            time.Duration
	PeakActiveInstances int
	TotalStarts         int64
	ExitCodes           map[int]int64
	UptimeP50           time.Duration
	UptimeP95           time.Duration
	UptimeP99           time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:            time.Since(c.startTime),
		PeakActiveInstances: c.peakActive,
		TotalStarts:         c.totalStarts,
		ExitCodes:           make(map[int]int64, len(c.exitCodes)),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	if c.uptimeCount > 0 {
		s.UptimeP50 = seconds(c.uptimes.Quantile(0.50))
		s.UptimeP95 = seconds(c.uptimes.Quantile(0.95))
		s.UptimeP99 = seconds(c.uptimes.Quantile(0.99))
	}
	return s
}

// PeakActive returns the peak active instance count.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalStarts returns the total number of worker starts.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
