package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-sipp-swarm/internal/api"
	"github.com/randomizedcoder/go-sipp-swarm/internal/config"
	"github.com/randomizedcoder/go-sipp-swarm/internal/instance"
	"github.com/randomizedcoder/go-sipp-swarm/internal/logging"
	"github.com/randomizedcoder/go-sipp-swarm/internal/metrics"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/preflight"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
	"github.com/randomizedcoder/go-sipp-swarm/internal/stats"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
	"github.com/randomizedcoder/go-sipp-swarm/internal/tui"
)

const (
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 5 * time.Second
	rateTimeout     = 5 * time.Second
)

// ErrPreflight is returned when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

// Options carries what the orchestrator needs beyond the configuration.
type Options struct {
	// Version is the go-sipp-swarm build version, exported in sipp_swarm_info.
	Version string

	// Out receives preflight results and the exit summary. Defaults to os.Stdout.
	Out io.Writer

	// Registry, when set, replaces the default Prometheus registry.
	Registry *prometheus.Registry

	// Signals overrides the shutdown signals. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Orchestrator coordinates all components for a SIPp load run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options

	rampScheduler *RampScheduler
	metrics       *metrics.Collector
	aggregator    *stats.StatsAggregator
	gatherer      prometheus.Gatherer

	// Built by Run once the sipp version is known.
	scheduler     *sched.Scheduler
	registry      *instance.Registry
	metricsServer *metrics.Server

	rampDone  atomic.Bool
	startTime time.Time
}

// New creates an Orchestrator. Nothing is started until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:     opts.Version,
		SIPpVersion: cfg.SIPpVersion,
		WorkDir:     cfg.WorkDir,
	}, registerer)

	return &Orchestrator{
		config:        cfg,
		logger:        logger,
		opts:          opts,
		rampScheduler: NewRampScheduler(cfg.RampRate, cfg.RampJitter),
		metrics:       collector,
		aggregator:    stats.NewStatsAggregator(),
		gatherer:      gatherer,
	}
}

// Run executes the load run. It blocks until the duration elapses, a
// signal arrives, the dashboard quits or ctx is cancelled, then stops
// every instance and prints the exit summary.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	version, err := o.resolveVersion(ctx)
	if err != nil {
		return err
	}
	o.logger.Info("sipp_version", "version", version.String(), "path", o.config.SIPpPath)

	o.build(version)
	defer o.closeScheduler()

	autostart, err := o.createInstances()
	if err != nil {
		return err
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, o.opts.Signals...)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup

	o.logger.Info("ramp_starting",
		"instances", len(autostart),
		"rate", o.config.RampRate,
		"estimated_duration", o.rampScheduler.EstimatedRampDuration(len(autostart)).String(),
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.rampUp(ctx, autostart)
	}()
	go func() {
		defer wg.Done()
		o.poll(ctx)
	}()

	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program := o.newProgram(len(autostart))
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				o.logger.Warn("tui_error", "error", err)
			}
		}()
		defer func() {
			tui.SendQuit(program)
			<-tuiDone
		}()
	}

	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		timer := time.NewTimer(o.config.Duration)
		defer timer.Stop()
		durationTimer = timer.C
	}

	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
	case <-tuiDone:
		o.logger.Info("tui_quit")
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	cancel()
	wg.Wait()

	o.shutdown()
	o.printExitSummary()

	return nil
}

// resolveVersion runs the preflight checks and settles the sipp version:
// configured, else reported by preflight, else probed.
func (o *Orchestrator) resolveVersion(ctx context.Context) (parser.Version, error) {
	var reported parser.Version

	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			Instances: max(len(o.config.InstanceSpecs()), 1),
			SIPpPath:  o.config.SIPpPath,
			WorkDir:   o.config.WorkDir,
		})
		if !o.config.TUIEnabled || !result.Passed {
			preflight.PrintResults(o.opts.Out, result)
		}
		if !result.Passed {
			return parser.VersionUnknown, ErrPreflight
		}
		reported = result.SIPpVersion
	}

	if o.config.SIPpVersion != "" {
		v, err := parser.ParseVersion(o.config.SIPpVersion)
		if err != nil {
			return parser.VersionUnknown, err
		}
		if reported != parser.VersionUnknown && reported != v {
			o.logger.Warn("sipp_version_mismatch", "configured", v.String(), "reported", reported.String())
		}
		return v, nil
	}
	if reported != parser.VersionUnknown {
		return reported, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	v, err := process.ProbeVersion(probeCtx, o.config.SIPpPath)
	if err != nil {
		return parser.VersionUnknown, fmt.Errorf("determine sipp version (set --sipp-version to skip the probe): %w", err)
	}
	return v, nil
}

// build creates the scheduler, registry and HTTP server.
func (o *Orchestrator) build(version parser.Version) {
	o.scheduler = sched.New(sched.Config{
		Workers: o.config.Workers,
		Logger:  o.logger,
	})

	o.registry = instance.NewRegistry(instance.Options{
		BinaryPath: o.config.SIPpPath,
		WorkDir:    o.config.WorkDir,
		Version:    version,
		Scheduler:  o.scheduler,
		Logger:     o.logger,
		Callbacks:  o.metrics.Callbacks(o.aggregator.Callbacks(o.lifecycleCallbacks())),
		Timing: supervisor.Timing{
			TailInterval: o.config.TailInterval,
			StopWait:     o.config.StopWait,
		},
		StartTimeout: o.config.StartTimeout,
		Verbose:      o.config.Verbose,
	})

	if o.config.MetricsAddr == "" {
		return
	}

	cfg := metrics.ServerConfig{
		Addr:     o.config.MetricsAddr,
		Gatherer: o.gatherer,
		Ready:    o.ready,
	}
	if o.config.API {
		cfg.Extra = api.New(api.Config{
			Registry: o.registry,
			Logger:   o.logger,
			Wait:     o.config.StartTimeout + o.config.StopWait,
			OnRemove: o.forget,
		})
	}
	o.metricsServer = metrics.NewServer(cfg, o.logger)
}

// createInstances registers every configured instance and returns the
// ones to start during the ramp.
func (o *Orchestrator) createInstances() ([]*instance.Instance, error) {
	specs := o.config.InstanceSpecs()
	autostart := make([]*instance.Instance, 0, len(specs))

	for _, spec := range specs {
		inst, err := o.registry.NewInstance(spec)
		if err != nil {
			return nil, fmt.Errorf("create instance %q: %w", spec.Name, err)
		}
		if spec.Autostart {
			autostart = append(autostart, inst)
		}
	}
	o.metrics.SetInstanceCounts(o.registry.Len(), 0)
	return autostart, nil
}

// rampUp starts the autostart instances at the configured rate.
func (o *Orchestrator) rampUp(ctx context.Context, instances []*instance.Instance) {
	defer o.rampDone.Store(true)

	for i, inst := range instances {
		if i > 0 {
			if err := o.rampScheduler.Schedule(ctx, i); err != nil {
				o.logger.Info("ramp_cancelled", "started", i, "target", len(instances))
				return
			}
		} else if ctx.Err() != nil {
			return
		}

		// Start failures are logged by the instance and surface in its
		// status, so the future is not awaited here.
		inst.Start()

		if (i+1)%10 == 0 || i == len(instances)-1 {
			o.logger.Info("ramp_progress",
				"started", i+1,
				"target", len(instances),
				"active", o.activeCount(),
			)
		}
	}

	o.logger.Info("ramp_complete", "instances", len(instances))
}

// poll refreshes instance gauges and resource usage until ctx is done.
func (o *Orchestrator) poll(ctx context.Context) {
	interval := o.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollOnce(ctx)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context) {
	list := o.registry.List()
	active := 0
	for _, inst := range list {
		if !inst.Active() {
			continue
		}
		active++

		w := inst.Worker()
		if w == nil {
			continue
		}
		u, err := w.ResourceUsage(ctx)
		if err != nil {
			continue
		}
		o.metrics.RecordUsage(inst.Name(), u)
	}
	o.metrics.SetInstanceCounts(len(list), active)
	o.aggregator.Sample()

	if !o.config.TUIEnabled {
		agg := o.aggregator.Aggregate()
		o.logger.Debug("swarm_stats",
			"active", active,
			"call_rate", agg.CallRate,
			"target_rate", agg.TargetRate,
			"current_calls", agg.CurrentCalls,
			"failed_calls", agg.FailedCalls,
		)
	}
}

// newProgram builds the dashboard. The stats aggregator feeds it on
// every tick and the orchestrator handles its rate keys.
func (o *Orchestrator) newProgram(target int) *tea.Program {
	model := tui.New(tui.Config{
		TargetInstances: target,
		Scenario:        o.config.Scenario,
		MetricsAddr:     o.config.MetricsAddr,
		APIEnabled:      o.config.API,
		StatsSource:     o.aggregator,
		Controller:      o,
	})
	return tea.NewProgram(model, tea.WithAltScreen())
}

// AdjustRate sends delta steps of +10 or -10 calls/s to every running
// instance and returns how many instances accepted the change.
func (o *Orchestrator) AdjustRate(delta int) (int, error) {
	if delta == 0 {
		return 0, nil
	}

	op := (*instance.Instance).Increase10
	if delta < 0 {
		op = (*instance.Instance).Decrease10
		delta = -delta
	}

	ctx, cancel := context.WithTimeout(context.Background(), rateTimeout)
	defer cancel()

	affected := 0
	var errs []error
	for _, inst := range o.registry.List() {
		w := inst.Worker()
		if w == nil || w.State() != supervisor.StateRunning {
			continue
		}
		if err := applySteps(ctx, inst, op, delta); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.Name(), err))
			continue
		}
		affected++
	}
	return affected, errors.Join(errs...)
}

// applySteps runs op n times in order, waiting for each keystroke.
func applySteps(ctx context.Context, inst *instance.Instance, op func(*instance.Instance) (*sched.Future[*instance.Instance], error), n int) error {
	for range n {
		f, err := op(inst)
		if err != nil {
			return err
		}
		if _, err := f.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops every instance, optionally removes telemetry files and
// stops the HTTP server.
func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := o.registry.StopAll(ctx, false); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
		if err := o.registry.StopAll(ctx, true); err != nil {
			o.logger.Warn("forced_shutdown_incomplete", "error", err)
		}
	}

	if o.config.CleanUp {
		for _, inst := range o.registry.List() {
			if _, err := inst.CleanUp(); err != nil && !errors.Is(err, instance.ErrNeverStarted) {
				logging.ForInstance(o.logger, inst.Name(), "").Warn("cleanup_failed", "error", err)
			}
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
}

func (o *Orchestrator) closeScheduler() {
	if o.scheduler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.scheduler.Close(ctx); err != nil {
		o.logger.Warn("scheduler_close_error", "error", err)
	}
}

// ready reports 503 until the ramp has issued every start.
func (o *Orchestrator) ready() error {
	if !o.rampDone.Load() {
		return errors.New("ramp in progress")
	}
	return nil
}

// forget drops the telemetry of a removed instance.
func (o *Orchestrator) forget(name string) {
	o.metrics.RemoveInstance(name)
	o.aggregator.Remove(name)
}

func (o *Orchestrator) activeCount() int {
	n := 0
	for _, inst := range o.registry.List() {
		if inst.Active() {
			n++
		}
	}
	return n
}

// =============================================================================
// Callback handlers
// =============================================================================

func (o *Orchestrator) lifecycleCallbacks() supervisor.Callbacks {
	return supervisor.Callbacks{
		OnStateChange: func(name string, old, new supervisor.State) {
			if o.config.Verbose {
				logging.ForInstance(o.logger, name, "").Debug("instance_state_change", "from", old.String(), "to", new.String())
			}
		},
		OnStart: func(name string, pid int) {
			if o.config.Verbose {
				logging.WithPID(logging.ForInstance(o.logger, name, ""), pid).Debug("instance_process_started")
			}
		},
		OnExit: func(name string, code int, uptime time.Duration) {
			logging.ForInstance(o.logger, name, "").Info("instance_process_exited",
				"exit_code", code,
				"uptime", uptime.Truncate(time.Millisecond).String(),
			)
		},
	}
}

// printExitSummary writes the exit summary to the configured output.
func (o *Orchestrator) printExitSummary() {
	summary := o.metrics.GenerateSummary()

	var agg *stats.AggregatedStats
	if o.aggregator.InstanceCount() > 0 {
		agg = o.aggregator.Aggregate()
	}

	fmt.Fprint(o.opts.Out, stats.FormatExitSummary(agg, o.aggregator.Instances(), stats.SummaryConfig{
		TargetInstances:      len(o.config.InstanceSpecs()),
		PeakActive:           summary.PeakActiveInstances,
		Duration:             time.Since(o.startTime),
		MetricsAddr:          o.config.MetricsAddr,
		APIEnabled:           o.config.API,
		ShowPerInstanceStats: o.config.Verbose,
		ExitCodes:            summary.ExitCodes,
		TotalStarts:          summary.TotalStarts,
		UptimeP50:            summary.UptimeP50,
		UptimeP95:            summary.UptimeP95,
		UptimeP99:            summary.UptimeP99,
	}))
}

// =============================================================================
// Accessors
// =============================================================================

// Registry returns the instance registry. Nil until Run has started.
func (o *Orchestrator) Registry() *instance.Registry {
	return o.registry
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Aggregator returns the stats aggregator.
func (o *Orchestrator) Aggregator() *stats.StatsAggregator {
	return o.aggregator
}
