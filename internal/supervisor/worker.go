package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-sipp-swarm/internal/logging"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
)

var (
	// ErrExitedEarly is returned when the process dies before it is ready.
	ErrExitedEarly = errors.New("sipp exited during start")

	// ErrPidUnavailable is returned when the platform gives no process id.
	ErrPidUnavailable = errors.New("process id unavailable")

	// ErrTelemetryMissing is returned when a telemetry file never appears.
	ErrTelemetryMissing = errors.New("telemetry file did not appear")

	// ErrNoHeader is returned when the statistics header never arrives.
	ErrNoHeader = errors.New("statistics header not received")

	// ErrNotRunning is returned for commands sent to an exited process.
	ErrNotRunning = errors.New("sipp process is not running")

	// ErrStillRunning is returned when deleting files of a live process.
	ErrStillRunning = errors.New("sipp process still running")

	// ErrInvalidRate is returned for a negative target rate.
	ErrInvalidRate = errors.New("invalid call rate")
)

// DefaultBaselineRate is SIPp's call rate when started without -r.
const DefaultBaselineRate = 10

// Timing holds the delays of the start, tail and stop sequences. Zero
// fields take the defaults from DefaultTiming.
type Timing struct {
	SettleDelay    time.Duration
	FileWait       time.Duration
	FilePoll       time.Duration
	HeaderPoll     time.Duration
	HeaderAttempts int
	TailInterval   time.Duration
	TailBatch      int
	StopWait       time.Duration
	KillWait       time.Duration
}

// DefaultTiming returns the standard timing.
func DefaultTiming() Timing {
	return Timing{
		SettleDelay:    10 * time.Millisecond,
		FileWait:       1000 * time.Millisecond,
		FilePoll:       20 * time.Millisecond,
		HeaderPoll:     10 * time.Millisecond,
		HeaderAttempts: 10,
		TailInterval:   500 * time.Millisecond,
		TailBatch:      10,
		StopWait:       500 * time.Millisecond,
		KillWait:       5 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.SettleDelay > 0 {
		d.SettleDelay = t.SettleDelay
	}
	if t.FileWait > 0 {
		d.FileWait = t.FileWait
	}
	if t.FilePoll > 0 {
		d.FilePoll = t.FilePoll
	}
	if t.HeaderPoll > 0 {
		d.HeaderPoll = t.HeaderPoll
	}
	if t.HeaderAttempts > 0 {
		d.HeaderAttempts = t.HeaderAttempts
	}
	if t.TailInterval > 0 {
		d.TailInterval = t.TailInterval
	}
	if t.TailBatch > 0 {
		d.TailBatch = t.TailBatch
	}
	if t.StopWait > 0 {
		d.StopWait = t.StopWait
	}
	if t.KillWait > 0 {
		d.KillWait = t.KillWait
	}
	return d
}

// Callbacks contains optional callback functions for worker events.
type Callbacks struct {
	// OnStateChange is called when the worker state changes.
	OnStateChange func(name string, oldState, newState State)

	// OnStart is called once the worker is running.
	OnStart func(name string, pid int)

	// OnExit is called when the process exits.
	OnExit func(name string, exitCode int, uptime time.Duration)

	// OnSnapshot is called for every decoded statistics line.
	OnSnapshot func(name string, snap *parser.Snapshot)
}

// Config holds configuration for starting a Worker.
type Config struct {
	// Name identifies the owning instance in logs and callbacks.
	Name      string
	Runner    process.Runner
	Version   parser.Version
	Scheduler *sched.Scheduler
	Logger    *slog.Logger
	Callbacks Callbacks
	Timing    Timing

	// InitialRate is the rate sipp was launched with; it is the base for
	// SetRate until the first snapshot arrives. 0 means SIPp's default.
	InitialRate int

	// WindowSize is the number of recent snapshots retained.
	WindowSize int

	// Verbose logs every stderr line instead of warnings only.
	Verbose bool
}

// Worker supervises one SIPp process.
type Worker struct {
	name      string
	logger    *slog.Logger
	callbacks Callbacks
	timing    Timing
	sched     *sched.Scheduler

	cmd       *exec.Cmd
	pid       int
	stdin     io.WriteCloser
	stderr    *logging.StderrHandler
	startTime time.Time

	statsPath  string
	countsPath string
	stats      *parser.TailReader
	counts     *parser.TailReader
	schema     *parser.Schema

	// mu serializes stdin writes and guards the window.
	mu           sync.Mutex
	window       *snapshotWindow
	baselineRate int

	state   State
	stateMu sync.RWMutex

	exited   chan struct{}
	exitCode atomic.Int64

	// launched is closed when Start returns, whatever the outcome.
	launched chan struct{}

	closeOnce sync.Once
	tails     sync.WaitGroup

	statsLines    atomic.Int64
	countsLines   atomic.Int64
	rejectedLines atomic.Int64
}

// Start spawns the process and blocks until it is running and both
// telemetry files are being tailed, or until start fails. ctx bounds the
// start sequence only; the process outlives it.
func Start(ctx context.Context, cfg Config) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseline := cfg.InitialRate
	if baseline <= 0 {
		baseline = DefaultBaselineRate
	}

	w := &Worker{
		name:         cfg.Name,
		logger:       logging.ForInstance(logger, cfg.Name, ""),
		callbacks:    cfg.Callbacks,
		timing:       cfg.Timing.withDefaults(),
		sched:        cfg.Scheduler,
		window:       newSnapshotWindow(cfg.WindowSize),
		baselineRate: baseline,
		state:        StateStarting,
		exited:       make(chan struct{}),
		launched:     make(chan struct{}),
	}
	w.exitCode.Store(-1)
	w.stderr = logging.NewStderrHandler(cfg.Name, logger, cfg.Verbose)

	if w.sched == nil {
		return nil, errors.New("worker requires a scheduler")
	}

	cmd, err := cfg.Runner.BuildCommand()
	if err != nil {
		return nil, fmt.Errorf("build command: %w", err)
	}
	w.cmd = cmd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	w.stdin = stdin
	cmd.Stdout = io.Discard
	cmd.Stderr = w.stderr
	setProcessGroup(cmd)

	w.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		w.setState(StateStopped)
		return nil, fmt.Errorf("start %s: %w", cfg.Runner.Name(), err)
	}
	go w.monitor()
	defer close(w.launched)

	if err := w.awaitReady(ctx, cfg); err != nil {
		w.abort()
		return nil, err
	}

	w.setState(StateRunning)
	w.logger.Info("worker_started",
		"stats_file", w.statsPath,
		"schema_labels", w.schema.Len(),
	)
	if w.callbacks.OnStart != nil {
		w.callbacks.OnStart(w.name, w.pid)
	}

	w.tails.Add(2)
	if err := w.sched.Submit(w.tailStats); err != nil {
		w.tails.Done()
	}
	if err := w.sched.Submit(w.tailCounts); err != nil {
		w.tails.Done()
	}
	return w, nil
}

// awaitReady runs the settle, pid, file and header phases of start.
func (w *Worker) awaitReady(ctx context.Context, cfg Config) error {
	if err := w.sleep(ctx, w.timing.SettleDelay); err != nil {
		return err
	}
	if !w.Alive() {
		return w.earlyExitError()
	}

	if w.cmd.Process == nil || w.cmd.Process.Pid <= 0 {
		return fmt.Errorf("%w on %s/%s", ErrPidUnavailable, runtime.GOOS, runtime.GOARCH)
	}
	w.pid = w.cmd.Process.Pid
	w.logger = logging.WithPID(w.logger, w.pid)

	w.statsPath = cfg.Runner.StatsFile(w.pid)
	w.countsPath = cfg.Runner.CountsFile(w.pid)

	for _, path := range []string{w.statsPath, w.countsPath} {
		if err := w.waitForFile(ctx, path); err != nil {
			return err
		}
	}

	var err error
	if w.stats, err = parser.OpenTail(w.statsPath); err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	if w.counts, err = parser.OpenTail(w.countsPath); err != nil {
		return fmt.Errorf("open counts file: %w", err)
	}

	header, err := w.readHeader(ctx)
	if err != nil {
		return err
	}
	schema, err := parser.NewSchema(cfg.Version, header)
	if err != nil {
		return fmt.Errorf("stats header of %s: %w", w.statsPath, err)
	}
	w.schema = schema.WithLogger(w.logger)
	return nil
}

// waitForFile polls until path exists, the wait bound passes or the
// process dies.
func (w *Worker) waitForFile(ctx context.Context, path string) error {
	deadline := time.Now().Add(w.timing.FileWait)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if !w.Alive() {
			return w.earlyExitError()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w within %s: %s", ErrTelemetryMissing, w.timing.FileWait, path)
		}
		if err := w.sleep(ctx, w.timing.FilePoll); err != nil {
			return err
		}
	}
}

// readHeader reads the first line of the stats file with bounded retries.
func (w *Worker) readHeader(ctx context.Context) (string, error) {
	for attempt := 0; attempt < w.timing.HeaderAttempts; attempt++ {
		line, ok, err := w.stats.ReadLine()
		if err != nil {
			return "", fmt.Errorf("read stats header: %w", err)
		}
		if ok && strings.TrimSpace(line) != "" {
			return line, nil
		}
		if err := w.sleep(ctx, w.timing.HeaderPoll); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %s", ErrNoHeader, w.timing.HeaderAttempts, w.statsPath)
}

func (w *Worker) earlyExitError() error {
	w.stderr.Flush()
	diag := w.stderr.RecentLines(10)
	code := w.ExitCode()
	if len(diag) == 0 {
		return fmt.Errorf("%w (exit code %d)", ErrExitedEarly, code)
	}
	return fmt.Errorf("%w (exit code %d): %s", ErrExitedEarly, code, strings.Join(diag, "; "))
}

// sleep waits for d, returning early if ctx ends.
func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// abort tears down a process whose start failed.
func (w *Worker) abort() {
	if w.Alive() {
		if err := killProcessGroup(w.cmd); err != nil {
			w.logger.Debug("kill_failed", "error", err)
		}
		w.waitExit(w.timing.KillWait)
	}
	w.closeReaders()
	w.setState(StateStopped)
}

// monitor waits for the process and records its exit. Once start has
// settled and the tail loops have read their final batch it closes the
// telemetry readers.
func (w *Worker) monitor() {
	err := w.cmd.Wait()
	code := exitCode(err)
	w.exitCode.Store(int64(code))
	close(w.exited)
	w.stderr.Flush()

	// Start owns pid and state until it returns.
	<-w.launched

	uptime := time.Since(w.startTime)
	w.logger.Info("worker_exited",
		"exit_code", code,
		"uptime", uptime.String(),
	)

	// An unrequested exit surfaces as Stopped; nothing restarts it.
	w.transition(StateRunning, StateStopped)

	if w.callbacks.OnExit != nil {
		w.callbacks.OnExit(w.name, code, uptime)
	}

	w.tails.Wait()
	w.closeReaders()
}

// waitExit waits up to d for the process to exit and reports whether it did.
func (w *Worker) waitExit(d time.Duration) bool {
	if d <= 0 {
		return !w.Alive()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.exited:
		return true
	case <-t.C:
		return false
	}
}

// tailStats is the polling loop over the statistics file.
func (w *Worker) tailStats(ctx context.Context) {
	if ctx.Err() != nil {
		w.tails.Done()
		return
	}
	lines, err := w.stats.ReadLines(w.timing.TailBatch)
	if err != nil {
		if errors.Is(err, parser.ErrReaderClosed) {
			w.tails.Done()
			return
		}
		w.logger.Debug("stats_read_failed", "error", err)
	}
	for _, line := range lines {
		w.ingest(line)
	}
	w.reschedule(w.tailStats)
}

// tailCounts consumes the counts file. Its lines are counted, not decoded.
func (w *Worker) tailCounts(ctx context.Context) {
	if ctx.Err() != nil {
		w.tails.Done()
		return
	}
	lines, err := w.counts.ReadLines(w.timing.TailBatch)
	if err != nil {
		if errors.Is(err, parser.ErrReaderClosed) {
			w.tails.Done()
			return
		}
		w.logger.Debug("counts_read_failed", "error", err)
	}
	w.countsLines.Add(int64(len(lines)))
	w.reschedule(w.tailCounts)
}

// reschedule queues task again while the process is alive.
func (w *Worker) reschedule(task sched.Task) {
	if !w.Alive() {
		w.tails.Done()
		return
	}
	if err := w.sched.Schedule(w.timing.TailInterval, task); err != nil {
		w.tails.Done()
	}
}

// ingest decodes one statistics line into the window.
func (w *Worker) ingest(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	snap, err := w.schema.ParseLine(line)
	if err != nil {
		w.rejectedLines.Add(1)
		w.logger.Debug("stats_line_rejected", "error", err)
		return
	}
	w.statsLines.Add(1)

	w.mu.Lock()
	w.window.add(snap)
	w.mu.Unlock()

	if w.callbacks.OnSnapshot != nil {
		w.callbacks.OnSnapshot(w.name, snap)
	}
}

// latest returns the newest snapshot or nil.
func (w *Worker) latest() *parser.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window.latest()
}

// TargetRate returns the target rate of the latest snapshot, or -1.
func (w *Worker) TargetRate() int {
	snap := w.latest()
	if snap == nil {
		return -1
	}
	return snap.TargetRate()
}

// CurrentRate returns the measured call rate of the latest snapshot, or -1.
func (w *Worker) CurrentRate() float64 {
	snap := w.latest()
	if snap == nil {
		return -1
	}
	return snap.CallRate()
}

// Stats returns the latest snapshot, or the schema's empty snapshot when
// none has arrived.
func (w *Worker) Stats() *parser.Snapshot {
	if snap := w.latest(); snap != nil {
		return snap
	}
	return w.schema.Empty()
}

// Retransmissions returns the periodic retransmission count of Stats().
func (w *Worker) Retransmissions() int {
	return w.Stats().Retransmissions()
}

// Recent returns the retained snapshots in arrival order.
func (w *Worker) Recent() []*parser.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window.items()
}

// Schema returns the statistics schema read at start.
func (w *Worker) Schema() *parser.Schema {
	return w.schema
}

// SetRate moves the target call rate to target.
func (w *Worker) SetRate(target int) error {
	if target < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRate, target)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.baselineRate
	if snap := w.window.latest(); snap != nil {
		if r := snap.TargetRate(); r >= 0 {
			current = r
		}
	}
	cmds := RateCommands(target - current)
	w.logger.Debug("rate_change",
		"current", current,
		"target", target,
		"keystrokes", len(cmds),
	)
	return w.sendLocked(cmds...)
}

// IncreaseRateBy10 raises the target rate by ten.
func (w *Worker) IncreaseRateBy10() error {
	return w.Send(RateCommands(10)...)
}

// DecreaseRateBy10 lowers the target rate by ten.
func (w *Worker) DecreaseRateBy10() error {
	return w.Send(RateCommands(-10)...)
}

// Pause toggles SIPp's pause mode.
func (w *Worker) Pause() error {
	return w.Send(CmdPause)
}

// Send writes the keystrokes to the process one at a time.
func (w *Worker) Send(cmds ...Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sendLocked(cmds...)
}

func (w *Worker) sendLocked(cmds ...Command) error {
	if len(cmds) == 0 {
		return nil
	}
	if !w.Alive() {
		return ErrNotRunning
	}
	for _, c := range cmds {
		if _, err := w.stdin.Write([]byte{byte(c)}); err != nil {
			return fmt.Errorf("write %q: %w", c.String(), err)
		}
	}
	return nil
}

// Stop quits the process, kills its process group if it outlives the
// grace period and closes the telemetry readers. Every phase runs even if
// an earlier one fails. A forced stop skips the grace period.
func (w *Worker) Stop(force bool) error {
	if w.State() != StateStopped {
		w.setState(StateStopping)
	}

	var errs []error

	if w.Alive() {
		if err := w.Send(CmdQuit); err != nil && !errors.Is(err, ErrNotRunning) {
			w.logger.Debug("quit_write_failed", "error", err)
		}
	}

	grace := w.timing.StopWait
	if force {
		grace = 0
	}
	if !w.waitExit(grace) {
		w.logger.Warn("force_killing_process", "forced", force)
		if err := killProcessGroup(w.cmd); err != nil {
			w.logger.Debug("kill_failed", "error", err)
		}
		if !w.waitExit(w.timing.KillWait) {
			errs = append(errs, fmt.Errorf("pid %d did not exit after kill", w.pid))
		}
	}

	w.closeReaders()
	w.setState(StateStopped)
	return errors.Join(errs...)
}

// closeReaders closes stdin and both telemetry readers once.
func (w *Worker) closeReaders() {
	w.closeOnce.Do(func() {
		if w.stdin != nil {
			_ = w.stdin.Close()
		}
		if w.stats != nil {
			_ = w.stats.Close()
		}
		if w.counts != nil {
			_ = w.counts.Close()
		}
	})
}

// DeleteFiles removes both telemetry files and reports whether both
// removals succeeded. It fails with ErrStillRunning while the process is alive.
func (w *Worker) DeleteFiles() (bool, error) {
	if w.Alive() {
		return false, ErrStillRunning
	}
	w.closeReaders()

	ok := true
	for _, path := range []string{w.statsPath, w.countsPath} {
		if path == "" {
			ok = false
			continue
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("telemetry_delete_failed", "path", path, "error", err)
			ok = false
		}
	}
	return ok, nil
}

// WaitTails blocks until both tail loops have terminated or ctx ends.
func (w *Worker) WaitTails(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.tails.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exited is closed when the process exits.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

// Alive reports whether the process is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

// PID returns the process id.
func (w *Worker) PID() int {
	return w.pid
}

// ExitCode returns the exit code, or -1 while running.
func (w *Worker) ExitCode() int {
	return int(w.exitCode.Load())
}

// Name returns the owning instance name.
func (w *Worker) Name() string {
	return w.name
}

// StatsFile returns the path of the statistics file.
func (w *Worker) StatsFile() string {
	return w.statsPath
}

// CountsFile returns the path of the counts file.
func (w *Worker) CountsFile() string {
	return w.countsPath
}

// Uptime returns the time since spawn while active, or 0.
func (w *Worker) Uptime() time.Duration {
	if !w.State().IsActive() {
		return 0
	}
	return time.Since(w.startTime)
}

// StartTime returns when the process was spawned.
func (w *Worker) StartTime() time.Time {
	return w.startTime
}

// LineCounts returns the number of decoded stats lines, consumed counts
// lines and rejected stats lines.
func (w *Worker) LineCounts() (stats, counts, rejected int64) {
	return w.statsLines.Load(), w.countsLines.Load(), w.rejectedLines.Load()
}

// StderrLines returns up to n recent stderr lines.
func (w *Worker) StderrLines(n int) []string {
	return w.stderr.RecentLines(n)
}

// StderrErrors counts known error patterns in recent stderr output.
func (w *Worker) StderrErrors() map[string]int {
	return w.stderr.CountErrors()
}

// State returns the current state of the worker.
func (w *Worker) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// transition moves the worker from one state to another and reports
// whether it was in from.
func (w *Worker) transition(from, to State) bool {
	w.stateMu.Lock()
	if w.state != from {
		w.stateMu.Unlock()
		return false
	}
	w.state = to
	w.stateMu.Unlock()

	if w.callbacks.OnStateChange != nil && from != to {
		w.callbacks.OnStateChange(w.name, from, to)
	}
	return true
}

// setState updates the state and calls the callback if registered.
func (w *Worker) setState(newState State) {
	w.stateMu.Lock()
	oldState := w.state
	w.state = newState
	w.stateMu.Unlock()

	if w.callbacks.OnStateChange != nil && oldState != newState {
		w.callbacks.OnStateChange(w.name, oldState, newState)
	}
}
