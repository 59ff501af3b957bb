package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-sipp-swarm/internal/logging"
	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
	"github.com/randomizedcoder/go-sipp-swarm/internal/process"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

var (
	// ErrNeverStarted is returned by Stop and CleanUp before any start.
	ErrNeverStarted = errors.New("instance was never started")

	// ErrNotStarted is returned by rate operations without a worker.
	ErrNotStarted = errors.New("instance not started")

	// ErrStillRunning is returned by CleanUp while the process is alive.
	ErrStillRunning = supervisor.ErrStillRunning
)

// Lifecycle labels reported before a worker exists.
const (
	StateCreated = "created"
	StateFailed  = "failed"
)

// Instance is one logical load task. It owns at most one worker at a time.
type Instance struct {
	id      uuid.UUID
	spec    Spec
	runner  *process.SIPpRunner
	created time.Time
	opts    *Options

	mu          sync.Mutex
	worker      *supervisor.Worker
	startFuture *sched.Future[*Instance]
	starts      int
	lastErr     error
}

// ID returns the unique identity.
func (i *Instance) ID() uuid.UUID { return i.id }

// Name returns the friendly name.
func (i *Instance) Name() string { return i.spec.Name }

// Spec returns the launch spec.
func (i *Instance) Spec() Spec { return i.spec }

// Created returns the creation time.
func (i *Instance) Created() time.Time { return i.created }

// CommandString returns the sipp command line the instance launches.
func (i *Instance) CommandString() string { return i.runner.CommandString() }

// Start launches a worker. Concurrent calls, and calls made while the
// worker is alive, return the same future. After a failed start or once
// the worker has exited a new worker is launched.
func (i *Instance) Start() *sched.Future[*Instance] {
	i.mu.Lock()
	defer i.mu.Unlock()

	if f := i.startFuture; f != nil {
		if !f.IsDone() {
			return f
		}
		if _, err, _ := f.Result(); err == nil && i.worker != nil && i.worker.Alive() {
			return f
		}
	}

	i.startFuture = sched.Go(i.opts.Scheduler, i.launch)
	return i.startFuture
}

// pendingStart returns the start future while a launch is in flight.
func (i *Instance) pendingStart() *sched.Future[*Instance] {
	i.mu.Lock()
	defer i.mu.Unlock()
	if f := i.startFuture; f != nil && !f.IsDone() {
		return f
	}
	return nil
}

// launch runs on the scheduler and installs the new worker.
func (i *Instance) launch(ctx context.Context) (*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, i.opts.StartTimeout)
	defer cancel()

	logger := logging.ForInstance(i.opts.Logger, i.spec.Name, i.id.String())
	logger.Info("instance_starting",
		"command", i.runner.CommandString(),
	)

	w, err := supervisor.Start(ctx, supervisor.Config{
		Name:        i.spec.Name,
		Runner:      i.runner,
		Version:     i.opts.Version,
		Scheduler:   i.opts.Scheduler,
		Logger:      i.opts.Logger,
		Callbacks:   i.opts.Callbacks,
		Timing:      i.opts.Timing,
		InitialRate: i.spec.InitialRate,
		Verbose:     i.opts.Verbose,
	})

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.lastErr = err
		logger.Error("instance_start_failed", "error", err)
		return nil, err
	}
	i.worker = w
	i.starts++
	i.lastErr = nil
	return i, nil
}

// Stop runs the worker's stop sequence.
func (i *Instance) Stop(force bool) (*sched.Future[*Instance], error) {
	w := i.current()
	if w == nil {
		return nil, ErrNeverStarted
	}
	return sched.Go(i.opts.Scheduler, func(ctx context.Context) (*Instance, error) {
		if err := w.Stop(force); err != nil {
			return nil, err
		}
		return i, nil
	}), nil
}

// CleanUp deletes the telemetry files of the last worker and reports
// whether both were removed.
func (i *Instance) CleanUp() (bool, error) {
	w := i.current()
	if w == nil {
		return false, ErrNeverStarted
	}
	return w.DeleteFiles()
}

// SetRate moves the target call rate to n.
func (i *Instance) SetRate(n int) (*sched.Future[*Instance], error) {
	return i.forward(func(w *supervisor.Worker) error { return w.SetRate(n) })
}

// Increase10 raises the target rate by ten.
func (i *Instance) Increase10() (*sched.Future[*Instance], error) {
	return i.forward((*supervisor.Worker).IncreaseRateBy10)
}

// Decrease10 lowers the target rate by ten.
func (i *Instance) Decrease10() (*sched.Future[*Instance], error) {
	return i.forward((*supervisor.Worker).DecreaseRateBy10)
}

// Pause toggles pause mode.
func (i *Instance) Pause() (*sched.Future[*Instance], error) {
	return i.forward((*supervisor.Worker).Pause)
}

func (i *Instance) forward(op func(*supervisor.Worker) error) (*sched.Future[*Instance], error) {
	w := i.current()
	if w == nil {
		return nil, ErrNotStarted
	}
	return sched.Go(i.opts.Scheduler, func(ctx context.Context) (*Instance, error) {
		if err := op(w); err != nil {
			return nil, err
		}
		return i, nil
	}), nil
}

func (i *Instance) current() *supervisor.Worker {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.worker
}

// Worker returns the current worker, or nil before the first start.
func (i *Instance) Worker() *supervisor.Worker {
	return i.current()
}

// TargetRate returns the worker's target rate, or -1.
func (i *Instance) TargetRate() int {
	if w := i.current(); w != nil {
		return w.TargetRate()
	}
	return -1
}

// CurrentRate returns the worker's measured call rate, or -1.
func (i *Instance) CurrentRate() float64 {
	if w := i.current(); w != nil {
		return w.CurrentRate()
	}
	return -1
}

// Retransmissions returns the periodic retransmission count, or 0.
func (i *Instance) Retransmissions() int {
	if w := i.current(); w != nil {
		return w.Retransmissions()
	}
	return 0
}

// Stats returns the latest snapshot of the current worker.
func (i *Instance) Stats() (*parser.Snapshot, error) {
	w := i.current()
	if w == nil {
		return nil, ErrNotStarted
	}
	return w.Stats(), nil
}

// State returns the worker state, or created/starting/failed before a
// worker exists.
func (i *Instance) State() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.startFuture != nil && !i.startFuture.IsDone() {
		return supervisor.StateStarting.String()
	}
	if i.worker != nil {
		return i.worker.State().String()
	}
	if i.lastErr != nil {
		return StateFailed
	}
	return StateCreated
}

// Active reports whether a worker process may be alive or a start is pending.
func (i *Instance) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.startFuture != nil && !i.startFuture.IsDone() {
		return true
	}
	return i.worker != nil && i.worker.Alive()
}

// Status is a serialisable view of an instance.
type Status struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Scenario        string    `json:"scenario"`
	State           string    `json:"state"`
	PID             int       `json:"pid,omitempty"`
	TargetRate      int       `json:"target_rate"`
	CurrentRate     float64   `json:"current_rate"`
	Retransmissions int       `json:"retransmissions"`
	Starts          int       `json:"starts"`
	ExitCode        int       `json:"exit_code"`
	Uptime          string    `json:"uptime,omitempty"`
	Created         time.Time `json:"created"`
	LastError       string    `json:"last_error,omitempty"`
	Command         string    `json:"command"`
}

// Status returns a point-in-time view.
func (i *Instance) Status() Status {
	st := Status{
		ID:              i.id.String(),
		Name:            i.spec.Name,
		Scenario:        i.spec.Scenario,
		State:           i.State(),
		TargetRate:      i.TargetRate(),
		CurrentRate:     i.CurrentRate(),
		Retransmissions: i.Retransmissions(),
		ExitCode:        -1,
		Created:         i.created,
		Command:         i.runner.CommandString(),
	}

	i.mu.Lock()
	st.Starts = i.starts
	if i.lastErr != nil {
		st.LastError = i.lastErr.Error()
	}
	w := i.worker
	i.mu.Unlock()

	if w != nil {
		st.PID = w.PID()
		st.ExitCode = w.ExitCode()
		if up := w.Uptime(); up > 0 {
			st.Uptime = up.Truncate(time.Second).String()
		}
	}
	return st
}

// String implements fmt.Stringer.
func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s)", i.spec.Name, i.id)
}
