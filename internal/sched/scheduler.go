// Package sched runs short tasks on a bounded pool of goroutines and
// supports delayed re-submission, which the supervisor uses for its polling
// loops.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when work is submitted after Close.
var ErrClosed = errors.New("scheduler closed")

// DefaultWorkers is the pool size used when Config.Workers is not set.
const DefaultWorkers = 16

// Task is a unit of work. The context is cancelled when the scheduler closes.
// Every accepted task runs exactly once; a task that had not started when
// Close was called runs with the cancelled context and without a worker slot.
type Task func(ctx context.Context)

// Config holds scheduler options.
type Config struct {
	Workers int
	Logger  *slog.Logger
}

// Scheduler executes tasks with at most Workers running at once.
type Scheduler struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]Task
	wg     sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]Task),
	}
}

// Submit runs task as soon as a worker slot is free.
func (s *Scheduler) Submit(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.wg.Add(1)
	go s.run(task)
	return nil
}

// Schedule runs task after delay.
func (s *Scheduler) Schedule(delay time.Duration, task Task) error {
	if delay <= 0 {
		return s.Submit(task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.timers[timer]
		delete(s.timers, timer)
		s.mu.Unlock()

		// Close already accounted for this timer.
		if !pending {
			return
		}
		s.run(task)
	})
	s.timers[timer] = task
	return nil
}

func (s *Scheduler) run(task Task) {
	defer s.wg.Done()

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		// Closed while waiting for a slot.
		s.invoke(task)
		return
	}
	defer s.sem.Release(1)
	s.invoke(task)
}

func (s *Scheduler) invoke(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled_task_panic", "panic", r)
		}
	}()
	task(s.ctx)
}

// Close stops pending timers, signals every task through its context and
// waits for them to return or for ctx to expire. Tasks whose timer had not
// fired are run once with the cancelled context so they can release what
// they hold.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var stopped []Task
	for t, task := range s.timers {
		// A timer that already fired is left for its callback.
		if t.Stop() {
			stopped = append(stopped, task)
			delete(s.timers, t)
		}
	}
	s.mu.Unlock()

	s.cancel()

	for _, task := range stopped {
		go func() {
			defer s.wg.Done()
			s.invoke(task)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (s *Scheduler) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
