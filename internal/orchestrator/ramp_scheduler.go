// Package orchestrator wires the instance registry, telemetry, REST API
// and dashboard into one load-generation run.
package orchestrator

import (
	"context"
	"time"
)

// RampScheduler paces instance starts so a large swarm does not launch
// every sipp process at once. Each start is offset by a per-instance
// jitter.
type RampScheduler struct {
	rate      int           // instances per second
	maxJitter time.Duration // maximum jitter per instance
	jitter    *JitterSource
}

// NewRampScheduler creates a new scheduler with the given rate and jitter.
func NewRampScheduler(rate int, maxJitter time.Duration) *RampScheduler {
	return &RampScheduler{
		rate:      rate,
		maxJitter: maxJitter,
		jitter:    NewJitterSourceFromTime(),
	}
}

// NewRampSchedulerWithSeed creates a scheduler with a specific seed for reproducibility.
func NewRampSchedulerWithSeed(rate int, maxJitter time.Duration, seed int64) *RampScheduler {
	return &RampScheduler{
		rate:      rate,
		maxJitter: maxJitter,
		jitter:    NewJitterSource(seed),
	}
}

// Delay returns how long to wait before starting the instance at index.
// Jitter is capped at half the base delay so a high rate is not slowed
// down by a large jitter setting.
func (r *RampScheduler) Delay(index int) time.Duration {
	// rate=5 means one instance every 200ms
	var base time.Duration
	maxJitter := r.maxJitter
	if r.rate > 0 {
		base = time.Second / time.Duration(r.rate)
		maxJitter = min(maxJitter, base/2)
	}
	return base + r.jitter.InstanceJitter(index, maxJitter)
}

// Schedule waits the appropriate amount of time before starting instance
// index. Returns the context error if cancelled.
func (r *RampScheduler) Schedule(ctx context.Context, index int) error {
	delay := r.Delay(index)
	if delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EstimatedRampDuration returns an upper estimate of the time to start n
// instances.
func (r *RampScheduler) EstimatedRampDuration(n int) time.Duration {
	if r.rate <= 0 {
		return 0
	}
	return time.Duration(n)*time.Second/time.Duration(r.rate) + r.maxJitter/2
}

// Rate returns the configured rate (instances per second).
func (r *RampScheduler) Rate() int {
	return r.rate
}

// MaxJitter returns the configured maximum jitter.
func (r *RampScheduler) MaxJitter() time.Duration {
	return r.maxJitter
}
