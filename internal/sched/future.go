package sched

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous operation. It completes
// exactly once, either with a value or with an error.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an incomplete future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already resolved with v.
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v)
	return f
}

// Failed returns a future already rejected with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with v. Returns false if it was already complete.
func (f *Future[T]) Resolve(v T) bool {
	return f.complete(v, nil)
}

// Reject completes the future with err. Returns false if it was already complete.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(v T, err error) bool {
	ok := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		ok = true
		close(f.done)
	})
	return ok
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	if !f.IsDone() {
		return v, nil, false
	}
	return f.value, f.err, true
}

// Go runs fn on s and returns a future for its result. If s refuses the
// task, or closes before fn starts, the future fails with ErrClosed.
func Go[T any](s *Scheduler, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	err := s.Submit(func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(panicError{r})
				panic(r)
			}
		}()
		if ctx.Err() != nil {
			f.Reject(ErrClosed)
			return
		}
		v, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	})
	if err != nil {
		f.Reject(err)
	}
	return f
}

// Then runs fn on s with the value of f once f succeeds. Failures of f
// propagate unchanged.
func Then[T, U any](s *Scheduler, f *Future[T], fn func(ctx context.Context, v T) (U, error)) *Future[U] {
	out := NewFuture[U]()
	go func() {
		<-f.Done()
		v, err, _ := f.Result()
		if err != nil {
			out.Reject(err)
			return
		}
		next := Go(s, func(ctx context.Context) (U, error) { return fn(ctx, v) })
		<-next.Done()
		u, err, _ := next.Result()
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(u)
	}()
	return out
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return "task panicked"
}
