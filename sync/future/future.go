// Package future implements the engine's Future/Promise pair (§4.6.5):
// a single-shot, single-consumer value handoff between a producer (Promise)
// and exactly one consumer (Future), with broken-promise detection when the
// producer side is dropped without ever setting a value.
package future

import (
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/sync/scevent"
	"github.com/joeycumines/goengine/task"
)

type state[T any] struct {
	ready     scevent.Event
	value     T
	err       error
	retrieved atomic.Bool
}

// Promise is the producer side of a Future/Promise pair. The zero value is
// not usable; construct one with NewPromise.
type Promise[T any] struct {
	s *state[T]
}

// Future is the single-consumer side of a Future/Promise pair.
type Future[T any] struct {
	s *state[T]
}

// NewPromise constructs a linked Promise/Future pair. A finalizer on the
// Promise handles the broken-promise case: if the Promise is
// garbage-collected without ever having been fulfilled, the shared state is
// resolved with ErrBrokenPromise, so a pending or later Get returns that
// error instead of hanging forever.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	s := &state[T]{}
	p := &Promise[T]{s: s}
	f := &Future[T]{s: s}
	runtime.SetFinalizer(p, func(p *Promise[T]) {
		if !p.s.ready.IsFired() {
			p.s.err = errs.ErrBrokenPromise
			p.s.ready.Send()
		}
	})
	return p, f
}

// SetValue fulfills the promise with a value. Calling SetValue or SetError
// more than once on the same Promise is a programming error.
func (p *Promise[T]) SetValue(v T) {
	if p.s.ready.IsFired() {
		errs.Misuse("future: promise already fulfilled")
	}
	p.s.value = v
	p.s.ready.Send()
}

// SetError fulfills the promise with an error instead of a value.
func (p *Promise[T]) SetError(err error) {
	if err == nil {
		errs.Misuse("future: SetError called with a nil error")
	}
	if p.s.ready.IsFired() {
		errs.Misuse("future: promise already fulfilled")
	}
	p.s.err = err
	p.s.ready.Send()
}

// Get blocks ctx until the promise is fulfilled, the deadline is reached, or
// ctx is cancelled. The result may only be retrieved once per Future — a
// call made after (or concurrently with) another Get returns
// ErrFutureAlreadyRetrieved immediately (§7). A Get that fails with a
// timeout or cancellation does not count as a retrieval; Get may be called
// again.
func (f *Future[T]) Get(ctx *task.Context, dl deadline.Deadline) (T, error) {
	var zero T
	if !f.s.retrieved.CompareAndSwap(false, true) {
		return zero, errs.ErrFutureAlreadyRetrieved
	}
	if err := f.s.ready.Wait(ctx, dl); err != nil {
		f.s.retrieved.Store(false)
		return zero, err
	}
	if f.s.err != nil {
		return zero, f.s.err
	}
	return f.s.value, nil
}

// IsReady reports whether the promise has already been fulfilled, without
// blocking.
func (f *Future[T]) IsReady() bool {
	return f.s.ready.IsFired()
}
