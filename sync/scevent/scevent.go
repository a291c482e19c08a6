// Package scevent implements the engine's single-consumer event (§4.6.4): a
// one-shot, idempotent "has this happened yet" signal that any number of
// producers may Send on, but only one consumer is expected to Wait on at a
// time (a second concurrent waiter is a programming error, mirroring the
// primitive's name).
package scevent

import (
	"sync/atomic"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// Event is a single-consumer, multi-producer, idempotent signal. The zero
// value is ready to use.
type Event struct {
	fired   atomic.Bool
	waiting atomic.Bool
	waiters waitlist.List
}

// Send marks the event as fired, waking the waiter if one is parked. Send is
// idempotent: calling it more than once has no further effect.
func (e *Event) Send() {
	if !e.fired.CompareAndSwap(false, true) {
		return
	}
	e.waiters.WakeAll(waitlist.OutcomeSignal)
}

// IsFired reports whether Send has ever been called.
func (e *Event) IsFired() bool {
	return e.fired.Load()
}

// Wait blocks ctx until Send has been called, the deadline is reached, or
// ctx is cancelled. Calling Wait concurrently from more than one goroutine
// is a programming error (§7 PrimitiveMisuse) — this is a *single*-consumer
// event.
func (e *Event) Wait(ctx *task.Context, dl deadline.Deadline) error {
	if !e.waiting.CompareAndSwap(false, true) {
		errs.Misuse("scevent: concurrent Wait on a single-consumer event")
	}
	defer e.waiting.Store(false)

	if e.fired.Load() {
		return nil
	}
	node := waitlist.NewNode(nil)
	e.waiters.Append(node)
	if e.fired.Load() {
		// Closed the race: Send may have fired and already drained the
		// list before our Append was visible to it, or may be about to
		// wake us — either way TryWake below is a harmless no-op if Send
		// already won.
		if node.TryWake(waitlist.OutcomeSignal) {
			e.waiters.Remove(node)
			return nil
		}
	}

	_, err := ctx.Park(&e.waiters, node, dl)
	return err
}

// Reset clears the fired flag, allowing the event to be reused. Reset must
// only be called when no Wait is in flight.
func (e *Event) Reset() {
	e.fired.Store(false)
}
