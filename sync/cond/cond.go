// Package cond implements the engine's condition variable (§4.6.3).
package cond

import (
	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/sync/mutex"
	"github.com/joeycumines/goengine/task"
)

// Cond is a condition variable associated with a *mutex.Mutex, following the
// standard "unlock, park, reacquire" contract. The zero value (with M set)
// is ready to use.
type Cond struct {
	M       *mutex.Mutex
	waiters waitlist.List
}

// New constructs a Cond for m.
func New(m *mutex.Mutex) *Cond {
	return &Cond{M: m}
}

// Wait atomically unlocks M, parks until woken or the deadline/cancellation
// fires, then reacquires M before returning — even on cancellation, unless
// ctx's cancellation reason dictates otherwise (§4.6.3: "the mutex is
// reacquired before returning unless cancellation policy says otherwise";
// this implementation always reacquires, since leaving M unlocked on a
// cancelled wait would violate the caller's lock-then-defer-unlock idiom).
//
// Spurious wakeups are permitted: callers must re-check their own predicate,
// which is why WaitPredicate exists as the contract-bearing API for anything
// beyond manual loops.
func (c *Cond) Wait(ctx *task.Context, dl deadline.Deadline) error {
	node := waitlist.NewNode(nil)
	c.waiters.Append(node)
	c.M.Unlock()

	_, err := ctx.Park(&c.waiters, node, dl)

	// Reacquire unconditionally, per the doc comment above.
	if lockErr := c.M.Lock(ctx, deadline.Never); lockErr != nil {
		// Lock(ctx, Never) can only itself fail via cancellation racing a
		// second time; surface whichever error is more specific.
		if err == nil {
			err = lockErr
		}
	}
	return err
}

// WaitPredicate loops Wait until pred returns true, or an error (timeout or
// cancellation) occurs; this is the contract-bearing API named in §4.6.3.
func (c *Cond) WaitPredicate(ctx *task.Context, dl deadline.Deadline, pred func() bool) error {
	for !pred() {
		if err := c.Wait(ctx, dl); err != nil {
			return err
		}
	}
	return nil
}

// NotifyOne wakes at most one waiter. As with standard condition variables,
// callers should hold M when calling NotifyOne/NotifyAll, to avoid racing a
// concurrent waiter's Append against this call.
func (c *Cond) NotifyOne() {
	c.waiters.WakeOne(waitlist.OutcomeSignal)
}

// NotifyAll wakes every current waiter.
func (c *Cond) NotifyAll() {
	c.waiters.WakeAll(waitlist.OutcomeSignal)
}
