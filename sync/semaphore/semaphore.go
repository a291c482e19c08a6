// Package semaphore implements a FIFO-fair counting semaphore built
// directly on the wait-list primitive, named in §6.2 and specified fully
// here (spec.md's §4.6 prose does not detail it beyond the name). It is a
// general-purpose building block for any component needing an N-at-a-time
// admission limit (coropool keeps its own channel-based token pool).
package semaphore

import (
	"sync"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// Semaphore is a FIFO-fair counting semaphore.
type Semaphore struct {
	mu        sync.Mutex
	available int
	waiters   waitlist.List
}

// New constructs a Semaphore with the given number of initially-available
// slots.
func New(slots int) *Semaphore {
	if slots < 0 {
		errs.Misuse("semaphore: negative initial slot count")
	}
	return &Semaphore{available: slots}
}

// TryAcquire attempts to acquire n slots without blocking.
func (s *Semaphore) TryAcquire(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available < n {
		return false
	}
	s.available -= n
	return true
}

// Acquire blocks ctx until n slots are available, the deadline is reached,
// or ctx is cancelled.
func (s *Semaphore) Acquire(ctx *task.Context, dl deadline.Deadline, n int) error {
	s.mu.Lock()
	if s.available >= n {
		s.available -= n
		s.mu.Unlock()
		return nil
	}
	node := waitlist.NewNode(n)
	s.waiters.Append(node)
	s.mu.Unlock()

	_, err := ctx.Park(&s.waiters, node, dl)
	return err
}

// Release returns n slots, then wakes waiters in FIFO order as long as the
// head waiter's requested count can be satisfied from what's available,
// stopping as soon as one can't — so a large request blocks behind enough
// releases to satisfy it rather than being starved by smaller ones cutting
// the queue.
func (s *Semaphore) Release(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available += n
	for {
		_, ok := s.waiters.WakeOneIf(waitlist.OutcomeSignal, func(payload any) bool {
			want := payload.(int)
			if s.available < want {
				return false
			}
			s.available -= want
			return true
		})
		if !ok {
			return
		}
	}
}
