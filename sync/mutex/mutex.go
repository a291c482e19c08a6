// Package mutex implements the engine's fair FIFO mutex (§4.6.1).
package mutex

import (
	"sync"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// Mutex is a fair, FIFO, cooperatively-blocking mutual exclusion lock. The
// zero value is ready to use.
//
// Fairness under cancellation (§9 Open Question resolution): a cancelled
// waiter at the FIFO head is skipped by Unlock's handoff; ownership passes
// to the next eligible waiter instead.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters waitlist.List
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Lock blocks ctx until the mutex is acquired, the deadline is reached, or
// ctx is cancelled (§4.6.1 lock(deadline)).
func (m *Mutex) Lock(ctx *task.Context, dl deadline.Deadline) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	node := waitlist.NewNode(nil)
	m.waiters.Append(node)
	m.mu.Unlock()

	_, err := ctx.Park(&m.waiters, node, dl)
	return err
}

// Unlock releases the mutex, transferring ownership directly to the
// longest-waiting eligible waiter if any (no unlocked window in between —
// §4.6.1 "no hand-off race"), or marking it free otherwise.
//
// Unlock of an unlocked Mutex is a programming error (§7 PrimitiveMisuse).
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		errs.Misuse("mutex: unlock of unlocked mutex")
	}
	if _, ok := m.waiters.WakeOne(waitlist.OutcomeSignal); ok {
		// ownership transferred to the woken waiter; locked stays true.
		return
	}
	m.locked = false
}

// IsLocked reports whether the mutex is currently held, for diagnostics
// only.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
