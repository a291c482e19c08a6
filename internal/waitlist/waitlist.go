// Package waitlist implements the universal parking primitive used by every
// blocking synchronization primitive in the engine: an intrusive
// doubly-linked list of wait-nodes, guarded by a lock held only across O(1)
// splice operations, plus the CAS-based single-wake guarantee that lets a
// node be raced by a signal, a deadline timer, and a cancellation watcher at
// once without ever double-waking it.
package waitlist

import (
	"sync"
	"sync/atomic"
)

// Outcome is the reason a Node was woken.
type Outcome int32

const (
	// outcomeUnset is the zero value: the node has not yet been woken.
	outcomeUnset Outcome = iota
	// OutcomeSignal means the primitive itself woke the waiter (lock
	// acquired, value pushed, notify fired, and so on).
	OutcomeSignal
	// OutcomeTimeout means the waiter's deadline was reached first.
	OutcomeTimeout
	// OutcomeCancelled means the waiter's task was cancelled first.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignal:
		return "signal"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unset"
	}
}

// Node is a single parked waiter. Callers embed or reference one Node per
// park call; it is not reusable across parks.
//
// The wake-up-source priority named by the core (cancellation > timeout >
// signal) is realized by the order in which a park call arms its watchers:
// the cancellation watcher must be armed first and the plain signal path
// last, so that — for any single physical wake event delivered to this
// node — whichever watcher notices first wins the race via TryWake's
// single CAS. Two watchers racing at the literal same instant resolve
// arbitrarily (first CAS wins); the documented contract only promises that
// cancellation is never silently lost once observed, not a total order
// across simultaneous physical events.
type Node struct {
	// Payload is primitive-specific data the waker inspects after TryWake
	// succeeds (e.g. desired slot count for a semaphore). Set before Append.
	Payload any

	outcome atomic.Int32
	ready   chan struct{}

	mu         *sync.Mutex // the owning List's lock
	prev, next *Node
	linked     bool
}

// NewNode constructs a fresh, unlinked Node.
func NewNode(payload any) *Node {
	return &Node{Payload: payload, ready: make(chan struct{})}
}

// TryWake attempts to resolve the node with the given outcome. Returns true
// iff this call won the race (i.e. the node was previously unwoken). Safe to
// call concurrently from multiple goroutines/watchers for the same node.
func (n *Node) TryWake(outcome Outcome) bool {
	if !n.outcome.CompareAndSwap(int32(outcomeUnset), int32(outcome)) {
		return false
	}
	close(n.ready)
	return true
}

// Done returns a channel that is closed once the node has been woken (by any
// outcome).
func (n *Node) Done() <-chan struct{} {
	return n.ready
}

// Outcome returns the winning outcome, or false if the node has not yet been
// woken.
func (n *Node) Outcome() (Outcome, bool) {
	v := Outcome(n.outcome.Load())
	return v, v != outcomeUnset
}

// List is an intrusive doubly-linked list of parked Nodes, FIFO by Append
// order. All operations are O(1) and hold the internal lock only across the
// splice itself.
type List struct {
	mu         sync.Mutex
	head, tail *Node
	len        int
}

// New constructs an empty wait-list.
func New() *List {
	return &List{}
}

// Len returns the number of currently-parked nodes. Racy by nature (callers
// should not depend on exactness beyond "roughly how many waiters").
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.len
}

// Append parks node at the tail of the list. The caller must not have
// already appended this node elsewhere.
func (l *List) Append(node *Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(node)
}

func (l *List) appendLocked(node *Node) {
	node.mu = &l.mu
	node.linked = true
	node.prev = l.tail
	node.next = nil
	if l.tail != nil {
		l.tail.next = node
	} else {
		l.head = node
	}
	l.tail = node
	l.len++
}

// Remove unlinks node from the list if it is still linked. Safe to call even
// if the node was already woken and removed by a waker; it is a no-op in
// that case.
func (l *List) Remove(node *Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(node)
}

func (l *List) removeLocked(node *Node) {
	if !node.linked {
		return
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev, node.next = nil, nil
	node.linked = false
	l.len--
}

// WakeOne wakes the head-of-line node that is still eligible (i.e. not
// already cancelled out), removing it from the list. Nodes whose TryWake
// already lost (already cancelled/timed out) are skipped and removed along
// the way, so that — per the mutex-fairness resolution in §9 — a cancelled
// waiter at the head never blocks the next eligible one. Returns the woken
// node's Payload and true, or nil/false if no eligible waiter was found.
func (l *List) WakeOne(outcome Outcome) (payload any, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for node := l.head; node != nil; {
		next := node.next
		l.removeLocked(node)
		if node.TryWake(outcome) {
			return node.Payload, true
		}
		node = next
	}
	return nil, false
}

// WakeOneIf behaves like WakeOne, except the head-of-line eligible node is
// only actually woken (and removed) if accept returns true for its Payload;
// otherwise WakeOneIf leaves it parked at the head and returns (nil, false)
// without consuming it. Nodes found already resolved by a racing watcher are
// skipped and removed regardless of accept, same as WakeOne. This lets a
// resource-counting waker (e.g. a semaphore) peek at how much the head
// waiter needs before deciding to commit to waking it.
func (l *List) WakeOneIf(outcome Outcome, accept func(payload any) bool) (payload any, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for node := l.head; node != nil; {
		next := node.next
		if _, resolved := node.Outcome(); resolved {
			l.removeLocked(node)
			node = next
			continue
		}
		if !accept(node.Payload) {
			return nil, false
		}
		l.removeLocked(node)
		if node.TryWake(outcome) {
			return node.Payload, true
		}
		node = next
	}
	return nil, false
}

// WakeAll wakes every currently-parked node with outcome, draining the list.
// Returns the number of nodes actually woken by this call (nodes already
// resolved by a racing watcher are skipped).
func (l *List) WakeAll(outcome Outcome) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	woken := 0
	for node := l.head; node != nil; {
		next := node.next
		l.removeLocked(node)
		if node.TryWake(outcome) {
			woken++
		}
		node = next
	}
	return woken
}
