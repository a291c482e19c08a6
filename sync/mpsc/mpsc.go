// Package mpsc implements the engine's bounded multi-producer/
// single-consumer queue (§4.6.6). Any number of Producer handles may push
// concurrently; exactly one Consumer handle may exist per queue — a second
// NewConsumer call is a programming error.
package mpsc

import (
	"sync"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/ring"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// Queue is a bounded MPSC queue of T.
type Queue[T any] struct {
	mu         sync.Mutex
	buf        *ring.Buffer[T]
	closed     bool
	closers    int // count of live producer handles, for ref-counted close
	pushWaiter waitlist.List
	popWaiter  waitlist.List
	hasCons    bool
}

// New constructs a Queue with the given fixed capacity.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{buf: ring.New[T](capacity)}
}

// Producer is one of possibly many push-side handles for a Queue.
type Producer[T any] struct{ q *Queue[T] }

// Consumer is the single pop-side handle for a Queue.
type Consumer[T any] struct{ q *Queue[T] }

// NewProducer binds a new producer handle to the queue. Any number of
// producer handles may coexist.
func NewProducer[T any](q *Queue[T]) *Producer[T] {
	q.mu.Lock()
	q.closers++
	q.mu.Unlock()
	return &Producer[T]{q: q}
}

// NewConsumer binds the queue's single consumer role. Calling this twice on
// the same Queue is a programming error.
func NewConsumer[T any](q *Queue[T]) *Consumer[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasCons {
		errs.Misuse("mpsc: a consumer handle already exists for this queue")
	}
	q.hasCons = true
	return &Consumer[T]{q: q}
}

// TryPush attempts to push without blocking.
func (p *Producer[T]) TryPush(value T) bool {
	q := p.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if !q.buf.Push(value) {
		return false
	}
	q.popWaiter.WakeOne(waitlist.OutcomeSignal)
	return true
}

// Push blocks ctx until there is room, the deadline fires, ctx is
// cancelled, or the queue is closed.
func (p *Producer[T]) Push(ctx *task.Context, dl deadline.Deadline, value T) error {
	q := p.q
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return errs.ErrQueueClosed
		}
		if q.buf.Push(value) {
			q.popWaiter.WakeOne(waitlist.OutcomeSignal)
			q.mu.Unlock()
			return nil
		}
		node := waitlist.NewNode(nil)
		q.pushWaiter.Append(node)
		q.mu.Unlock()

		if _, err := ctx.Park(&q.pushWaiter, node, dl); err != nil {
			return err
		}
	}
}

// Close releases this producer handle. Once every producer handle obtained
// from NewProducer has been closed, the queue itself is marked closed: the
// consumer drains whatever remains, then Pop returns ErrQueueClosed.
func (p *Producer[T]) Close() {
	q := p.q
	q.mu.Lock()
	q.closers--
	last := q.closers <= 0
	if last {
		q.closed = true
	}
	q.mu.Unlock()
	if last {
		q.popWaiter.WakeAll(waitlist.OutcomeSignal)
	}
}

// TryPop attempts to pop without blocking.
func (c *Consumer[T]) TryPop() (value T, ok bool) {
	q := c.q
	q.mu.Lock()
	defer q.mu.Unlock()
	value, ok = q.buf.Pop()
	if ok {
		q.pushWaiter.WakeAll(waitlist.OutcomeSignal)
	}
	return value, ok
}

// PopBatch drains up to max currently-available values without blocking,
// waking any producers parked on a full queue in one pass rather than one
// wake per popped element.
func (c *Consumer[T]) PopBatch(max int) []T {
	q := c.q
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, max)
	for len(out) < max {
		v, ok := q.buf.Pop()
		if !ok {
			break
		}
		out = append(out, v)
	}
	if len(out) > 0 {
		q.pushWaiter.WakeAll(waitlist.OutcomeSignal)
	}
	return out
}

// Pop blocks ctx until a value is available, the deadline fires, ctx is
// cancelled, or the queue is closed and drained.
func (c *Consumer[T]) Pop(ctx *task.Context, dl deadline.Deadline) (T, error) {
	q := c.q
	for {
		q.mu.Lock()
		if value, ok := q.buf.Pop(); ok {
			q.pushWaiter.WakeAll(waitlist.OutcomeSignal)
			q.mu.Unlock()
			return value, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, errs.ErrQueueClosed
		}
		node := waitlist.NewNode(nil)
		q.popWaiter.Append(node)
		q.mu.Unlock()

		if _, err := ctx.Park(&q.popWaiter, node, dl); err != nil {
			var zero T
			return zero, err
		}
	}
}
