// Package spsc implements the engine's bounded single-producer/
// single-consumer queue (§4.6.6). Exactly one Producer handle and one
// Consumer handle may exist per queue — a second NewProducer or NewConsumer
// call is a programming error and panics. Concurrent Push/Pop calls through
// the same handle are not detected; the queue's internal mutex keeps them
// from corrupting the buffer.
package spsc

import (
	"sync"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/ring"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// Queue is a bounded SPSC queue of T. Construct with New; obtain the
// Producer/Consumer handles with NewProducer/NewConsumer.
type Queue[T any] struct {
	mu         sync.Mutex
	buf        *ring.Buffer[T]
	closed     bool
	pushWaiter waitlist.List // producer parks here when full
	popWaiter  waitlist.List // consumer parks here when empty
	hasProd    bool
	hasCons    bool
}

// New constructs a Queue with the given fixed capacity.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{buf: ring.New[T](capacity)}
}

// Producer is the single push-side handle for a Queue.
type Producer[T any] struct{ q *Queue[T] }

// Consumer is the single pop-side handle for a Queue.
type Consumer[T any] struct{ q *Queue[T] }

// NewProducer binds the queue's producer role. Calling this twice on the
// same Queue is a programming error.
func NewProducer[T any](q *Queue[T]) *Producer[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasProd {
		errs.Misuse("spsc: a producer handle already exists for this queue")
	}
	q.hasProd = true
	return &Producer[T]{q: q}
}

// NewConsumer binds the queue's consumer role. Calling this twice on the
// same Queue is a programming error.
func NewConsumer[T any](q *Queue[T]) *Consumer[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasCons {
		errs.Misuse("spsc: a consumer handle already exists for this queue")
	}
	q.hasCons = true
	return &Consumer[T]{q: q}
}

// TryPush attempts to push without blocking. Returns false if the queue is
// full or closed.
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
// cancelled, or the queue is closed (returning ErrQueueClosed).
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

// Close marks the queue closed: further Push calls fail, and Pop drains
// whatever remains before itself failing with ErrQueueClosed.
func (p *Producer[T]) Close() {
	q := p.q
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.popWaiter.WakeAll(waitlist.OutcomeSignal)
}

// TryPop attempts to pop without blocking.
func (c *Consumer[T]) TryPop() (value T, ok bool) {
	q := c.q
	q.mu.Lock()
	defer q.mu.Unlock()
	value, ok = q.buf.Pop()
	if ok {
		q.pushWaiter.WakeOne(waitlist.OutcomeSignal)
	}
	return value, ok
}

// Pop blocks ctx until a value is available, the deadline fires, ctx is
// cancelled, or the queue is closed and drained (returning ErrQueueClosed).
func (c *Consumer[T]) Pop(ctx *task.Context, dl deadline.Deadline) (T, error) {
	q := c.q
	for {
		q.mu.Lock()
		if value, ok := q.buf.Pop(); ok {
			q.pushWaiter.WakeOne(waitlist.OutcomeSignal)
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
