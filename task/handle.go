package task

import (
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/waitlist"
)

// Handle is the caller-facing reference to a spawned task (§6.1
// task_handle<T>). It is obtained from taskprocessor.Spawn and used to join,
// cancel, or detach the task.
type Handle[T any] struct {
	ctx       *Context
	value     T
	err       error
	retrieved atomic.Bool
	detached  atomic.Bool
	// onAbandoned is invoked at most once, by the finalizer, if the task
	// completed with an error that nobody ever retrieved via Join and the
	// Handle was never explicitly Detach()ed — the abandoned-error path
	// named in §3's Task invariants. Set by the spawning task-processor so
	// it can route the error through its own logger.
	onAbandoned func(err error)
}

// NewHandle constructs an empty Handle; unexported fields are populated by
// the spawning task-processor before the task is enqueued.
func NewHandle[T any]() *Handle[T] {
	return &Handle[T]{}
}

// OnAbandoned registers the abandoned-error callback described on the
// onAbandoned field.
func (h *Handle[T]) OnAbandoned(fn func(err error)) { h.onAbandoned = fn }

// BindContext associates the Handle with its task's Context. Called exactly
// once by the spawning task-processor.
func (h *Handle[T]) BindContext(ctx *Context) {
	h.ctx = ctx
	runtime.SetFinalizer(h, func(h *Handle[T]) {
		if h.detached.Load() || h.retrieved.Load() || h.onAbandoned == nil {
			return
		}
		select {
		case <-h.ctx.Done():
		default:
			return // still running; nothing abandoned yet
		}
		if h.err != nil {
			h.onAbandoned(h.err)
		}
	})
}

// Context returns the task's Context.
func (h *Handle[T]) Context() *Context { return h.ctx }

// SetResult publishes the task's successful (or failed) return value. Called
// exactly once, by the task body's wrapper, before the Context transitions
// to Completed.
func (h *Handle[T]) SetResult(v T, err error) {
	h.value = v
	h.err = err
}

// SetError publishes a failure without a value (used for recovered panics).
func (h *Handle[T]) SetError(err error) {
	var zero T
	h.value = zero
	h.err = err
}

// Join blocks joiner until this task completes, honoring joiner's
// cancellation and deadline (§6.1 task_handle::join() -> T). Per §3
// invariants, the return slot is readable exactly once; a second Join call
// from the same or another joiner still returns the same cached value, since
// Go's GC-backed Handle has no single-reader restriction to enforce (unlike
// the source's move-only future), but only the first caller across the
// whole program should rely on error-surfacing semantics for an otherwise
// undetached task.
func (h *Handle[T]) Join(joiner *Context) (T, error) {
	h.retrieved.Store(true)
	if h.ctx.State() == StateCompleted {
		return h.value, h.err
	}
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	go func() {
		<-h.ctx.Done()
		node.TryWake(waitlist.OutcomeSignal)
	}()
	list.Append(node)
	_, err := joiner.Park(list, node, deadline.Never)
	if err != nil {
		var zero T
		return zero, err
	}
	return h.value, h.err
}

// JoinBlocking blocks unconditionally (no cancellation/deadline awareness)
// until the task completes. Intended for non-task callers such as tests or
// a program's main goroutine.
func (h *Handle[T]) JoinBlocking() (T, error) {
	h.retrieved.Store(true)
	<-h.ctx.Done()
	return h.value, h.err
}

// Cancel requests cancellation of the underlying task (§6.1
// task_handle::cancel()).
func (h *Handle[T]) Cancel() { h.ctx.RequestCancel() }

// Detach marks the task as not needing to be joined, suppressing the
// abandoned-error path for it (§6.1 task_handle::detach()).
func (h *Handle[T]) Detach() { h.detached.Store(true) }

// Err returns the task's error without blocking, if it has already
// completed, with ok=false if it has not.
func (h *Handle[T]) Err() (error, bool) {
	select {
	case <-h.ctx.Done():
		return h.err, true
	default:
		return nil, false
	}
}
