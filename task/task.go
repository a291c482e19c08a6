// Package task implements the scheduling record for one logical
// asynchronous computation (§3 Task, §4.3) and the suspension primitive
// every blocking synchronization primitive in this module builds on.
//
// Mapping note: userver's source schedules stackful fibers cooperatively
// across a fixed pool of OS threads, multiplexing many parked tasks onto
// few workers. Go's runtime already does exactly this multiplexing for
// goroutines, so this port takes each Task to be backed 1:1 by its own
// goroutine for its whole lifetime; a task-processor (see the taskprocessor
// package) becomes an admission gate bounding how many such goroutines may
// be in flight at once, rather than a literal continuation-swapping
// scheduler. Every contract this package and sync/* implement — the state
// machine, the cancellation/deadline semantics, the wake-up-source
// priority — holds regardless of that mapping; it only changes how
// "resume on a worker" is realized (here: the goroutine simply keeps
// running).
package task

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/tasklocal"
	"github.com/joeycumines/goroutineid"
)

// State is one of the task lifecycle states named in §4.3.
type State uint32

const (
	StateNew State = iota
	StateQueued
	StateRunning
	StateParked
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateParked:
		return "parked"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Context is the per-task scheduling record (§3 Task). A Context is created
// by a task-processor at Spawn and passed to the task body; it is the handle
// user code uses to observe cancellation, adjust its deadline, and park
// itself on synchronization primitives.
type Context struct {
	id          uint64
	processor   string
	debugGID    int64
	state       atomic.Uint32
	cancelReas  atomic.Int32
	cancelCh    chan struct{}
	cancelOnce  atomic.Bool
	maskDepth   atomic.Int32
	wakeSource  atomic.Int32
	deadlineVal atomic.Pointer[deadline.Deadline]
	localVal    atomic.Pointer[tasklocal.Map]
	doneCh      chan struct{}
	onComplete  func()
}

// newContext constructs a Context in state New. New and NewDetached are its
// exported entry points; a taskprocessor.Processor's Spawn uses New.
func newContext(id uint64, processorName string, inherited *tasklocal.Map, dl deadline.Deadline, onComplete func()) *Context {
	c := &Context{
		id:         id,
		processor:  processorName,
		debugGID:   goroutineid.Get(),
		cancelCh:   make(chan struct{}),
		doneCh:     make(chan struct{}),
		onComplete: onComplete,
	}
	c.state.Store(uint32(StateNew))
	c.deadlineVal.Store(&dl)
	if inherited == nil {
		inherited = (&tasklocal.Map{}).Fork()
	}
	c.localVal.Store(inherited)
	return c
}

// NewDetached constructs a standalone Context not owned by any processor,
// for use by non-task callers (tests, top-level code) that still want to
// exercise cancellation/deadline-aware primitives directly.
func NewDetached(dl deadline.Deadline) *Context {
	return newContext(0, "detached", nil, dl, nil)
}

// ID returns the task's unique id, stable for its entire lifetime.
func (c *Context) ID() uint64 { return c.id }

// ProcessorName returns the name of the owning task-processor.
func (c *Context) ProcessorName() string { return c.processor }

// DebugGoroutineID returns the OS-thread-local goroutine id captured when
// this Context was created, for diagnostic log correlation only; it is
// never used for scheduling decisions.
func (c *Context) DebugGoroutineID() int64 { return c.debugGID }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

func (c *Context) setState(s State) { c.state.Store(uint32(s)) }

func (c *Context) transition(from, to State) bool {
	return c.state.CompareAndSwap(uint32(from), uint32(to))
}

// markQueued transitions New/Parked -> Queued. Called by the owning
// task-processor.
func (c *Context) markQueued() {
	if !c.transition(StateNew, StateQueued) {
		c.transition(StateParked, StateQueued)
	}
}

// markRunning transitions Queued -> Running.
func (c *Context) markRunning() { c.transition(StateQueued, StateRunning) }

// markCompleted transitions Running -> Completed and releases any join
// waiters. Idempotent.
func (c *Context) markCompleted() {
	if c.transition(StateRunning, StateCompleted) {
		close(c.doneCh)
		if c.onComplete != nil {
			c.onComplete()
		}
	}
}

// Done returns a channel closed once the task reaches StateCompleted.
func (c *Context) Done() <-chan struct{} { return c.doneCh }

// Deadline returns the task's current absolute deadline.
func (c *Context) Deadline() deadline.Deadline {
	return *c.deadlineVal.Load()
}

// SetDeadline overrides the task's deadline; any blocking call issued after
// this point observes the new deadline. Per §5, this never un-expires an
// already-reached deadline retroactively — a call racing after the old
// deadline already cancelled the task has no effect on that cancellation.
func (c *Context) SetDeadline(d deadline.Deadline) {
	c.deadlineVal.Store(&d)
}

// ShouldCancel reports whether cancellation has been requested, regardless
// of whether it is currently masked by a non-cancellable section. Use
// CancellationPoint to additionally honor masking.
func (c *Context) ShouldCancel() bool {
	return errs.Reason(c.cancelReas.Load()) != errs.ReasonNone
}

// CancellationReason returns the sticky reason cancellation was requested
// for, or ReasonNone if it never was.
func (c *Context) CancellationReason() errs.Reason {
	return errs.Reason(c.cancelReas.Load())
}

// requestCancel sets the cancellation flag for reason if it is not already
// set (sticky: first reason wins, never cleared — §3 invariants). Returns
// true iff this call set it.
func (c *Context) requestCancel(reason errs.Reason) bool {
	if !c.cancelReas.CompareAndSwap(int32(errs.ReasonNone), int32(reason)) {
		return false
	}
	if c.cancelOnce.CompareAndSwap(false, true) {
		close(c.cancelCh)
	}
	return true
}

// RequestCancel is the user-facing cancellation entry point (backs
// Handle.Cancel).
func (c *Context) RequestCancel() { c.requestCancel(errs.ReasonUser) }

// RequestCancelDeadline is invoked by Park when the task's own deadline is
// reached while it is parked.
func (c *Context) RequestCancelDeadline() { c.requestCancel(errs.ReasonDeadline) }

// RequestCancelOverload is invoked by the owning task-processor under its
// overload policy.
func (c *Context) RequestCancelOverload() { c.requestCancel(errs.ReasonOverload) }

// WithoutCancellation runs fn in a non-cancellable section: cancellation
// observation is masked (CancellationPoint and Park return as if not
// cancelled) for the duration, but the sticky flag is left untouched and
// re-triggers at the next suspension point after fn returns (§5).
func (c *Context) WithoutCancellation(fn func()) {
	c.maskDepth.Add(1)
	defer c.maskDepth.Add(-1)
	fn()
}

func (c *Context) masked() bool { return c.maskDepth.Load() > 0 }

// CancellationPoint is the explicit poll helper named in §4.3/§6.1: it
// returns a *errs.CancelledError if cancellation is requested and not
// currently masked, else nil.
func (c *Context) CancellationPoint() error {
	if !c.masked() && c.ShouldCancel() {
		return errs.NewCancelled(c.CancellationReason())
	}
	return nil
}

// Local returns the task's current inherited-data snapshot.
func (c *Context) Local() *tasklocal.Map { return c.localVal.Load() }

// WithLocal replaces this task's inherited-data snapshot by adding/replacing
// key. Only affects this Context; per §4.7 a parent's subsequent writes
// never leak into an already-spawned child's map and vice versa, which is
// automatic here since each Context owns a private atomic pointer.
func (c *Context) WithLocal(key string, value any) {
	c.localVal.Store(c.Local().With(key, value))
}

// WakeSource returns the outcome of the most recently completed Park call.
func (c *Context) WakeSource() (waitlist.Outcome, bool) {
	v := waitlist.Outcome(c.wakeSource.Load())
	return v, v != 0
}

// Park is the universal suspension point (§5). The caller must have already
// appended node to list — critically, while still holding whatever lock
// guards the primitive's own state (Mutex.mu, SharedMutex.mu, and so on) —
// so that a concurrent waker can never fire between the primitive deciding
// to block and the node actually becoming visible on list (the lost-wakeup
// hazard). Park then waits for node to be woken by that signal, by
// opDeadline (composed with the task's own deadline via deadline.Min), or by
// this task's cancellation — whichever resolves first — removes node from
// list if still linked, and reports the outcome. Reaching opDeadline is a
// timeout (ErrTimeout); reaching the task's own deadline outside a
// WithoutCancellation section cancels the task with ReasonDeadline.
//
// Every synchronous blocking method on every primitive in sync/* is built on
// this one call.
func (c *Context) Park(list *waitlist.List, node *waitlist.Node, opDeadline deadline.Deadline) (waitlist.Outcome, error) {
	effective := deadline.Min(c.Deadline(), opDeadline)

	c.setState(StateParked)
	defer c.setState(StateRunning)

	// Safe-cancellation-of-waiting invariant (§5): after the node becomes
	// visible, re-check cancellation once more before committing to sleep.
	if !c.masked() && c.ShouldCancel() {
		if node.TryWake(waitlist.OutcomeCancelled) {
			list.Remove(node)
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	if !effective.IsNever() {
		timer = time.NewTimer(effective.Remaining())
		timerC = timer.C
		defer timer.Stop()
	}

wait:
	for {
		var cancelC <-chan struct{}
		if !c.masked() {
			cancelC = c.cancelCh
		}
		select {
		case <-node.Done():
			break wait
		case <-timerC:
			outcome := waitlist.OutcomeTimeout
			if !c.masked() && c.Deadline().IsReached() {
				// The task's own deadline has passed, not only this wait's:
				// that cancels the task with reason deadline.
				c.RequestCancelDeadline()
				outcome = waitlist.OutcomeCancelled
			}
			if node.TryWake(outcome) {
				list.Remove(node)
			}
			continue wait
		case <-cancelC:
			if node.TryWake(waitlist.OutcomeCancelled) {
				list.Remove(node)
			}
			continue wait
		}
	}

	outcome, _ := node.Outcome()
	c.wakeSource.Store(int32(outcome))

	switch outcome {
	case waitlist.OutcomeCancelled:
		return outcome, errs.NewCancelled(c.CancellationReason())
	case waitlist.OutcomeTimeout:
		return outcome, errs.ErrTimeout
	default:
		return outcome, nil
	}
}

// Yield is a no-op suspension point: it exists so code that wants to give
// other goroutines a scheduling chance (and observe cancellation while
// doing so) has an explicit, named call, matching current_task::yield().
func (c *Context) Yield() error {
	if err := c.CancellationPoint(); err != nil {
		return err
	}
	runtime.Gosched()
	return c.CancellationPoint()
}

// SleepFor parks for d, or until cancelled/the task's own deadline fires,
// whichever is first.
func (c *Context) SleepFor(d time.Duration) error {
	return c.SleepUntil(time.Now().Add(d))
}

// SleepUntil parks until t, or until cancelled/the task's own deadline
// fires, whichever is first.
func (c *Context) SleepUntil(t time.Time) error {
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	list.Append(node)
	_, err := c.Park(list, node, deadline.At(t))
	if err == errs.ErrTimeout {
		// reaching the sleep's own deadline is success for a sleep, not a
		// failure: there is nothing to time out *of*.
		return nil
	}
	return err
}

// Free-function wrappers matching the external API surface named in §6.1.

// Yield is the free-function form of (*Context).Yield.
func Yield(c *Context) error { return c.Yield() }

// SleepFor is the free-function form of (*Context).SleepFor.
func SleepFor(c *Context, d time.Duration) error { return c.SleepFor(d) }

// SleepUntil is the free-function form of (*Context).SleepUntil.
func SleepUntil(c *Context, t time.Time) error { return c.SleepUntil(t) }

// New constructs a Context; exported for use by packages implementing their
// own scheduler on top of this one (e.g. taskprocessor).
func New(id uint64, processorName string, inherited *tasklocal.Map, dl deadline.Deadline, onComplete func()) *Context {
	return newContext(id, processorName, inherited, dl, onComplete)
}

// MarkQueued, MarkRunning, and MarkCompleted expose the state machine
// transitions to the owning task-processor; they are not meant to be called
// by task bodies.
func (c *Context) MarkQueued()   { c.markQueued() }
func (c *Context) MarkRunning()  { c.markRunning() }
func (c *Context) MarkCompleted() { c.markCompleted() }
