// Package errs defines the core's error kinds and their cause-chain wrapping,
// following the same Unwrap/Is-compatible style as the rest of the engine's
// ambient error handling.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors matching one of the core's error kinds (§7). Compare with
// [errors.Is]; wrapped occurrences (CancelledError) carry additional context
// in a Reason field but still satisfy errors.Is against these sentinels.
var (
	// ErrCancelled indicates the task or wait was cancelled (user, deadline,
	// or overload).
	ErrCancelled = errors.New("goengine: cancelled")
	// ErrTimeout indicates a deadline-bound wait expired without the task
	// itself being cancelled.
	ErrTimeout = errors.New("goengine: timeout")
	// ErrBrokenPromise indicates a Promise was dropped without a value ever
	// being set.
	ErrBrokenPromise = errors.New("goengine: broken promise")
	// ErrFutureAlreadyRetrieved indicates Future.Get was called more than
	// once on the same Future.
	ErrFutureAlreadyRetrieved = errors.New("goengine: future already retrieved")
	// ErrNoState indicates a Future or Promise has no shared state (zero
	// value used directly instead of via NewPromise).
	ErrNoState = errors.New("goengine: no shared state")
	// ErrPoolExhausted indicates the coroutine pool has no more live slots
	// under its configured max size.
	ErrPoolExhausted = errors.New("goengine: coroutine pool exhausted")
	// ErrOverload indicates a task-processor rejected a spawn because its
	// ready-queue soft limit was exceeded under the cancel-new-tasks policy.
	ErrOverload = errors.New("goengine: task-processor overloaded")
	// ErrQueueClosed indicates a bounded queue's producer side was closed;
	// further pushes fail immediately and a drained, closed queue's pops
	// fail immediately too.
	ErrQueueClosed = errors.New("goengine: queue closed")
)

// Reason is a cancellation reason, recorded on a CancelledError so that
// callers can distinguish why a wait or task was cancelled.
type Reason int

const (
	// ReasonNone is the zero value; never attached to an error.
	ReasonNone Reason = iota
	// ReasonUser means a caller invoked Handle.Cancel or set the
	// cancellation flag directly.
	ReasonUser
	// ReasonDeadline means the task's own deadline fired.
	ReasonDeadline
	// ReasonOverload means the owning task-processor rejected or aborted
	// the task under its overload policy.
	ReasonOverload
)

func (r Reason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonDeadline:
		return "deadline"
	case ReasonOverload:
		return "overload"
	default:
		return "none"
	}
}

// CancelledError wraps ErrCancelled with the reason it fired.
type CancelledError struct {
	Reason Reason
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("goengine: cancelled: %s", e.Reason)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// NewCancelled constructs a CancelledError for the given reason.
func NewCancelled(reason Reason) *CancelledError {
	return &CancelledError{Reason: reason}
}

// Misuse panics to report a programming error (duplicate Producer/Consumer,
// unlock without lock, and similar). Misuse is never returned as an error:
// per §7, PrimitiveMisuse is a bug, not a runtime condition.
func Misuse(format string, args ...any) {
	panic(fmt.Sprintf("goengine: misuse: "+format, args...))
}
