package task

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/tasklocal"
)

func Test_Context_lifecycleTransitions(t *testing.T) {
	t.Parallel()
	c := New(1, "p", nil, deadline.Never, nil)
	if c.State() != StateNew {
		t.Fatalf("expected StateNew, got %v", c.State())
	}
	c.MarkQueued()
	if c.State() != StateQueued {
		t.Fatalf("expected StateQueued, got %v", c.State())
	}
	c.MarkRunning()
	if c.State() != StateRunning {
		t.Fatalf("expected StateRunning, got %v", c.State())
	}
	c.MarkCompleted()
	if c.State() != StateCompleted {
		t.Fatalf("expected StateCompleted, got %v", c.State())
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done channel to be closed after MarkCompleted")
	}
}

func Test_Context_MarkCompleted_isIdempotent(t *testing.T) {
	t.Parallel()
	calls := 0
	c := New(1, "p", nil, deadline.Never, func() { calls++ })
	c.MarkQueued()
	c.MarkRunning()
	c.MarkCompleted()
	c.MarkCompleted()
	if calls != 1 {
		t.Fatalf("expected onComplete to fire exactly once, got %d", calls)
	}
}

func Test_Context_RequestCancel_isStickyAndFirstReasonWins(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	if c.ShouldCancel() {
		t.Fatal("fresh context should not be cancelled")
	}
	c.RequestCancel()
	c.RequestCancelDeadline()
	if !c.ShouldCancel() {
		t.Fatal("expected cancellation to be requested")
	}
	if c.CancellationReason() != errs.ReasonUser {
		t.Fatalf("expected the first reason (user) to stick, got %v", c.CancellationReason())
	}
}

func Test_Context_CancellationPoint(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	if err := c.CancellationPoint(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	c.RequestCancel()
	err := c.CancellationPoint()
	var cancelled *errs.CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected a CancelledError, got %v", err)
	}
}

func Test_Context_WithoutCancellation_masksDuringSection(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	c.RequestCancel()

	var sawNilInsideMask error
	c.WithoutCancellation(func() {
		sawNilInsideMask = c.CancellationPoint()
	})
	if sawNilInsideMask != nil {
		t.Fatalf("expected cancellation to be masked inside the section, got %v", sawNilInsideMask)
	}
	if err := c.CancellationPoint(); err == nil {
		t.Fatal("expected cancellation to resurface once the section ends")
	}
}

func Test_Context_Park_wakesOnSignal(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	list.Append(node)

	go func() {
		time.Sleep(10 * time.Millisecond)
		node.TryWake(waitlist.OutcomeSignal)
	}()

	outcome, err := c.Park(list, node, deadline.Never)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != waitlist.OutcomeSignal {
		t.Fatalf("expected OutcomeSignal, got %v", outcome)
	}
}

func Test_Context_Park_timesOut(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	list.Append(node)

	_, err := c.Park(list, node, deadline.After(10*time.Millisecond))
	if !errors.Is(err, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func Test_Context_Park_cancelledWhileParked(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	list.Append(node)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.RequestCancel()
	}()

	_, err := c.Park(list, node, deadline.Never)
	if !errors.Is(err, errs.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func Test_Context_Park_alreadyCancelledNeverBlocks(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	c.RequestCancel()
	list := waitlist.New()
	node := waitlist.NewNode(nil)
	list.Append(node)

	done := make(chan error, 1)
	go func() {
		_, err := c.Park(list, node, deadline.Never)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, errs.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Park should have returned immediately for an already-cancelled context")
	}
}

func Test_Context_SleepFor_succeedsOnElapsedTime(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	start := time.Now()
	if err := c.SleepFor(20 * time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("SleepFor returned too early")
	}
}

func Test_Context_SleepFor_cancelledEarly(t *testing.T) {
	t.Parallel()
	c := NewDetached(deadline.Never)
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.RequestCancel()
	}()
	if err := c.SleepFor(time.Hour); !errors.Is(err, errs.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func Test_Context_WithLocal_doesNotAffectOtherContexts(t *testing.T) {
	t.Parallel()
	parentLocal := (&tasklocal.Map{}).With("a", 1)
	c1 := New(1, "p", parentLocal, deadline.Never, nil)
	c2 := New(2, "p", parentLocal, deadline.Never, nil)

	c1.WithLocal("b", 2)
	if _, ok := c2.Local().Get("b"); ok {
		t.Fatal("expected c2's local data to be unaffected by c1's WithLocal")
	}
	if v, ok := c1.Local().Get("b"); !ok || v != 2 {
		t.Fatalf("expected c1 to see b=2, got %v (ok=%v)", v, ok)
	}
}
