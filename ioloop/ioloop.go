// Package ioloop adapts the engine's event-loop component (§4.4, §6.3) on
// top of a real poller/timer-heap event loop, rather than reimplementing
// epoll/kqueue/IOCP handling from scratch. It exposes the narrow surface the
// engine's task-facing waits need: FD readiness and one-shot timers, both
// expressed as task-cancellable/deadline-aware blocking calls instead of the
// underlying loop's raw callback style.
package ioloop

import (
	"context"
	"sync/atomic"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/sync/scevent"
	"github.com/joeycumines/goengine/task"
)

// IOEvents mirrors the underlying poller's event bitmask, re-exported so
// callers never need to import the wrapped package directly.
type IOEvents = eventloop.IOEvents

const (
	EventRead   = eventloop.EventRead
	EventWrite  = eventloop.EventWrite
	EventError  = eventloop.EventError
	EventHangup = eventloop.EventHangup
)

// Loop drives a background poller/timer event loop and exposes
// task-cancellable waits on top of it.
type Loop struct {
	inner  *eventloop.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs and starts a Loop. The loop runs its poll/timer cycle on a
// dedicated goroutine until Close is called.
func New() (*Loop, error) {
	inner, err := eventloop.New()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{inner: inner, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		_ = inner.Run(ctx)
	}()
	return l, nil
}

// Close stops the loop and waits for its goroutine to exit.
func (l *Loop) Close() error {
	l.cancel()
	<-l.done
	return l.inner.Close()
}

// RegisterFD arms monitoring of fd for the given event set; callback is
// invoked on the loop's goroutine whenever any of those events fire. This
// is a thin passthrough — the cancellable wait built on top is WaitIO.
func (l *Loop) RegisterFD(fd int, events IOEvents, callback func(IOEvents)) error {
	return l.inner.RegisterFD(fd, events, callback)
}

// UnregisterFD stops monitoring fd.
func (l *Loop) UnregisterFD(fd int) error {
	return l.inner.UnregisterFD(fd)
}

// ModifyFD changes the event set monitored for an already-registered fd.
func (l *Loop) ModifyFD(fd int, events IOEvents) error {
	return l.inner.ModifyFD(fd, events)
}

// WaitIO blocks ctx until fd becomes ready for any event in events, the
// deadline fires, or ctx is cancelled. It registers fd for the duration of
// the wait and unregisters it afterward — callers needing a
// longer-lived registration should use RegisterFD/UnregisterFD directly and
// pair it with their own notification channel instead.
func (l *Loop) WaitIO(ctx *task.Context, dl deadline.Deadline, fd int, events IOEvents) (IOEvents, error) {
	var fired atomic.Uint32
	var ev scevent.Event
	if err := l.inner.RegisterFD(fd, events, func(got IOEvents) {
		fired.Store(uint32(got))
		ev.Send()
	}); err != nil {
		return 0, err
	}
	defer l.inner.UnregisterFD(fd)

	if err := ev.Wait(ctx, dl); err != nil {
		return 0, err
	}
	return IOEvents(fired.Load()), nil
}

// Timer is a single-shot, cancellable timer armed on the loop.
type Timer struct {
	cancelled atomic.Bool
}

// ArmTimer schedules fn to run (on the loop's goroutine) after delay,
// unless the returned Timer is cancelled first.
func (l *Loop) ArmTimer(delay time.Duration, fn func()) (*Timer, error) {
	t := &Timer{}
	if err := l.inner.ScheduleTimer(delay, func() {
		if !t.cancelled.Load() {
			fn()
		}
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel prevents a not-yet-fired Timer's callback from running. It is
// a best-effort cancellation: the underlying loop has no timer-removal API,
// so a timer that's already about to fire when Cancel is called may still
// have been in flight; the cancelled flag is checked right before fn runs,
// closing that window to the smallest possible.
func (t *Timer) Cancel() {
	t.cancelled.Store(true)
}

// SleepFor blocks ctx for d (or until ctx is cancelled/its own deadline
// fires), using the loop's timer heap rather than a raw time.Timer —
// keeping every sleep on one physical clock source that also drives FD
// polling.
func (l *Loop) SleepFor(ctx *task.Context, d time.Duration) error {
	var ev scevent.Event
	if _, err := l.ArmTimer(d, func() { ev.Send() }); err != nil {
		return err
	}
	return ev.Wait(ctx, deadline.Never)
}
