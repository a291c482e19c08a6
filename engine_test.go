package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/joeycumines/goengine/coropool"
	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/task"
	"github.com/joeycumines/goengine/taskprocessor"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{
		TaskProcessors: []taskprocessor.Config{
			{Name: "main", WorkerThreads: 2},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = e.Stop(context.Background(), true)
	})
	return e
}

func Test_Async_runsAndJoins(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	h, err := Async(e, func(ctx *task.Context) (int, error) {
		return 41, nil
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}
	joiner := task.NewDetached(deadline.Never)
	v, err := h.Join(joiner)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if v != 41 {
		t.Fatalf("expected 41, got %d", v)
	}
}

func Test_Async_propagatesError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	sentinel := errors.New("task failed")
	h, err := Async(e, func(ctx *task.Context) (int, error) {
		return 0, sentinel
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}
	h.Detach() // avoid an abandoned-error finalizer firing during the test run
	joiner := task.NewDetached(deadline.Never)
	_, err = h.Join(joiner)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func Test_Async_panicRecoveredAsError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	h, err := Async(e, func(ctx *task.Context) (int, error) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}
	h.Detach()
	joiner := task.NewDetached(deadline.Never)
	_, err = h.Join(joiner)
	if err == nil {
		t.Fatal("expected an error from the panicking task")
	}
}

func Test_AsyncWithDeadline_cancelsOnExpiry(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	started := make(chan struct{})
	h, err := AsyncWithDeadline(e, deadline.After(5*time.Millisecond), func(ctx *task.Context) (int, error) {
		close(started)
		if err := ctx.SleepFor(time.Hour); !errors.Is(err, errs.ErrCancelled) {
			return 0, fmt.Errorf("expected the deadline to cancel the sleep, got %v", err)
		}
		return 0, nil
	})
	if err != nil {
		t.Fatalf("AsyncWithDeadline: %v", err)
	}
	<-started
	joiner := task.NewDetached(deadline.Never)
	if _, err := h.Join(joiner); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
}

func Test_New_requiresAtLeastOneProcessor(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error for an empty processor list")
	}
}

func Test_New_rejectsUnknownDefaultProcessor(t *testing.T) {
	t.Parallel()
	_, err := New(Config{
		TaskProcessors:       []taskprocessor.Config{{Name: "main"}},
		DefaultTaskProcessor: "nope",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown default processor")
	}
}

func Test_AsyncOn_unknownProcessor(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	_, err := AsyncOn(e, "missing", nil, deadline.Never, func(ctx *task.Context) (int, error) {
		return 0, nil
	})
	if err == nil {
		t.Fatal("expected an error for an unknown processor name")
	}
}

func Test_Stop_ungracefulCancelsQueuedTasks(t *testing.T) {
	t.Parallel()
	e, err := New(Config{
		TaskProcessors: []taskprocessor.Config{{Name: "main", WorkerThreads: 1}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blocker := make(chan struct{})
	_, err = Async(e, func(ctx *task.Context) (int, error) {
		<-blocker
		return 0, nil
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}

	h2, err := Async(e, func(ctx *task.Context) (int, error) {
		return 0, nil
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}
	h2.Detach()

	close(blocker)
	if err := e.Stop(context.Background(), false); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func Test_Async_poolExhaustionReturnsErrPoolExhausted(t *testing.T) {
	t.Parallel()
	e, err := New(Config{
		TaskProcessors: []taskprocessor.Config{
			{Name: "main", WorkerThreads: 1, CoropoolConfig: coropool.Config{MaxSize: 1}},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop(context.Background(), true) })

	blocker := make(chan struct{})
	h1, err := Async(e, func(ctx *task.Context) (int, error) {
		<-blocker
		return 0, nil
	})
	if err != nil {
		t.Fatalf("Async: %v", err)
	}

	_, err = Async(e, func(ctx *task.Context) (int, error) {
		return 0, nil
	})
	if !errors.Is(err, errs.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	close(blocker)
	h1.Detach()
}
