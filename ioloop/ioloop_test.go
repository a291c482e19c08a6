package ioloop

import (
	"os"
	"testing"
	"time"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/task"
)

func Test_Loop_SleepFor(t *testing.T) {
	t.Parallel()
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	ctx := task.NewDetached(deadline.Never)
	start := time.Now()
	if err := l.SleepFor(ctx, 30*time.Millisecond); err != nil {
		t.Fatalf("SleepFor: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func Test_Loop_WaitIO_pipeBecomesReadable(t *testing.T) {
	t.Parallel()
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	ctx := task.NewDetached(deadline.Never)
	done := make(chan error, 1)
	go func() {
		_, err := l.WaitIO(ctx, deadline.After(2*time.Second), int(r.Fd()), EventRead)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitIO: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("WaitIO never returned")
	}
}

func Test_Timer_CancelPreventsCallback(t *testing.T) {
	t.Parallel()
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	fired := make(chan struct{}, 1)
	timer, err := l.ArmTimer(20*time.Millisecond, func() { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("ArmTimer: %v", err)
	}
	timer.Cancel()

	select {
	case <-fired:
		t.Fatal("cancelled timer still fired")
	case <-time.After(60 * time.Millisecond):
	}
}
