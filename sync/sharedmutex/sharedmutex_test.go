package sharedmutex

import (
	"testing"
	"time"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/task"
)

func Test_SharedMutex_multipleReadersConcurrently(t *testing.T) {
	t.Parallel()
	var m SharedMutex
	r1 := task.NewDetached(deadline.Never)
	r2 := task.NewDetached(deadline.Never)

	if err := m.RLock(r1, deadline.Never); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.RLock(r2, deadline.Never); err != nil {
		t.Fatalf("unexpected error: expected a second concurrent reader to be allowed: %v", err)
	}
	m.RUnlock()
	m.RUnlock()
}

func Test_SharedMutex_writerExcludesReaders(t *testing.T) {
	t.Parallel()
	var m SharedMutex
	writer := task.NewDetached(deadline.Never)
	if err := m.Lock(writer, deadline.Never); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		reader := task.NewDetached(deadline.Never)
		if err := m.RLock(reader, deadline.Never); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("reader should not acquire while a writer holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired after writer released")
	}
}

func Test_SharedMutex_writerPreference(t *testing.T) {
	t.Parallel()
	var m SharedMutex
	reader1 := task.NewDetached(deadline.Never)
	if err := m.RLock(reader1, deadline.Never); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writerAcquired := make(chan struct{})
	go func() {
		writer := task.NewDetached(deadline.Never)
		if err := m.Lock(writer, deadline.Never); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		close(writerAcquired)
	}()
	time.Sleep(10 * time.Millisecond) // let the writer queue up

	reader2Acquired := make(chan struct{})
	go func() {
		reader2 := task.NewDetached(deadline.Never)
		if err := m.RLock(reader2, deadline.Never); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		close(reader2Acquired)
	}()
	time.Sleep(10 * time.Millisecond)

	m.RUnlock() // reader1 releases; writer (queued first) must go before reader2

	select {
	case <-reader2Acquired:
		t.Fatal("reader2 should not jump ahead of the already-waiting writer")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-writerAcquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired")
	}

	m.Unlock()

	select {
	case <-reader2Acquired:
	case <-time.After(time.Second):
		t.Fatal("reader2 never acquired after writer released")
	}
}

func Test_SharedMutex_RUnlock_withoutLockIsMisuse(t *testing.T) {
	t.Parallel()
	var m SharedMutex
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for runlock without a held read lock")
		}
	}()
	m.RUnlock()
}

func Test_SharedMutex_Unlock_withoutLockIsMisuse(t *testing.T) {
	t.Parallel()
	var m SharedMutex
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unlock without a held write lock")
		}
	}()
	m.Unlock()
}
