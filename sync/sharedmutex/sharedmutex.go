// Package sharedmutex implements the engine's many-readers/one-writer lock
// with writer preference (§4.6.2).
package sharedmutex

import (
	"sync"

	"github.com/joeycumines/goengine/deadline"
	"github.com/joeycumines/goengine/internal/errs"
	"github.com/joeycumines/goengine/internal/waitlist"
	"github.com/joeycumines/goengine/task"
)

// SharedMutex is a writer-preference reader/writer lock: once a writer is
// waiting, new readers queue behind it rather than starving it out. The
// zero value is ready to use.
//
// Contract: a task holding the shared (read) lock must not attempt to
// acquire the write lock (no upgrade path — §4.6.2).
type SharedMutex struct {
	mu            sync.Mutex
	readers       int
	writerActive  bool
	writerWaiting int
	readWaiters   waitlist.List
	writeWaiters  waitlist.List
}

// RLock acquires the shared (read) lock.
func (s *SharedMutex) RLock(ctx *task.Context, dl deadline.Deadline) error {
	s.mu.Lock()
	if !s.writerActive && s.writerWaiting == 0 {
		s.readers++
		s.mu.Unlock()
		return nil
	}
	node := waitlist.NewNode(nil)
	s.readWaiters.Append(node)
	s.mu.Unlock()

	_, err := ctx.Park(&s.readWaiters, node, dl)
	if err != nil {
		return err
	}
	// Woken directly into the held state by RUnlock/Unlock's handoff.
	return nil
}

// RUnlock releases the shared lock. If this was the last reader and a
// writer is waiting, the writer is woken.
func (s *SharedMutex) RUnlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readers == 0 {
		errs.Misuse("sharedmutex: runlock without a held read lock")
	}
	s.readers--
	if s.readers == 0 && s.writerWaiting > 0 {
		if _, ok := s.writeWaiters.WakeOne(waitlist.OutcomeSignal); ok {
			s.writerWaiting--
			s.writerActive = true
		}
	}
}

// Lock acquires the exclusive (write) lock.
func (s *SharedMutex) Lock(ctx *task.Context, dl deadline.Deadline) error {
	s.mu.Lock()
	if !s.writerActive && s.readers == 0 {
		s.writerActive = true
		s.mu.Unlock()
		return nil
	}
	s.writerWaiting++
	node := waitlist.NewNode(nil)
	s.writeWaiters.Append(node)
	s.mu.Unlock()

	_, err := ctx.Park(&s.writeWaiters, node, dl)
	if err != nil {
		s.mu.Lock()
		s.writerWaiting--
		s.mu.Unlock()
		return err
	}
	return nil
}

// Unlock releases the exclusive lock, preferring to wake a waiting writer
// over any waiting readers (writer preference).
func (s *SharedMutex) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writerActive {
		errs.Misuse("sharedmutex: unlock without a held write lock")
	}
	s.writerActive = false
	if s.writerWaiting > 0 {
		if _, ok := s.writeWaiters.WakeOne(waitlist.OutcomeSignal); ok {
			s.writerWaiting--
			s.writerActive = true
			return
		}
	}
	woken := s.readWaiters.WakeAll(waitlist.OutcomeSignal)
	s.readers += woken
}
