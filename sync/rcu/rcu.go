// Package rcu implements the engine's read-copy-update variable and map
// (§4.6.8): lock-free reads of an immutable snapshot, serialized writes that
// publish a brand-new snapshot atomically. Readers never block a writer and
// a writer never blocks a reader; a reader that captured a snapshot before
// an update keeps observing the old data for as long as it holds that
// snapshot, by design.
package rcu

import (
	"sync"
	"sync/atomic"
)

// Variable holds an immutable value of type V, published and replaced
// atomically. The zero value is usable once Store has been called at least
// once (or construct one with New, which requires an initial value).
type Variable[V any] struct {
	p  atomic.Pointer[V]
	mu sync.Mutex // serializes Update's read-modify-write
}

// New constructs a Variable already holding initial.
func New[V any](initial V) *Variable[V] {
	v := &Variable[V]{}
	v.p.Store(&initial)
	return v
}

// Read returns the current snapshot. The returned pointer is never mutated
// in place by any writer; a subsequent Store/Update publishes a fresh one.
func (v *Variable[V]) Read() *V {
	return v.p.Load()
}

// Store publishes a new snapshot, replacing whatever is currently visible.
func (v *Variable[V]) Store(value V) {
	v.p.Store(&value)
}

// Update reads the current snapshot, applies fn to a copy of it, and
// publishes the result. Concurrent Update calls are serialized against each
// other (but never against concurrent Read calls) so that read-modify-write
// sequences don't race each other into a lost update.
func (v *Variable[V]) Update(fn func(current V) V) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var current V
	if p := v.p.Load(); p != nil {
		current = *p
	}
	v.p.Store(ptr(fn(current)))
}

func ptr[V any](value V) *V { return &value }

// Map is an RCU-style map: reads see an immutable snapshot of the whole
// keyset with no locking; writes build a new keyset and publish it
// wholesale. Only the keyset is RCU-protected — each value is held behind a
// shared *V, so a value obtained from Get/GetOrDefaultInsert stays live and
// mutable in place past the snapshot's lifetime; serializing that in-place
// mutation, if it's shared across goroutines, is the caller's own
// responsibility (§4.6.8). Best suited to maps that are read far more often
// than written, same as Variable. The zero value is ready to use.
type Map[K comparable, V any] struct {
	v Variable[map[K]*V]
}

// Get reads the shared value for key from the current snapshot.
func (m *Map[K, V]) Get(key K) (*V, bool) {
	snap := m.v.Read()
	if snap == nil {
		return nil, false
	}
	v, ok := (*snap)[key]
	return v, ok
}

// GetOrDefaultInsert returns the shared value for key, creating a
// zero-valued V under a write transaction and publishing it if the key is
// absent (§4.6.8). Concurrent callers racing on the same absent key observe
// exactly one winner's *V, never two different defaults for the same key.
func (m *Map[K, V]) GetOrDefaultInsert(key K) *V {
	if vp, ok := m.Get(key); ok {
		return vp
	}
	m.v.mu.Lock()
	defer m.v.mu.Unlock()
	var current map[K]*V
	if p := m.v.p.Load(); p != nil {
		current = *p
	}
	if vp, ok := current[key]; ok {
		return vp
	}
	vp := new(V)
	next := make(map[K]*V, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = vp
	m.v.p.Store(&next)
	return vp
}

// Snapshot returns the current map snapshot directly; callers must not
// mutate the map itself (its values may still be mutated in place, subject
// to the same-goroutine-responsibility note on Map).
func (m *Map[K, V]) Snapshot() map[K]*V {
	if snap := m.v.Read(); snap != nil {
		return *snap
	}
	return nil
}

// Set publishes a new snapshot binding key to a fresh shared copy of value,
// copy-on-write from the current snapshot. Any *V previously returned for
// key by Get/GetOrDefaultInsert is left untouched (still pointing at the
// old value) — Set replaces what the key maps to, it does not mutate an
// existing shared value.
func (m *Map[K, V]) Set(key K, value V) {
	m.v.Update(func(current map[K]*V) map[K]*V {
		next := make(map[K]*V, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[key] = &value
		return next
	})
}

// Delete publishes a new snapshot with key removed (erase(k), §4.6.8).
func (m *Map[K, V]) Delete(key K) {
	m.v.Update(func(current map[K]*V) map[K]*V {
		if _, ok := current[key]; !ok {
			return current
		}
		next := make(map[K]*V, len(current))
		for k, v := range current {
			if k != key {
				next[k] = v
			}
		}
		return next
	})
}

// Clear publishes an empty snapshot, dropping every key (§4.6.8).
func (m *Map[K, V]) Clear() {
	m.v.Store(nil)
}

// Len reports the number of entries in the current snapshot.
func (m *Map[K, V]) Len() int {
	return len(m.Snapshot())
}
