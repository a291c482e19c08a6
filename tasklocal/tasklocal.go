// Package tasklocal implements task-inherited data: a copy-on-write map from
// string keys to type-erased values, captured by value (shared pointer) at
// spawn time so that a child task's subsequent writes never leak back to its
// parent and vice versa.
package tasklocal

// Map is an immutable snapshot of task-inherited data. The zero value is a
// valid, empty Map. Map is safe for concurrent reads from multiple
// goroutines; mutation always produces a new Map rather than touching the
// receiver, following the same append-or-clone pattern the corpus's
// structured-logging field chain uses to attach fields without aliasing a
// parent logger's state.
type Map struct {
	entries map[string]any
}

// Get looks up key, returning its value and whether it was present.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.entries == nil {
		return nil, false
	}
	v, ok := m.entries[key]
	return v, ok
}

// With returns a new Map equal to m with key set to value, leaving m
// unmodified. Every entry of m is copied into the new Map's own storage, so
// the two never share a Go map.
func (m *Map) With(key string, value any) *Map {
	n := &Map{entries: make(map[string]any, m.len()+1)}
	if m != nil {
		for k, v := range m.entries {
			n.entries[k] = v
		}
	}
	n.entries[key] = value
	return n
}

// Without returns a new Map equal to m with key removed.
func (m *Map) Without(key string) *Map {
	if _, ok := m.Get(key); !ok {
		return m
	}
	n := &Map{entries: make(map[string]any, m.len())}
	for k, v := range m.entries {
		if k != key {
			n.entries[k] = v
		}
	}
	return n
}

// Len returns the number of entries.
func (m *Map) Len() int { return m.len() }

func (m *Map) len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Fork returns the map a child task should start with when spawned from a
// parent currently holding m: the parent's current snapshot, shared by
// pointer. Because Map is immutable and With/Without never mutate in place,
// no explicit copy is required here — this exists as a named call site
// matching the core's "child captures the shared pointer at spawn time"
// contract (§4.7), so spawn call sites read as intent rather than a bare
// pointer pass-through.
func (m *Map) Fork() *Map {
	return m
}
