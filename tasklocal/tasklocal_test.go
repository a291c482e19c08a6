package tasklocal

import "testing"

func Test_Map_nilReceiverBehavesAsEmpty(t *testing.T) {
	t.Parallel()
	var m *Map
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected nil map to miss every key")
	}
	if m.Len() != 0 {
		t.Fatalf("expected len 0, got %d", m.Len())
	}
}

func Test_Map_WithDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()
	m1 := (&Map{}).With("a", 1)
	m2 := m1.With("b", 2)

	if _, ok := m1.Get("b"); ok {
		t.Fatal("expected m1 to be unaffected by m2's With call")
	}
	if v, ok := m2.Get("a"); !ok || v != 1 {
		t.Fatalf("expected m2 to inherit a=1, got %v (ok=%v)", v, ok)
	}
	if v, ok := m2.Get("b"); !ok || v != 2 {
		t.Fatalf("expected m2 to have b=2, got %v (ok=%v)", v, ok)
	}
}

func Test_Map_Without(t *testing.T) {
	t.Parallel()
	m := (&Map{}).With("a", 1).With("b", 2)
	m2 := m.Without("a")

	if _, ok := m2.Get("a"); ok {
		t.Fatal("expected a to be removed")
	}
	if _, ok := m.Get("a"); !ok {
		t.Fatal("expected original map to still have a")
	}
	if m2.Len() != 1 {
		t.Fatalf("expected len 1, got %d", m2.Len())
	}
}

func Test_Map_Without_missingKeyIsNoOp(t *testing.T) {
	t.Parallel()
	m := (&Map{}).With("a", 1)
	if got := m.Without("missing"); got != m {
		t.Fatal("expected Without of a missing key to return the same map")
	}
}

func Test_Map_Fork_sharesPointer(t *testing.T) {
	t.Parallel()
	m := (&Map{}).With("a", 1)
	if m.Fork() != m {
		t.Fatal("expected Fork to return the same pointer")
	}
}
