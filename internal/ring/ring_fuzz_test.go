package ring

import "testing"

// FuzzBuffer verifies the ring's core size ≤ capacity / push-pop-accounting
// invariant under arbitrary push/pop sequences, grounded on the corpus's
// ingress-queue fuzz test (eventloop's FuzzIngressQueue).
func FuzzBuffer(f *testing.F) {
	f.Add(4, uint8(10), uint8(10))

	f.Fuzz(func(t *testing.T, capacity int, pushCount uint8, popCount uint8) {
		capacity = (capacity % 64) + 1 // keep it small but always positive
		pushes := int(pushCount) % 200
		pops := int(popCount) % 200

		b := New[int](capacity)
		if b.Cap() < capacity {
			t.Fatalf("rounded capacity %d is smaller than requested %d", b.Cap(), capacity)
		}

		pushed, popped := 0, 0
		for i := 0; i < pushes; i++ {
			if b.Push(i) {
				pushed++
			}
			if b.Len() > b.Cap() {
				t.Fatalf("invariant violation: Len %d exceeds Cap %d", b.Len(), b.Cap())
			}
		}

		for i := 0; i < pops; i++ {
			if _, ok := b.Pop(); ok {
				popped++
			}
		}

		if want := pushed - popped; b.Len() != want {
			t.Fatalf("pushed %d, popped %d: expected Len %d, got %d", pushed, popped, want, b.Len())
		}

		for b.Len() > 0 {
			if _, ok := b.Pop(); !ok {
				t.Fatalf("Len reported %d but Pop failed", b.Len())
			}
		}
		if b.Len() != 0 {
			t.Fatalf("expected Len 0 after draining, got %d", b.Len())
		}
	})
}
