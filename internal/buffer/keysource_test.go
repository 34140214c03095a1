package buffer

import "testing"

func TestKeySourceMonotonicWithinSource(t *testing.T) {
	k := NewKeySource()
	prev := k.Next()
	for i := 0; i < 1000; i++ {
		next := k.Next()
		if next <= prev {
			t.Fatalf("keys not strictly increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestKeySourcesNeverCollide(t *testing.T) {
	a := NewKeySource()
	b := NewKeySource()
	seen := make(map[uint64]bool, 2000)
	for i := 0; i < 1000; i++ {
		for _, key := range []uint64{a.Next(), b.Next()} {
			if seen[key] {
				t.Fatalf("duplicate key %d across independent KeySources", key)
			}
			seen[key] = true
		}
	}
}
