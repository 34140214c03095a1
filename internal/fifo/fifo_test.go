package fifo

import "testing"

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for non-power-of-two capacity")
		}
	}()
	New[int](3)
}

func TestPutGetOrder(t *testing.T) {
	f := New[int](4)
	for i := 1; i <= 4; i++ {
		if !f.Put(i) {
			t.Fatalf("put %d failed", i)
		}
	}
	if f.Put(5) {
		t.Fatalf("expected put to fail once full")
	}
	for i := 1; i <= 4; i++ {
		v, ok := f.Get()
		if !ok || v != i {
			t.Fatalf("get = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := f.Get(); ok {
		t.Fatalf("expected get to fail once empty")
	}
}

func TestWraparound(t *testing.T) {
	f := New[int](2)
	f.Put(1)
	f.Put(2)
	f.Get()
	f.Put(3)
	v, _ := f.Get()
	if v != 2 {
		t.Fatalf("got %d, want 2", v)
	}
	v, _ = f.Get()
	if v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
}

func TestGetClose(t *testing.T) {
	f := New[int](4)
	f.Put(1)
	f.Put(2)
	f.GetClose()
	if !f.EoGet() {
		t.Fatalf("expected EoGet after GetClose")
	}
	if _, ok := f.Get(); ok {
		t.Fatalf("expected Get to fail after GetClose even with items queued")
	}
	if f.AltEmpty() {
		t.Fatalf("expected AltEmpty false: items are still physically queued")
	}
	if !f.Empty() {
		t.Fatalf("expected Empty true once get-closed")
	}
}

func TestPutClose(t *testing.T) {
	f := New[int](4)
	f.Put(1)
	f.PutClose()
	if !f.EoPut() {
		t.Fatalf("expected EoPut after PutClose")
	}
	if f.Put(2) {
		t.Fatalf("expected Put to fail after PutClose")
	}
	if !f.Full() {
		t.Fatalf("expected Full true once put-closed")
	}
	// what was already queued before the close remains retrievable.
	v, ok := f.Get()
	if !ok || v != 1 {
		t.Fatalf("get = (%d, %v), want (1, true)", v, ok)
	}
}

func TestPutUncheckedIgnoresClose(t *testing.T) {
	f := New[int](4)
	f.PutClose()
	if !f.PutUnchecked(7) {
		t.Fatalf("expected PutUnchecked to succeed despite close")
	}
	v, ok := f.GetUnchecked()
	if !ok || v != 7 {
		t.Fatalf("get = (%d, %v), want (7, true)", v, ok)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	f := New[int](4)
	f.Put(9)
	v, ok := f.Peek()
	if !ok || v != 9 {
		t.Fatalf("peek = (%d, %v), want (9, true)", v, ok)
	}
	if f.Len() != 1 {
		t.Fatalf("peek should not remove: len = %d", f.Len())
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	cases := map[int]bool{0: false, 1: true, 2: true, 3: false, 64: true, 63: false, -4: false}
	for n, want := range cases {
		if got := IsPowerOfTwo(n); got != want {
			t.Errorf("IsPowerOfTwo(%d) = %v, want %v", n, got, want)
		}
	}
}
