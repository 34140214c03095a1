package buffer

import "testing"

func TestPoolGetEmpty(t *testing.T) {
	p := NewPool[int]()
	if _, ok := p.Get(); ok {
		t.Fatalf("expected Get on empty pool to fail")
	}
}

func TestPoolPutGetLIFO(t *testing.T) {
	p := NewPool[int]()
	p.Put(1)
	p.Put(2)
	p.Put(3)
	if p.Len() != 3 {
		t.Fatalf("len = %d, want 3", p.Len())
	}
	for _, want := range []int{3, 2, 1} {
		v, ok := p.Get()
		if !ok || v != want {
			t.Fatalf("get = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
	if p.Len() != 0 {
		t.Fatalf("len = %d, want 0", p.Len())
	}
}
