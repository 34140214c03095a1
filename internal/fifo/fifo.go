// Package fifo implements the bounded, power-of-two-capacity FIFO with a
// close position (spec section 4.1). A FIFO is single-producer,
// single-consumer within one worker goroutine and carries no internal
// locking — grounded on momentics-hioload-ws's pool/ring.go ring-buffer shape,
// extended with the get-close/put-close discipline that hands off
// end-of-stream between a connection and its terminal.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fifo

import "math/bits"

// closedNever is the close position meaning "never closed" (all 1 bits, as
// in the original fifo_create's f->closed = UINT64_MAX).
const closedNever = ^uint64(0)

// FIFO is a bounded ring of items of type T with a close position.
type FIFO[T any] struct {
	items      []T
	mask       uint64
	insertions uint64
	removals   uint64
	closed     uint64
}

// New allocates a FIFO of the given capacity, which must be a power of two.
func New[T any](capacity int) *FIFO[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("fifo: capacity must be a power of two")
	}
	return &FIFO[T]{
		items:  make([]T, capacity),
		mask:   uint64(capacity - 1),
		closed: closedNever,
	}
}

// Cap returns the FIFO's fixed capacity.
func (f *FIFO[T]) Cap() int { return len(f.items) }

// EoGet reports whether the head (removal point) has reached the close
// position: every subsequent Get fails.
func (f *FIFO[T]) EoGet() bool { return f.closed <= f.removals }

// EoPut reports whether the tail (insertion point) has reached the close
// position: every subsequent Put fails.
func (f *FIFO[T]) EoPut() bool { return f.closed <= f.insertions }

// GetClose freezes the close position at the current head. Every Get from
// here on fails and EoGet becomes true, even if items remain queued — this
// is the signal a consumer-side abort uses to stop immediately.
func (f *FIFO[T]) GetClose() {
	if f.EoGet() {
		return
	}
	f.closed = f.removals
}

// PutClose freezes the close position at the current tail. Every Put from
// here on fails and EoPut becomes true — this is how a producer signals
// "drain what remains, then stop" rather than an immediate abort.
func (f *FIFO[T]) PutClose() {
	if f.EoPut() {
		return
	}
	f.closed = f.insertions
}

func (f *FIFO[T]) altEmpty() bool { return f.insertions == f.removals }

func (f *FIFO[T]) altFull() bool { return f.insertions-f.removals == f.mask+1 }

// AltEmpty reports emptiness ignoring the close position: true only if no
// items are physically queued, even if the FIFO is get-closed. Used to
// detect unexpected leftover items after a get-close (spec section 4.1).
func (f *FIFO[T]) AltEmpty() bool { return f.altEmpty() }

// Empty reports true if the FIFO holds no more retrievable items: either it
// is genuinely empty, or the head has reached the close position (in which
// case items may still be physically queued but are no longer retrievable).
func (f *FIFO[T]) Empty() bool { return f.EoGet() || f.altEmpty() }

// Full reports true if the FIFO cannot accept another Put: either it is
// genuinely at capacity, or the tail has reached the close position.
func (f *FIFO[T]) Full() bool { return f.EoPut() || f.altFull() }

// Put appends v to the tail, honoring the close position. Returns false if
// the FIFO is put-closed or at capacity.
func (f *FIFO[T]) Put(v T) bool {
	if f.EoPut() {
		return false
	}
	return f.PutUnchecked(v)
}

// PutUnchecked appends v ignoring the close position (used when flushing
// during cancellation, per spec section 4.1).
func (f *FIFO[T]) PutUnchecked(v T) bool {
	if f.altFull() {
		return false
	}
	f.items[f.insertions&f.mask] = v
	f.insertions++
	return true
}

// Get removes and returns the head item, honoring the close position.
func (f *FIFO[T]) Get() (v T, ok bool) {
	if f.EoGet() {
		return v, false
	}
	return f.GetUnchecked()
}

// GetUnchecked removes and returns the head item ignoring the close
// position.
func (f *FIFO[T]) GetUnchecked() (v T, ok bool) {
	if f.altEmpty() {
		return v, false
	}
	v = f.items[f.removals&f.mask]
	f.removals++
	return v, true
}

// Peek returns the head item without removing it, honoring the close
// position.
func (f *FIFO[T]) Peek() (v T, ok bool) {
	if f.Empty() {
		return v, false
	}
	return f.items[f.removals&f.mask], true
}

// Len reports the number of items currently queued, regardless of close
// position (mirrors the original's f->insertions - f->removals).
func (f *FIFO[T]) Len() int { return int(f.insertions - f.removals) }

// IsPowerOfTwo reports whether n is a positive power of two; exported for
// callers validating configured capacities before calling New.
func IsPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
