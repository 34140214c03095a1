package buffer

import "github.com/eapache/queue"

// Reservoir is a worker-owned, single-threaded free list of payload
// buffers (spec section 3's "Buffer pools (single-threaded free-lists)").
// Backed by github.com/eapache/queue's auto-growing ring, exactly the
// recycle-on-completion discipline spec section 3's lifecycle describes:
// touched only by the worker thread that allocated the buffers, so it
// carries no locking.
type Reservoir struct {
	q        *queue.Queue
	capacity int
}

// NewReservoir builds an empty reservoir that will grow to hold up to
// capacity buffers before Replenish stops adding more.
func NewReservoir(capacity int) *Reservoir {
	return &Reservoir{q: queue.New(), capacity: capacity}
}

// Get removes and returns a free buffer, or nil if the reservoir is empty.
func (r *Reservoir) Get() *Payload {
	if r.q.Length() == 0 {
		return nil
	}
	return r.q.Remove().(*Payload)
}

// Put recycles buf back into the reservoir.
func (r *Reservoir) Put(buf *Payload) {
	buf.NUsed = 0
	buf.RAddr = 0
	buf.Ctx = Context{}
	r.q.Add(buf)
}

// Len reports the number of buffers currently available.
func (r *Reservoir) Len() int { return r.q.Length() }

// Replenish tops the reservoir up to its capacity by allocating fresh
// buffers of bufSize bytes.
func (r *Reservoir) Replenish(bufSize int) {
	for r.q.Length() < r.capacity {
		r.q.Add(NewPayload(bufSize))
	}
}
