// Package buffer implements the buffer primitives of spec section 4.1/4.2:
// typed byte buffers each carrying a registration handle, a transfer
// context, a used/allocated length, and a remote-address hint, plus the
// free-list reservoir and memory-registration helper that feed them.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buffer

import "github.com/momentics/fxfer/internal/fabric"

// Kind identifies what a completion's context belongs to, letting the
// connection loop dispatch on the context pointer alone (spec section 3).
type Kind uint8

const (
	KindAck Kind = iota
	KindFragment
	KindInitial
	KindProgress
	KindRDMAWrite
	KindVector
)

// Owner tracks whether program or NIC logic currently "owns" a buffer —
// mirrors the original's xfc_owner_t, used to decide whether a buffer may
// be safely recycled.
type Owner uint8

const (
	OwnerProgram Owner = iota
	OwnerNIC
)

// Place marks a buffer's position within a batched RDMA write (spec
// section 4.6): the first buffer in a batch carries the NIC completion
// context, the last closes the batch.
type Place uint8

const (
	PlaceFirst Place = 1 << iota
	PlaceLast
)

// Context is the transfer context embedded in every buffer header. A
// fabric completion's Ctx field is a *Header, and Header embeds Context as
// its first logical field, so the connection loop dispatches a completion
// purely by reading Header.Ctx.Kind — no downcast needed (spec Design
// Notes, "transfer context embedded in completions").
type Context struct {
	Kind      Kind
	Owner     Owner
	Place     Place
	NChildren uint8
	Cancelled bool
}

// Header is the common prefix of every buffer kind (spec section 3,
// "Buffer header").
type Header struct {
	Ctx        Context
	RAddr      uint64 // remote-address hint
	NUsed      int
	NAllocated int
	Reg        fabric.Registration // nil for fragments, which share their parent's
	Desc       any
}

// Buf is implemented by every concrete buffer kind so they can be queued on
// a fifo.FIFO[Buf] uniformly (spec section 3's "Buffer header" is the
// common shape; Go expresses the sum type via this accessor instead of
// struct inheritance).
type Buf interface {
	Hdr() *Header
}
