// Package fabric defines the boundary between the connection core and the
// underlying message/RDMA transport (spec section 1: "fabric discovery and
// initial endpoint open/listen" are out of scope for the core and are
// described here only by the interface the core consumes).
//
// A concrete Fabric implementation supplies already-open Endpoints (accepted
// or dialed elsewhere) together with their completion queues, memory
// registration, and address vector. This package ships one reference
// implementation, fabric/loopback, adequate to drive the state machines
// end-to-end for the self-check scenarios of spec section 8 — the same role
// momentics-hioload-ws's fake/transport.go plays for its protocol/session layers.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package fabric

import "context"

// AccessFlags describes the permissions requested for a memory registration.
type AccessFlags uint32

const (
	AccessSend AccessFlags = 1 << iota
	AccessRecv
	AccessRead
	AccessWrite
	AccessRemoteRead
	AccessRemoteWrite
)

// OpFlags describes per-operation fabric flags (spec section 6's wire
// table: message/send, rma/write, delivery-complete, completion, fence).
type OpFlags uint32

const (
	FlagMessage OpFlags = 1 << iota
	FlagSend
	FlagRMA
	FlagWrite
	FlagDeliveryComplete
	FlagCompletion
	FlagFence
)

// IovSeg is one local scatter-gather segment presented for registration or
// for a send/write operation.
type IovSeg struct {
	Base []byte
}

// RemoteSeg is one remote scatter-gather segment: a logical offset into a
// registration (never a raw virtual address — see Provider.RequiresVirtualAddress)
// plus its length and the registration key.
type RemoteSeg struct {
	Offset uint64
	Length uint64
	Key    uint64
}

// Registration is one successful memory-registration call's result: every
// provider hands back an opaque descriptor (used to post operations) and a
// remote key (handed to the peer so it can address this region). A single
// logical application registration may be the concatenation of several
// Registration calls when the segment count exceeds Provider.MaxRegSegs.
type Registration interface {
	// Key is the remote key peers use to address this registration.
	Key() uint64
	// Desc is the provider-opaque local descriptor used when posting ops.
	Desc() any
	// Close deregisters the memory region.
	Close() error
}

// Domain registers memory for use with RMA and local send/recv. Keys are
// application-assigned (spec section 4.2's keysource), not provider-chosen:
// Register takes the key the caller has already drawn from its keysource.
type Domain interface {
	// Register registers segs for the given access flags in one call under
	// the caller-supplied key.
	Register(segs []IovSeg, access AccessFlags, key uint64) (Registration, error)
	// Provider exposes this domain's provider capability limits.
	Provider() Provider
}

// Provider exposes the fabric provider's capability limits the core must
// respect (spec section 4.2, 4.6).
type Provider interface {
	// MaxRegSegs is the maximum scatter-gather segment count a single
	// registration call accepts.
	MaxRegSegs() int
	// MaxRmaSegs is the maximum remote scatter-gather segment count a
	// single RDMA write may target.
	MaxRmaSegs() int
	// RequiresVirtualAddress reports whether this provider addresses RMA
	// targets by virtual address rather than by registration-relative
	// offset. The core refuses such providers at startup (spec section 4.2).
	RequiresVirtualAddress() bool
}

// Completion is one record dequeued from a CompletionQueue: the context
// pointer is whatever was supplied when the operation was posted, letting
// the core identify the completion's kind by inspecting the context's type
// tag (spec section 3, "Buffer header").
type Completion struct {
	Flags OpFlags
	Len   int
	Ctx   any
	Err   error // non-nil for a failed completion (e.g. canceled, try-again)
}

// ErrTryAgain is returned by a post operation (Send/Recv/Write) when the
// provider is applying back-pressure: the caller retries next loop without
// surfacing an error (spec section 7).
var ErrTryAgain = tryAgainErr{}

type tryAgainErr struct{}

func (tryAgainErr) Error() string { return "fabric: try again" }

// ErrCanceled is the error a completion carries after Endpoint.Cancel was
// called on its posted operation.
var ErrCanceled = canceledErr{}

type canceledErr struct{}

func (canceledErr) Error() string { return "fabric: operation canceled" }

// Endpoint is a per-connection fabric handle bound to one completion queue
// and one address vector (GLOSSARY). All post operations are non-blocking:
// ErrTryAgain signals back-pressure rather than blocking the caller.
type Endpoint interface {
	// GetName returns this endpoint's own serialized fabric address.
	GetName() ([]byte, error)
	// AddressVectorInsert resolves a peer's serialized address into a
	// fabric-internal peer handle used by Send/Write.
	AddressVectorInsert(addr []byte) (PeerAddr, error)

	// Send posts a one-segment message send tagged with ctx.
	Send(peer PeerAddr, data []byte, ctx any) error
	// Recv posts a one-segment message receive into buf tagged with ctx.
	Recv(buf []byte, ctx any) error
	// Write posts a one-sided RDMA write of local scatter-gather local
	// into the remote scatter-gather remote, tagged with ctx.
	Write(peer PeerAddr, local [][]byte, remote []RemoteSeg, flags OpFlags, ctx any) error

	// Cancel cancels every operation posted on this endpoint that has not
	// yet completed; each is later returned with ErrCanceled.
	Cancel() error
	// Close releases the endpoint.
	Close() error

	// CQ returns this endpoint's completion queue.
	CQ() CompletionQueue
	// Domain returns the registration domain backing this endpoint.
	Domain() Domain
}

// PeerAddr is an opaque, fabric-internal handle for a resolved peer
// address (the `fi_addr_t` of the GLOSSARY's address vector).
type PeerAddr any

// CompletionQueue delivers completion records for operations posted on its
// endpoint (GLOSSARY).
type CompletionQueue interface {
	// Poll drains up to len(out) ready completions without blocking.
	Poll(out []Completion) (int, error)
	// WaitFD returns a file descriptor usable with epoll to sleep until
	// this queue is ready, and whether the provider supports it.
	WaitFD() (fd int, ok bool)
	// TryWait reports whether the queue is ready to be waited on via its
	// WaitFD without racing a concurrently-arriving completion (mirrors
	// fi_trywait).
	TryWait() bool
}

// Listener accepts incoming connections and hands back already-open
// Endpoints; opening/listening itself is outside the core's scope (spec
// section 1) and is provided by the caller of Accept's surrounding loop.
type Listener interface {
	Accept(ctx context.Context) (Endpoint, error)
	Close() error
}

// Dialer opens a new Endpoint to a remote address; like Listener, the
// discovery/connect mechanics belong to the concrete implementation, not
// the core.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Endpoint, error)
}
