package buffer

import "github.com/momentics/fxfer/internal/wire"

// Payload carries raw stream bytes: the unit the terminal fills (sender
// side) or verifies (receiver side) and the unit the connection writes via
// RDMA or advertises as an RDMA target.
type Payload struct {
	Header
	Data []byte
}

// Hdr implements Buf.
func (p *Payload) Hdr() *Header { return &p.Header }

// NewPayload allocates a payload buffer of the given capacity. Its kind is
// tagged KindRDMAWrite since the only fabric completion a payload buffer
// can itself be the context of is an RDMA write (spec section 3); it is
// never posted as a send/recv completion context directly.
func NewPayload(capacity int) *Payload {
	p := &Payload{Data: make([]byte, capacity)}
	p.NAllocated = capacity
	p.Ctx.Kind = KindRDMAWrite
	return p
}

// Initial carries the sender's handshake message. Raw is the wire-encoded
// form posted to/read from the fabric; Msg is decoded from (or encoded
// into) Raw by the connection logic around a send/receive.
type Initial struct {
	Header
	Msg wire.Initial
	Raw []byte
}

func (b *Initial) Hdr() *Header { return &b.Header }

// NewInitial allocates an initial-message buffer.
func NewInitial() *Initial {
	b := &Initial{Raw: make([]byte, wire.InitialWireSize)}
	b.Ctx.Kind = KindInitial
	b.NAllocated = wire.InitialWireSize
	return b
}

// Ack carries the receiver's handshake reply.
type Ack struct {
	Header
	Msg wire.Ack
	Raw []byte
}

func (b *Ack) Hdr() *Header { return &b.Header }

// NewAck allocates an ack-message buffer.
func NewAck() *Ack {
	b := &Ack{Raw: make([]byte, wire.AckWireSize)}
	b.Ctx.Kind = KindAck
	b.NAllocated = wire.AckWireSize
	return b
}

// Vector carries an RDMA target advertisement.
type Vector struct {
	Header
	Msg wire.Vector
	Raw []byte
}

func (b *Vector) Hdr() *Header { return &b.Header }

// NewVector allocates a vector-message buffer.
func NewVector() *Vector {
	b := &Vector{Raw: make([]byte, wire.VectorWireSize)}
	b.Ctx.Kind = KindVector
	b.NAllocated = wire.VectorWireSize
	return b
}

// Progress carries a write-completion accounting message.
type Progress struct {
	Header
	Msg wire.Progress
	Raw []byte
}

func (b *Progress) Hdr() *Header { return &b.Header }

// NewProgress allocates a progress-message buffer.
func NewProgress() *Progress {
	b := &Progress{Raw: make([]byte, wire.ProgressWireSize)}
	b.Ctx.Kind = KindProgress
	b.NAllocated = wire.ProgressWireSize
	return b
}

// Fragment is a second, registration-less variant of Payload: it shares its
// Parent's registration and key, and exists only to let the sender post a
// partial RDMA write against the unconsumed tail of a payload buffer that
// would otherwise overflow the current advertised window (spec section
// 4.6). The parent retires only once every fragment's completion has
// decremented its NChildren to zero.
type Fragment struct {
	Header
	Parent *Payload
	Offset int
	Length int
}

func (f *Fragment) Hdr() *Header { return &f.Header }

// NewFragment builds a fragment of parent's payload spanning
// [offset, offset+length), sharing parent's registration.
func NewFragment(parent *Payload, offset, length int) *Fragment {
	f := &Fragment{Parent: parent, Offset: offset, Length: length}
	f.Ctx.Kind = KindFragment
	f.Reg = parent.Reg
	f.NUsed = length
	f.NAllocated = length
	return f
}

// Bytes returns the fragment's view into its parent's backing array.
func (f *Fragment) Bytes() []byte {
	return f.Parent.Data[f.Offset : f.Offset+f.Length]
}
