package cxn

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fifo"
	"github.com/momentics/fxfer/internal/wire"
)

// Receiver is the receiving side of a connection (the original's rcvr_t):
// it sends one ack, advertises RDMA target buffers to its peer, and hands
// filled targets to the sink terminal as they complete (spec section 4.4).
type Receiver struct {
	Base

	NFull     int
	TgtPosted *fifo.FIFO[*buffer.Payload]

	AckRaw []byte // pre-encoded ack message to send once

	Vec      TxCtl[*buffer.Vector]
	Progress RxCtl[*buffer.Progress]

	payloadAccessRx fabric.AccessFlags
}

// NewReceiver builds a Receiver ready to send ackRaw once connected. keys
// is the worker-owned key source this connection draws registration keys
// from when advertising target buffers (spec section 4.2/5).
func NewReceiver(ep fabric.Endpoint, peer fabric.PeerAddr, ackRaw []byte, payloadAccessRx fabric.AccessFlags, keys *buffer.KeySource) *Receiver {
	r := &Receiver{
		AckRaw:          ackRaw,
		TgtPosted:       fifo.New[*buffer.Payload](256),
		Vec:             NewTxCtl[*buffer.Vector](64),
		Progress:        NewRxCtl[*buffer.Progress](8),
		payloadAccessRx: payloadAccessRx,
	}
	r.Ep = ep
	r.Peer = peer
	r.Keys = keys
	return r
}

func encodeVector(v *buffer.Vector) []byte {
	_ = wire.EncodeVector(v.Raw, &v.Msg)
	return v.Raw[:v.NUsed]
}

// Loop implements Cxn.
func (r *Receiver) Loop(host Host, readyForCxn, readyForTerminal *fifo.FIFO[*buffer.Payload], cancelRequested bool) LoopControl {
	if !r.SentFirst {
		switch r.ackSend() {
		case LoopContinue:
			r.cqProcess()
			return LoopContinue
		case LoopError:
			return LoopError
		}
		// Sent successfully this pass: fall through to starting below.
	}

	if !r.Started {
		return r.start(host, readyForCxn)
	}

	r.cqProcess()

	if r.cancelled {
		if r.Progress.Posted.Len() == 0 && r.Vec.Posted.Len() == 0 {
			_ = r.Ep.Close()
			return LoopCanceled
		}
		return LoopContinue
	} else if cancelRequested {
		r.Progress.Cancel(r.Ep)
		r.Vec.Cancel(r.Ep)
		r.cancelled = true
		return LoopContinue
	}

	r.vectorUpdate(host, readyForCxn)
	_ = r.Vec.Transmit(r.Ep, r.Peer, encodeVector)
	r.targetsRead(readyForTerminal)

	if readyForTerminal.EoGet() && r.EOFRemote && r.EOFLocal && r.Vec.Posted.Len() == 0 {
		return LoopEnd
	}
	return LoopContinue
}

func (r *Receiver) ackSend() LoopControl {
	err := r.Ep.Send(r.Peer, r.AckRaw, r.ackCtx())
	if err == fabric.ErrTryAgain {
		return LoopContinue
	}
	if err != nil {
		return LoopError
	}
	r.SentFirst = true
	return LoopEnd
}

// ackCtx is a stable context value distinguishing the ack send's
// completion from every other completion this connection posts.
func (r *Receiver) ackCtx() any { return &r.AckRaw }

func (r *Receiver) start(host Host, readyForCxn *fifo.FIFO[*buffer.Payload]) LoopControl {
	r.Started = true

	for r.Vec.Pool.Len() < r.Vec.Ready.Cap() {
		r.Vec.Pool.Put(buffer.NewVector())
	}

	for !r.Progress.Posted.Full() {
		pb := buffer.NewProgress()
		if err := r.Progress.Post(r.Ep, pb.Raw, pb); err != nil {
			return LoopError
		}
	}

	for !readyForCxn.Full() {
		b := host.RxBuffer()
		if b == nil {
			return LoopError
		}
		readyForCxn.Put(b)
	}

	return LoopContinue
}

// cqProcess drains at most one completion and dispatches it by the
// context's kind (spec section 4.4's rcvr_cq_process).
func (r *Receiver) cqProcess() {
	var out [1]fabric.Completion
	n, err := r.Ep.CQ().Poll(out[:])
	if err != nil || n == 0 {
		return
	}
	cmpl := out[0]

	switch hdr := cmpl.Ctx.(type) {
	case *buffer.Header:
		switch hdr.Ctx.Kind {
		case buffer.KindProgress:
			r.progressRxProcess(cmpl)
		case buffer.KindVector:
			_ = r.Vec.Complete(cmpl)
		}
	default:
		// ack send completion: nothing to do.
	}
}

func (r *Receiver) progressRxProcess(cmpl fabric.Completion) {
	pb, err := r.Progress.Complete(cmpl)
	if err != nil {
		return
	}
	if pb.Hdr().Ctx.Cancelled {
		return
	}
	if pb.NUsed != wire.ProgressWireSize {
		_ = r.Progress.Post(r.Ep, pb.Raw, pb)
		return
	}
	_ = wire.DecodeProgress(pb.Raw, &pb.Msg)

	r.NFull += int(pb.Msg.NFilled)
	if pb.Msg.NLeftover == 0 {
		r.EOFRemote = true
	}

	_ = r.Progress.Post(r.Ep, pb.Raw, pb)
}

// vectorUpdate advertises newly available target buffers, or a final
// empty vector once the sender's EOF has been received (EOFRemote), after
// which no further vectors are advertised (spec section 4.4's
// rcvr_vector_update).
func (r *Receiver) vectorUpdate(host Host, readyForCxn *fifo.FIFO[*buffer.Payload]) {
	if r.EOFRemote && !r.EOFLocal && !r.Vec.Ready.Full() {
		if vb, ok := r.Vec.Pool.Get(); ok {
			vb.Msg = wire.Vector{}
			vb.NUsed = 8 // niovs(4) + pad(4), no iov entries
			r.Vec.Ready.Put(vb)
			r.EOFLocal = true
			return
		}
		return
	} else if r.EOFRemote {
		return
	}

	for !r.Vec.Ready.Full() && !readyForCxn.Empty() {
		vb, ok := r.Vec.Pool.Get()
		if !ok {
			break
		}

		var i uint32
		for i = 0; i < wire.MaxIovs; i++ {
			h, ok := readyForCxn.Get()
			if !ok {
				break
			}
			h.NUsed = 0

			if h.Reg == nil || host.Reregister() {
				reg, err := host.Domain().Register([]fabric.IovSeg{{Base: h.Data}}, r.payloadAccessRx, r.Keys.Next())
				if err != nil {
					readyForCxn.PutUnchecked(h)
					break
				}
				h.Reg = reg
			}
			vb.Msg.Iov[i] = wire.IovTriple{Addr: 0, Len: uint64(h.NAllocated), Key: h.Reg.Key()}
			r.TgtPosted.Put(h)
		}
		vb.Msg.NIovs = i
		vb.NUsed = 8 + int(i)*24

		r.Vec.Ready.Put(vb)
	}
}

// targetsRead consumes NFull bytes against the head of TgtPosted in
// issuance order, handing fully (or, at remote EOF, partially) filled
// targets to readyForTerminal (spec section 4.4's rcvr_targets_read).
func (r *Receiver) targetsRead(readyForTerminal *fifo.FIFO[*buffer.Payload]) {
	for r.NFull > 0 {
		h, ok := r.TgtPosted.Peek()
		if !ok || readyForTerminal.Full() {
			break
		}

		if h.NUsed+r.NFull < h.NAllocated {
			h.NUsed += r.NFull
			r.NFull = 0
		} else {
			r.NFull -= h.NAllocated - h.NUsed
			h.NUsed = h.NAllocated
			_, _ = r.TgtPosted.Get()
			readyForTerminal.PutUnchecked(h)
		}
	}

	if r.EOFRemote {
		if h, ok := r.TgtPosted.Peek(); ok && h.NUsed != 0 {
			_, _ = r.TgtPosted.Get()
			readyForTerminal.PutUnchecked(h)
		}
	}
}
