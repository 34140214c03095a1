package cxn

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fifo"
	"github.com/momentics/fxfer/internal/wire"
)

// Sender is the sending side of a connection (the original's xmtr_t): it
// sends one initial message, receives its peer's RDMA target
// advertisements, and writes payload bytes directly into those targets,
// fragmenting an oversize payload buffer only once the remote window
// already holds as many targets as one write may use (spec section
// 4.5-4.6).
//
// Per the port's design notes, this carries a single scratch remote
// vector (RIov) rather than the original's phase-flipped double buffer:
// each write consumes a prefix of RIov in place instead of copying the
// unconsumed remainder into an alternate array.
type Sender struct {
	Base

	WrPosted      *fifo.FIFO[buffer.Buf]
	BytesProgress int

	Vec      RxCtl[*buffer.Vector]
	Progress TxCtl[*buffer.Progress]

	InitialRaw []byte
	AckRaw     []byte
	RcvdAck    bool

	FragmentPool   *buffer.Pool[*buffer.Fragment]
	FragmentOffset int

	RIov     []fabric.RemoteSeg
	NextRIov int

	payloadAccessTx fabric.AccessFlags
}

// NewSender builds a Sender ready to send initialRaw once connected,
// posting the one-shot receive for the peer's ack immediately (the
// original posts this ack receive at session setup, well before the
// steady-state loop ever runs).
func NewSender(ep fabric.Endpoint, peer fabric.PeerAddr, initialRaw, ackRaw []byte, payloadAccessTx fabric.AccessFlags) *Sender {
	x := &Sender{
		WrPosted:        fifo.New[buffer.Buf](256),
		Vec:             NewRxCtl[*buffer.Vector](64),
		Progress:        NewTxCtl[*buffer.Progress](8),
		InitialRaw:      initialRaw,
		AckRaw:          ackRaw,
		FragmentPool:    buffer.NewPool[*buffer.Fragment](),
		payloadAccessTx: payloadAccessTx,
	}
	x.Ep = ep
	x.Peer = peer
	_ = ep.Recv(ackRaw, x.ackRecvCtx())
	return x
}

func encodeProgress(pb *buffer.Progress) []byte {
	_ = wire.EncodeProgress(pb.Raw, &pb.Msg)
	return pb.Raw[:pb.NUsed]
}

// Loop implements Cxn.
func (x *Sender) Loop(host Host, readyForCxn, readyForTerminal *fifo.FIFO[*buffer.Payload], cancelRequested bool) LoopControl {
	if x.cqProcess(host, readyForTerminal) == LoopError {
		return LoopError
	}

	if x.cancelled {
		if x.Progress.Posted.Len() == 0 && x.Vec.Posted.Len() == 0 && x.WrPosted.Len() == 0 {
			_ = x.Ep.Close()
			return LoopCanceled
		}
		return LoopContinue
	} else if cancelRequested {
		x.Progress.Cancel(x.Ep)
		x.Vec.Cancel(x.Ep)
		x.cancelWrPosted()
		x.cancelled = true
		return LoopContinue
	}

	if !x.SentFirst {
		return x.initialSend()
	}

	if !x.Started {
		return x.start(host, readyForTerminal)
	}

	if !x.RcvdAck {
		return LoopContinue
	}

	x.vecbufUnload()

	maxRmaSegs := host.Domain().Provider().MaxRmaSegs()
	if x.targetsWrite(readyForCxn, maxRmaSegs) == LoopError {
		return LoopError
	}

	x.progressUpdate(readyForCxn)
	_ = x.Progress.Transmit(x.Ep, x.Peer, encodeProgress)

	if !(readyForCxn.EoGet() && x.WrPosted.Len() == 0 && x.BytesProgress == 0 && x.EOFLocal) {
		return LoopContinue
	}

	for !x.EOFRemote {
		vb, ok := x.Vec.Rcvd.Get()
		if !ok {
			break
		}
		if vb.Msg.NIovs == 0 {
			x.EOFRemote = true
		}
	}

	if x.EOFRemote && x.Progress.Posted.Len() == 0 {
		return LoopEnd
	}
	return LoopContinue
}

func (x *Sender) cancelWrPosted() {
	n := x.WrPosted.Len()
	for i := 0; i < n; i++ {
		b, ok := x.WrPosted.Get()
		if !ok {
			break
		}
		b.Hdr().Ctx.Cancelled = true
		x.WrPosted.PutUnchecked(b)
	}
	_ = x.Ep.Cancel()
}

func (x *Sender) initialSend() LoopControl {
	err := x.Ep.Send(x.Peer, x.InitialRaw, x.initialCtx())
	if err == fabric.ErrTryAgain {
		return LoopContinue
	}
	if err != nil {
		return LoopError
	}
	x.SentFirst = true
	return LoopContinue
}

func (x *Sender) initialCtx() any { return &x.InitialRaw }
func (x *Sender) ackRecvCtx() any { return &x.AckRaw }

func (x *Sender) start(host Host, readyForTerminal *fifo.FIFO[*buffer.Payload]) LoopControl {
	x.Started = true

	for x.Progress.Pool.Len() < x.Progress.Ready.Cap() {
		x.Progress.Pool.Put(buffer.NewProgress())
	}

	for !readyForTerminal.Full() {
		b := host.TxBuffer()
		if b == nil {
			return LoopError
		}
		b.NUsed = 0
		readyForTerminal.Put(b)
	}
	return LoopContinue
}

// cqProcess drains at most one completion and dispatches it by context
// kind (spec section 4.6's xmtr_cq_process).
func (x *Sender) cqProcess(host Host, readyForTerminal *fifo.FIFO[*buffer.Payload]) LoopControl {
	var out [1]fabric.Completion
	n, err := x.Ep.CQ().Poll(out[:])
	if err != nil {
		return LoopError
	}
	if n == 0 {
		return LoopContinue
	}
	cmpl := out[0]

	if cmpl.Ctx == x.ackRecvCtx() {
		if cmpl.Err == fabric.ErrCanceled {
			return LoopContinue
		}
		return x.ackRxProcess(host, cmpl)
	}
	if cmpl.Ctx == x.initialCtx() {
		return LoopContinue
	}

	hdr, ok := cmpl.Ctx.(*buffer.Header)
	if !ok {
		return LoopContinue
	}
	hdr.Ctx.Owner = buffer.OwnerProgram

	switch hdr.Ctx.Kind {
	case buffer.KindVector:
		x.vectorRxProcess(cmpl)
		return LoopContinue
	case buffer.KindFragment, buffer.KindRDMAWrite:
		x.writeComplete(readyForTerminal)
		return LoopContinue
	case buffer.KindProgress:
		_ = x.Progress.Complete(cmpl)
		return LoopContinue
	}
	return LoopContinue
}

func (x *Sender) ackRxProcess(host Host, cmpl fabric.Completion) LoopControl {
	if cmpl.Len != wire.AckWireSize {
		return LoopError
	}
	var ack wire.Ack
	if err := wire.DecodeAck(x.AckRaw, &ack); err != nil {
		return LoopError
	}
	if _, err := x.Ep.AddressVectorInsert(ack.Addr[:ack.AddrLen]); err != nil {
		return LoopError
	}

	for !x.Vec.Posted.Full() {
		vb := buffer.NewVector()
		if err := x.Vec.Post(x.Ep, vb.Raw, vb); err != nil {
			return LoopError
		}
	}

	x.RcvdAck = true
	return LoopContinue
}

func (x *Sender) vectorRxProcess(cmpl fabric.Completion) {
	vb, err := x.Vec.Complete(cmpl)
	if err != nil {
		return
	}
	if vb.Hdr().Ctx.Cancelled {
		return
	}
	if !vectorWellFormed(vb) {
		_ = x.Vec.Post(x.Ep, vb.Raw, vb)
		return
	}
	x.Vec.Rcvd.Put(vb)
}

func vectorWellFormed(vb *buffer.Vector) bool {
	const least = 8
	if vb.NUsed < least {
		return false
	}
	remaining := vb.NUsed - least
	if remaining%24 != 0 {
		return false
	}
	niovsSpace := remaining / 24
	if err := wire.DecodeVector(vb.Raw, &vb.Msg); err != nil {
		return false
	}
	if niovsSpace < int(vb.Msg.NIovs) || vb.Msg.NIovs > wire.MaxIovs {
		return false
	}
	return true
}

// vecbufUnload copies newly received remote iov triples into the scratch
// RIov vector, picking up at NextRIov if the previous vector message was
// only partially absorbed because RIov was already full (spec section
// 4.6's xmtr_vecbuf_unload).
func (x *Sender) vecbufUnload(maxRIov ...int) {
	vb, ok := x.Vec.Rcvd.Peek()
	if !ok {
		return
	}

	if !x.EOFRemote && vb.Msg.NIovs == 0 {
		x.EOFRemote = true
	}

	const capRIov = wire.MaxIovs
	i := x.NextRIov
	for i < int(vb.Msg.NIovs) && len(x.RIov) < capRIov {
		iov := vb.Msg.Iov[i]
		x.RIov = append(x.RIov, fabric.RemoteSeg{Offset: iov.Addr, Length: iov.Len, Key: iov.Key})
		i++
	}

	if i == int(vb.Msg.NIovs) {
		_, _ = x.Vec.Rcvd.Get()
		_ = x.Vec.Post(x.Ep, vb.Raw, vb)
		x.NextRIov = 0
	} else {
		x.NextRIov = i
	}
}

func (x *Sender) splitBuf(parent *buffer.Payload, offset, length int) *buffer.Fragment {
	parent.Ctx.NChildren++
	if f, ok := x.FragmentPool.Get(); ok {
		f.Parent = parent
		f.Offset = offset
		f.Length = length
		f.Ctx = buffer.Context{Kind: buffer.KindFragment}
		f.Reg = parent.Reg
		f.NUsed = length
		f.NAllocated = length
		return f
	}
	return buffer.NewFragment(parent, offset, length)
}

// targetsWrite consumes ready payload buffers against the scratch remote
// vector until it runs out of either local payload or RDMA target room,
// splitting a buffer that overruns the available remote window only when
// RIov already holds at least maxRmaSegs targets (spec section 4.6's
// xmtr_targets_write — the sender's adaptive fragmentation algorithm).
func (x *Sender) targetsWrite(readyForCxn *fifo.FIFO[*buffer.Payload], maxRmaSegs int) LoopControl {
	maxriovs := maxRmaSegs
	if maxriovs > len(x.RIov) {
		maxriovs = len(x.RIov)
	}
	if maxriovs == 0 {
		return LoopContinue
	}

	var maxbytes uint64
	for i := 0; i < maxriovs; i++ {
		maxbytes += x.RIov[i].Length
	}
	riovsMaxedOut := len(x.RIov) >= maxRmaSegs

	var local [][]byte
	var firstH, lastH buffer.Buf
	var total uint64

	for i := 0; i < maxriovs; i++ {
		head, ok := readyForCxn.Peek()
		if !ok || x.WrPosted.Full() || total >= maxbytes {
			break
		}

		avail := head.NUsed - x.FragmentOffset
		oversize := uint64(avail) > maxbytes-total
		if oversize && !riovsMaxedOut {
			break
		}

		var length int
		if oversize {
			length = int(maxbytes - total)
		} else {
			length = avail
		}

		if x.FragmentOffset == 0 {
			head.Ctx.NChildren = 0
		}

		var h buffer.Buf
		var segBytes []byte
		if oversize {
			f := x.splitBuf(head, x.FragmentOffset, length)
			h = f
			segBytes = f.Bytes()
		} else {
			_, _ = readyForCxn.Get()
			h = head
			segBytes = head.Data[x.FragmentOffset : x.FragmentOffset+length]
		}

		x.WrPosted.Put(h)
		if firstH == nil {
			firstH = h
		}
		lastH = h

		h.Hdr().Ctx.Owner = buffer.OwnerProgram
		h.Hdr().Ctx.Place = 0

		local = append(local, segBytes)
		total += uint64(length)

		if oversize {
			x.FragmentOffset += length
		} else {
			x.FragmentOffset = 0
		}
	}

	if firstH == nil {
		return LoopContinue
	}

	firstH.Hdr().Ctx.Owner = buffer.OwnerNIC
	firstH.Hdr().Ctx.Place = buffer.PlaceFirst
	lastH.Hdr().Ctx.Place |= buffer.PlaceLast

	consumed, residual := splitRemote(x.RIov[:maxriovs], total)
	x.RIov = append(residual, x.RIov[maxriovs:]...)

	err := x.Ep.Write(x.Peer, local, consumed, fabric.FlagRMA|fabric.FlagDeliveryComplete|fabric.FlagCompletion, firstH.Hdr())
	if err != nil && err != fabric.ErrTryAgain {
		return LoopError
	}

	return LoopContinue
}

// splitRemote splits riov at the total-byte boundary: consumed is the
// prefix this write actually targets (trimmed to total bytes, the exact
// shape Ep.Write expects to match local's combined length), and residual
// is the unconsumed tail — the segment total lands inside is split rather
// than discarded whole, so its remainder is still available to the next
// write.
func splitRemote(riov []fabric.RemoteSeg, total uint64) (consumed, residual []fabric.RemoteSeg) {
	remaining := total
	for _, rs := range riov {
		switch {
		case remaining >= rs.Length:
			consumed = append(consumed, rs)
			remaining -= rs.Length
		case remaining > 0:
			consumed = append(consumed, fabric.RemoteSeg{Offset: rs.Offset, Length: remaining, Key: rs.Key})
			residual = append(residual, fabric.RemoteSeg{Offset: rs.Offset + remaining, Length: rs.Length - remaining, Key: rs.Key})
			remaining = 0
		default:
			residual = append(residual, rs)
		}
	}
	return consumed, residual
}

// writeComplete retires every WrPosted item belonging to a completed batch
// — fragments (decrementing their parent's NChildren) interleaved with
// whole payload buffers (once their NChildren has reached zero) — in
// issuance order (spec section 4.6's xmtr_cq_process RDMA-write branch).
//
// A batch's non-first items are tagged OwnerProgram the moment they are
// posted, well before their batch's single completion actually arrives;
// only the batch's first item is held at OwnerNIC until cqProcess flips it
// back on completion. Because WrPosted retires strictly head-first in
// post order, that first item always reaches the head before any of its
// batch's later items can, so walking from the head and stopping at the
// first OwnerNIC item never retires a batch early — and, unlike gating the
// whole call on the head alone carrying PlaceFirst, it keeps draining past
// a trailing fragment (tagged PlaceLast only) into the next batch's items
// within the same call.
func (x *Sender) writeComplete(readyForTerminal *fifo.FIFO[*buffer.Payload]) {
	for {
		h, ok := x.WrPosted.Peek()
		if !ok || h.Hdr().Ctx.Owner != buffer.OwnerProgram {
			return
		}

		switch h.Hdr().Ctx.Kind {
		case buffer.KindFragment:
			_, _ = x.WrPosted.Get()
			f := h.(*buffer.Fragment)
			f.Parent.Ctx.NChildren--
			x.FragmentPool.Put(f)
		case buffer.KindRDMAWrite:
			if h.Hdr().Ctx.NChildren != 0 || readyForTerminal.Full() {
				return
			}
			_, _ = x.WrPosted.Get()
			p := h.(*buffer.Payload)
			x.BytesProgress += p.NUsed
			readyForTerminal.PutUnchecked(p)
		default:
			return
		}
	}
}

// progressUpdate enqueues a progress message once bytes have been
// written since the last one, or to signal local EOF once the terminal
// has stopped producing and every posted write has retired (spec section
// 4.6's xmtr_progress_update).
func (x *Sender) progressUpdate(readyForCxn *fifo.FIFO[*buffer.Payload]) {
	reachedEOF := readyForCxn.EoGet() && x.WrPosted.Len() == 0 && !x.EOFLocal

	if x.BytesProgress == 0 && !reachedEOF {
		return
	}
	if x.Progress.Ready.Full() {
		return
	}
	pb, ok := x.Progress.Pool.Get()
	if !ok {
		return
	}

	pb.Ctx.Owner = buffer.OwnerNIC
	pb.NUsed = pb.NAllocated
	pb.Msg.NFilled = uint64(x.BytesProgress)
	if reachedEOF {
		pb.Msg.NLeftover = 0
	} else {
		pb.Msg.NLeftover = 1
	}

	x.BytesProgress = 0
	x.Progress.Ready.Put(pb)

	if reachedEOF {
		x.EOFLocal = true
	}
}
