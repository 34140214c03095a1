package cxn

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fifo"
	"github.com/momentics/fxfer/internal/xerr"
)

// RxCtl manages one direction of small control-message reception: a FIFO of
// posted receive buffers and a FIFO of buffers holding fully received
// messages, ready for the caller to decode (spec section 4.3).
type RxCtl[T buffer.Buf] struct {
	Posted *fifo.FIFO[T]
	Rcvd   *fifo.FIFO[T]
}

// NewRxCtl builds an RxCtl with both FIFOs at the given capacity.
func NewRxCtl[T buffer.Buf](capacity int) RxCtl[T] {
	return RxCtl[T]{Posted: fifo.New[T](capacity), Rcvd: fifo.New[T](capacity)}
}

// Post posts a receive of raw into the fabric tagged with b's header as
// context, and records b on the posted FIFO.
func (rc *RxCtl[T]) Post(ep fabric.Endpoint, raw []byte, b T) error {
	b.Hdr().Ctx.Cancelled = false
	if err := ep.Recv(raw, b.Hdr()); err != nil {
		return err
	}
	rc.Posted.Put(b)
	return nil
}

// Complete matches a fabric completion against the head of Posted (posted
// receives complete in issuance order) and records the received length.
// Returns a CodeProtocol error if no receive was posted, or if the
// completion's context does not match the head's.
func (rc *RxCtl[T]) Complete(cmpl fabric.Completion) (T, error) {
	var zero T
	b, ok := rc.Posted.Get()
	if !ok {
		return zero, xerr.New(xerr.CodeProtocol, "received a message, but no receive was posted")
	}
	if cmpl.Ctx != b.Hdr() {
		return zero, xerr.New(xerr.CodeProtocol, "completion context did not match head of posted queue")
	}
	b.Hdr().NUsed = cmpl.Len
	return b, nil
}

// Cancel marks every buffer currently posted as canceled and cancels the
// endpoint's outstanding operations (spec section 4.3's fifo_cancel,
// simplified to one whole-endpoint Cancel call per the fabric package's
// Endpoint.Cancel contract).
func (rc *RxCtl[T]) Cancel(ep fabric.Endpoint) {
	n := rc.Posted.Len()
	for i := 0; i < n; i++ {
		b, ok := rc.Posted.Get()
		if !ok {
			break
		}
		b.Hdr().Ctx.Cancelled = true
		rc.Posted.PutUnchecked(b)
	}
	_ = ep.Cancel()
}

// TxCtl manages one direction of small control-message transmission: a
// FIFO of buffers ready to send, a FIFO of posted sends, and a free-list
// pool of unused buffers (spec section 4.3).
type TxCtl[T buffer.Buf] struct {
	Ready  *fifo.FIFO[T]
	Posted *fifo.FIFO[T]
	Pool   *buffer.Pool[T]
}

// NewTxCtl builds a TxCtl with both FIFOs at the given capacity and an
// empty pool.
func NewTxCtl[T buffer.Buf](capacity int) TxCtl[T] {
	return TxCtl[T]{Ready: fifo.New[T](capacity), Posted: fifo.New[T](capacity), Pool: buffer.NewPool[T]()}
}

// Transmit sends as many ready buffers as the posted FIFO has room for,
// stopping at the first ErrTryAgain (spec section 4.3's txctl_transmit).
func (tc *TxCtl[T]) Transmit(ep fabric.Endpoint, peer fabric.PeerAddr, encode func(T) []byte) error {
	for !tc.Posted.Full() {
		b, ok := tc.Ready.Peek()
		if !ok {
			break
		}

		err := ep.Send(peer, encode(b), b.Hdr())
		if err == fabric.ErrTryAgain {
			break
		}
		if err != nil {
			return err
		}

		_, _ = tc.Ready.Get()
		tc.Posted.Put(b)
	}
	return nil
}

// Complete matches a fabric completion against the head of Posted and
// recycles the buffer back to Pool.
func (tc *TxCtl[T]) Complete(cmpl fabric.Completion) error {
	b, ok := tc.Posted.Get()
	if !ok {
		return xerr.New(xerr.CodeProtocol, "message transmission completed, but no send was posted")
	}
	if cmpl.Ctx != b.Hdr() {
		return xerr.New(xerr.CodeProtocol, "completion context did not match head of posted queue")
	}
	tc.Pool.Put(b)
	return nil
}

// Cancel marks every buffer currently posted as canceled and cancels the
// endpoint's outstanding operations.
func (tc *TxCtl[T]) Cancel(ep fabric.Endpoint) {
	n := tc.Posted.Len()
	for i := 0; i < n; i++ {
		b, ok := tc.Posted.Get()
		if !ok {
			break
		}
		b.Hdr().Ctx.Cancelled = true
		tc.Posted.PutUnchecked(b)
	}
	_ = ep.Cancel()
}
