// Package cxn implements the two connection state machines — receiver and
// sender — each driven by a single Loop step per worker pass (spec section
// 4.3-4.6). Per the port's design notes, the sum type over {Receiver,
// Sender} that the original expresses with a function-pointer `loop` field
// is expressed here as the Cxn interface, with Receiver and Sender as its
// two implementations kept in the worker's flat session arena rather than
// behind a shared base-struct pointer.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package cxn

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fifo"
)

// LoopControl is the return code of a connection's Loop step (spec section
// 4: continue, end, error, or canceled — the fourth value a connection
// adds beyond what a terminal's Trade can return, once its posted queues
// have finished draining after a cancel).
type LoopControl int

const (
	LoopContinue LoopControl = iota
	LoopEnd
	LoopError
	LoopCanceled
)

func (lc LoopControl) String() string {
	switch lc {
	case LoopContinue:
		return "continue"
	case LoopEnd:
		return "end"
	case LoopError:
		return "error"
	case LoopCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Host is what a worker exposes to the connection it drives: the payload
// buffer reservoirs (spec section 3's "Buffer pools"), the registration
// domain, and the reregister-per-vector policy flag (spec section 5).
type Host interface {
	RxBuffer() *buffer.Payload
	TxBuffer() *buffer.Payload
	Domain() fabric.Domain
	Reregister() bool
	Keys() *buffer.KeySource
}

// Cxn is the common interface of Receiver and Sender: one Loop step per
// worker pass, consuming/producing on the session's two FIFOs (spec
// section 4: "a single loop step"). cancelRequested carries the process-
// wide cancellation signal (spec section 5): once true, the connection
// cancels its posted operations, latches its own Cancelled flag, and
// drains towards LoopCanceled rather than LoopEnd.
type Cxn interface {
	Loop(host Host, readyForCxn, readyForTerminal *fifo.FIFO[*buffer.Payload], cancelRequested bool) LoopControl
	// Cancelled reports whether this connection has observed a cancellation
	// request and is now draining towards LoopCanceled.
	Cancelled() bool
}

// Base holds the fields common to both the receiver and sender sides of a
// connection (spec section 4: "cxn" struct).
type Base struct {
	Ep        fabric.Endpoint
	Peer      fabric.PeerAddr
	SentFirst bool
	Started   bool
	cancelled bool

	EOFLocal  bool
	EOFRemote bool

	Keys *buffer.KeySource
}

func (b *Base) Cancelled() bool { return b.cancelled }

// RequestCancel marks the connection for cancellation; the next Loop call
// cancels every posted operation and begins draining (spec section 5,
// "Cancellation").
func (b *Base) RequestCancel() { b.cancelled = true }
