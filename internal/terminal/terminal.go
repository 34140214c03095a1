// Package terminal implements the data producer/consumer attached to a
// connection: a source copies bytes from a repeating pattern into payload
// buffers until a fixed total is reached, and a sink verifies payload
// buffers against the same pattern (spec section 4.7).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package terminal

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fifo"
)

// LoopControl is the return code of Trade: continue (more work may follow),
// end (clean completion), or error (fatal, the caller must abort). A
// connection's loop step returns its own cxn.LoopControl.
type LoopControl int

const (
	LoopContinue LoopControl = iota
	LoopEnd
	LoopError
)

func (lc LoopControl) String() string {
	switch lc {
	case LoopContinue:
		return "continue"
	case LoopEnd:
		return "end"
	case LoopError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal is the interface a session holds: Trade moves buffers between
// ready (buffers ready for the terminal to consume) and completed (buffers
// the terminal has produced for the connection), copying or verifying
// payload bytes against its pattern as it goes.
type Terminal interface {
	Trade(ready, completed *fifo.FIFO[*buffer.Payload]) LoopControl
}
