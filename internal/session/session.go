// Package session pairs one connection state machine with one terminal
// (source or sink) across the two payload-buffer FIFOs they hand off
// through (spec section 4.8: "run the terminal's trade, then run the
// connection's loop step").
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package session

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/cxn"
	"github.com/momentics/fxfer/internal/fifo"
	"github.com/momentics/fxfer/internal/terminal"
)

// Outcome is the combined result of one Step, the value a worker acts on:
// the worker retires the slot on end, error or canceled, and on error also
// marks itself failed. The worker does not close the endpoint and keeps no
// canceled mark; a connection closes its own endpoint only once a
// cancellation has drained.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeEnd
	OutcomeError
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeEnd:
		return "end"
	case OutcomeError:
		return "error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Session is one occupied worker slot: a connection, its terminal, and the
// two FIFOs that hand payload buffers back and forth between them (spec
// section 4.3, "ready_for_cxn" / "ready_for_terminal").
type Session struct {
	Cxn      cxn.Cxn
	Terminal terminal.Terminal

	ReadyForCxn      *fifo.FIFO[*buffer.Payload]
	ReadyForTerminal *fifo.FIFO[*buffer.Payload]

	// Done, if set, is called exactly once with the session's terminal
	// outcome (end, error, or canceled) the first time Step produces one.
	// The worker never reads it (it retires the slot on any non-continue
	// outcome); the self-test driver behind both binaries' -t mode uses it
	// to learn when a session it cannot otherwise observe has finished.
	Done func(Outcome)

	doneFired bool
}

// New builds a Session with both hand-off FIFOs at the given capacity
// (must be a power of two).
func New(c cxn.Cxn, t terminal.Terminal, capacity int) *Session {
	return &Session{
		Cxn:              c,
		Terminal:         t,
		ReadyForCxn:      fifo.New[*buffer.Payload](capacity),
		ReadyForTerminal: fifo.New[*buffer.Payload](capacity),
	}
}

// Step runs one terminal trade followed by one connection loop step. A
// terminal error returns OutcomeError at once, without running the
// connection's loop step; a terminal end is not reported, so otherwise the
// outcome is the connection's.
func (s *Session) Step(host cxn.Host, cancelRequested bool) Outcome {
	outcome := s.step(host, cancelRequested)
	if outcome != OutcomeContinue && !s.doneFired {
		s.doneFired = true
		if s.Done != nil {
			s.Done(outcome)
		}
	}
	return outcome
}

func (s *Session) step(host cxn.Host, cancelRequested bool) Outcome {
	if s.Terminal.Trade(s.ReadyForTerminal, s.ReadyForCxn) == terminal.LoopError {
		return OutcomeError
	}

	switch s.Cxn.Loop(host, s.ReadyForCxn, s.ReadyForTerminal, cancelRequested) {
	case cxn.LoopError:
		return OutcomeError
	case cxn.LoopCanceled:
		return OutcomeCanceled
	case cxn.LoopEnd:
		return OutcomeEnd
	default:
		return OutcomeContinue
	}
}
