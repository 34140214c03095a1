package worker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/cxn"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fifo"
	"github.com/momentics/fxfer/internal/session"
	"github.com/momentics/fxfer/internal/terminal"
)

// scriptedCxn completes after a fixed number of Loop calls, letting tests
// drive a Worker through a predictable session lifecycle.
type scriptedCxn struct {
	remaining int
	result    cxn.LoopControl
}

func (s *scriptedCxn) Loop(host cxn.Host, readyForCxn, readyForTerminal *fifo.FIFO[*buffer.Payload], cancelRequested bool) cxn.LoopControl {
	if s.remaining > 0 {
		s.remaining--
		return cxn.LoopContinue
	}
	return s.result
}

func (s *scriptedCxn) Cancelled() bool { return false }

type passthroughTerminal struct{}

func (passthroughTerminal) Trade(ready, completed *fifo.FIFO[*buffer.Payload]) terminal.LoopControl {
	return terminal.LoopContinue
}

// buildSession wraps scriptedCxn and a no-op terminal behind session.Session,
// driving a Worker through a predictable session lifecycle.
func buildSession(loops int, result cxn.LoopControl) *session.Session {
	return session.New(&scriptedCxn{remaining: loops, result: result}, passthroughTerminal{}, 4)
}

func TestNewSeedsReservoirs(t *testing.T) {
	w := New(0, false, false, 64, -1, zerolog.Nop())
	if w.rxReservoir.Len() != ReservoirCapacity {
		t.Fatalf("rx reservoir len = %d, want %d", w.rxReservoir.Len(), ReservoirCapacity)
	}
	if w.txReservoir.Len() != ReservoirCapacity {
		t.Fatalf("tx reservoir len = %d, want %d", w.txReservoir.Len(), ReservoirCapacity)
	}
}

func TestHostKeysAndDomain(t *testing.T) {
	w := New(1, true, false, 64, -1, zerolog.Nop())
	var dom fabric.Domain
	h := &Host{w: w, dom: dom}
	if h.Keys() != w.keys {
		t.Fatalf("Host.Keys() did not return the worker's key source")
	}
	if !h.Reregister() {
		t.Fatalf("Host.Reregister() = false, want true")
	}
}

func TestTryAssignFillsFirstAvailableHalf(t *testing.T) {
	w := New(0, false, false, 64, -1, zerolog.Nop())
	var dom fabric.Domain

	ok := w.TryAssign(dom, func(h cxn.Host) *session.Session {
		return buildSession(0, cxn.LoopEnd)
	})
	if !ok {
		t.Fatalf("expected TryAssign to succeed on an empty worker")
	}
	if w.occupied() != 1 {
		t.Fatalf("occupied = %d, want 1", w.occupied())
	}
	if w.Idle() {
		t.Fatalf("worker should not report idle right after assignment")
	}
}

func TestHasRoomReportsFalseOnceBothHalvesFull(t *testing.T) {
	w := New(0, false, false, 64, -1, zerolog.Nop())
	var dom fabric.Domain
	for i := 0; i < SlotsPerWorker; i++ {
		if !w.TryAssign(dom, func(h cxn.Host) *session.Session {
			return buildSession(1000000, cxn.LoopContinue)
		}) {
			t.Fatalf("assignment %d unexpectedly rejected", i)
		}
	}
	if w.HasRoom() {
		t.Fatalf("expected no room once both halves are full")
	}
}

func TestRunRetiresEndedSessionAndGoesIdle(t *testing.T) {
	w := New(0, false, false, 64, -1, zerolog.Nop())
	var dom fabric.Domain
	w.TryAssign(dom, func(h cxn.Host) *session.Session {
		return buildSession(2, cxn.LoopEnd)
	})

	done := make(chan struct{})
	go func() {
		w.Run(func() bool { return false })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if w.occupied() == 0 && w.Idle() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker never retired its session and went idle")
		case <-time.After(time.Millisecond):
		}
	}

	w.RequestShutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker.Run did not return after RequestShutdown")
	}
}

func TestRunMarksFailedOnErrorOutcome(t *testing.T) {
	w := New(0, false, false, 64, -1, zerolog.Nop())
	var dom fabric.Domain
	w.TryAssign(dom, func(h cxn.Host) *session.Session {
		return buildSession(0, cxn.LoopError)
	})

	done := make(chan struct{})
	go func() {
		w.Run(func() bool { return false })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !w.Failed() {
		select {
		case <-deadline:
			t.Fatalf("worker never observed the error outcome")
		case <-time.After(time.Millisecond):
		}
	}

	w.RequestShutdown()
	<-done
}
