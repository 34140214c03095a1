package terminal

import (
	"testing"

	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fifo"
)

// drainToSink wires a Source and a Sink back to back through two pairs of
// FIFOs, as a session would, and drives them until the full self-check
// stream has passed through both ends.
func drainToSink(t *testing.T, bufSize int) {
	t.Helper()

	total := len(SelfCheckPattern) * SelfCheckRepeats
	src := NewSelfCheckSource()
	sink := NewSelfCheckSink()

	txReady := fifo.New[*buffer.Payload](16)     // empty txbufs for the source to fill
	txCompleted := fifo.New[*buffer.Payload](16) // filled txbufs awaiting transfer to the sink
	rxReady := fifo.New[*buffer.Payload](16)     // filled buffers awaiting sink verification
	rxCompleted := fifo.New[*buffer.Payload](16) // verified buffers awaiting recycle

	for i := 0; i < 16; i++ {
		txReady.Put(buffer.NewPayload(bufSize))
	}

	for iter := 0; iter < total*4+1000; iter++ {
		if sctl := src.Trade(txReady, txCompleted); sctl == LoopError {
			t.Fatalf("source trade error")
		}

		for {
			b, ok := txCompleted.Get()
			if !ok {
				break
			}
			rxReady.Put(b)
		}

		if txCompleted.EoPut() && txCompleted.Len() == 0 {
			rxReady.PutClose()
		}

		if ctl := sink.Trade(rxReady, rxCompleted); ctl == LoopError {
			t.Fatalf("sink trade error")
		} else if ctl == LoopEnd && sink.Idx() == total {
			break
		}

		for {
			b, ok := rxCompleted.Get()
			if !ok {
				break
			}
			b.NUsed = 0
			txReady.Put(b)
		}
	}

	if src.Idx() != total {
		t.Fatalf("source idx = %d, want %d", src.Idx(), total)
	}
	if sink.Idx() != total {
		t.Fatalf("sink idx = %d, want %d", sink.Idx(), total)
	}
}

func TestSourceSinkRoundTrip(t *testing.T) {
	drainToSink(t, 4096)
}

func TestSourceSinkRoundTripSmallBuffers(t *testing.T) {
	drainToSink(t, 7)
}

func TestSinkDetectsMismatch(t *testing.T) {
	sink := NewSink([]byte("abc"), 9)
	ready := fifo.New[*buffer.Payload](4)
	completed := fifo.New[*buffer.Payload](4)

	bad := buffer.NewPayload(3)
	copy(bad.Data, []byte("xyz"))
	bad.NUsed = 3
	ready.Put(bad)

	if ctl := sink.Trade(ready, completed); ctl != LoopError {
		t.Fatalf("expected error on mismatch, got %v", ctl)
	}
}

func TestSourcePutCloseOnCompletion(t *testing.T) {
	src := NewSource([]byte("ab"), 2)
	ready := fifo.New[*buffer.Payload](4)
	completed := fifo.New[*buffer.Payload](4)
	ready.Put(buffer.NewPayload(2))

	ctl := src.Trade(ready, completed)
	if ctl != LoopEnd {
		t.Fatalf("expected end, got %v", ctl)
	}
	if !completed.EoPut() {
		t.Fatalf("expected completed to be put-closed")
	}
}
