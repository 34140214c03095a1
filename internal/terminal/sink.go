package terminal

import (
	"bytes"

	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fifo"
)

// Sink verifies incoming payload buffers against a repeating pattern at the
// corresponding stream offset; a mismatch is a fatal loop error (spec
// section 4.7).
type Sink struct {
	pattern   []byte
	entirelen int
	idx       int
}

// NewSink builds a Sink expecting total bytes of pattern repeated end to
// end.
func NewSink(pattern []byte, total int) *Sink {
	p := make([]byte, len(pattern))
	copy(p, pattern)
	return &Sink{pattern: p, entirelen: total}
}

// NewSelfCheckSink builds the Sink used by the built-in -t self-test mode
// (spec section 8 scenario S1), matching NewSelfCheckSource's stream.
func NewSelfCheckSink() *Sink {
	return NewSink([]byte(SelfCheckPattern), len(SelfCheckPattern)*SelfCheckRepeats)
}

// Idx reports the number of bytes verified so far.
func (s *Sink) Idx() int { return s.idx }

// Trade verifies filled payload buffers drawn from ready against the
// pattern and moves them onto completed for recycling. Returns continue
// while more bytes are expected, end once entirelen bytes have verified and
// ready has been get-closed cleanly, or error on a mismatch or on
// unexpected trailing bytes.
func (s *Sink) Trade(ready, completed *fifo.FIFO[*buffer.Payload]) LoopControl {
	if ready.EoGet() {
		if !ready.AltEmpty() {
			return LoopError
		}
		return LoopEnd
	}

	txbuflen := len(s.pattern)

	for {
		b, ok := ready.Peek()
		if !ok || completed.Full() {
			break
		}

		if b.NUsed+s.idx > s.entirelen {
			return LoopError
		}

		ofs := 0
		for ofs < b.NUsed {
			txOfs := (s.idx + ofs) % txbuflen
			n := b.NUsed - ofs
			if avail := txbuflen - txOfs; n > avail {
				n = avail
			}
			if !bytes.Equal(b.Data[ofs:ofs+n], s.pattern[txOfs:txOfs+n]) {
				return LoopError
			}
			ofs += n
		}

		_, _ = ready.Get()
		completed.Put(b)
		s.idx += b.NUsed
	}

	if s.idx != s.entirelen {
		return LoopContinue
	}

	ready.GetClose()
	return LoopEnd
}
