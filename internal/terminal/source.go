package terminal

import (
	"github.com/momentics/fxfer/internal/buffer"
	"github.com/momentics/fxfer/internal/fifo"
)

// SelfCheckPattern is the fixed text repeated to build the self-check
// byte-stream (spec section 8, scenario S1).
const SelfCheckPattern = "If this message was received in error then please print it out and shred it."

// SelfCheckRepeats is how many times SelfCheckPattern is repeated to form
// the full self-check stream (spec section 4.7 / section 3 of this port's
// expanded spec).
const SelfCheckRepeats = 100000

// Source copies bytes from a repeating pattern into payload buffers until
// entirelen bytes have been produced, then put-closes the completed FIFO.
type Source struct {
	pattern   []byte
	entirelen int
	idx       int
}

// NewSource builds a Source that will produce total bytes of pattern
// repeated end to end. pattern must be non-empty.
func NewSource(pattern []byte, total int) *Source {
	p := make([]byte, len(pattern))
	copy(p, pattern)
	return &Source{pattern: p, entirelen: total}
}

// NewSelfCheckSource builds the Source used by the built-in -t self-test
// mode (spec section 8 scenario S1).
func NewSelfCheckSource() *Source {
	return NewSource([]byte(SelfCheckPattern), len(SelfCheckPattern)*SelfCheckRepeats)
}

// Idx reports the number of bytes produced so far.
func (s *Source) Idx() int { return s.idx }

// Trade fills empty payload buffers drawn from ready with pattern bytes and
// moves them onto completed, until entirelen bytes have been produced, at
// which point it put-closes completed and returns end.
func (s *Source) Trade(ready, completed *fifo.FIFO[*buffer.Payload]) LoopControl {
	if completed.EoPut() {
		return LoopEnd
	}

	txbuflen := len(s.pattern)

	for {
		b, ok := ready.Peek()
		if !ok || completed.Full() {
			break
		}

		if s.idx == s.entirelen {
			completed.PutClose()
			break
		}

		nused := s.entirelen - s.idx
		if cap := len(b.Data); nused > cap {
			nused = cap
		}
		b.NUsed = nused

		ofs := 0
		for ofs < nused {
			txOfs := (s.idx + ofs) % txbuflen
			n := nused - ofs
			if avail := txbuflen - txOfs; n > avail {
				n = avail
			}
			copy(b.Data[ofs:ofs+n], s.pattern[txOfs:txOfs+n])
			ofs += n
		}

		_, _ = ready.Get()
		completed.PutUnchecked(b)
		s.idx += nused
	}

	if s.idx != s.entirelen {
		return LoopContinue
	}
	completed.PutClose()
	return LoopEnd
}
