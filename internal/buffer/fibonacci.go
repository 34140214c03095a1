package buffer

import "github.com/momentics/fxfer/internal/fabric"

// FibonacciIovSetup splits a contiguous buffer of length n bytes into up to
// niovs segments whose lengths follow the Fibonacci sequence (1, 1, 2, 3,
// 5, ...) capped at the remaining length; the final segment absorbs any
// residue. It exists to exercise the registration and scatter-gather paths
// with non-uniform segment sizes under test (spec section 4.2).
func FibonacciIovSetup(buf []byte, n int, niovs int) []fabric.IovSeg {
	if niovs <= 0 || n <= 0 {
		return nil
	}

	segs := make([]fabric.IovSeg, 0, niovs)
	a, b := 1, 1
	remaining := n
	off := 0

	for i := 0; i < niovs-1 && remaining > 0; i++ {
		segLen := a
		if segLen > remaining {
			segLen = remaining
		}
		segs = append(segs, fabric.IovSeg{Base: buf[off : off+segLen]})
		off += segLen
		remaining -= segLen
		a, b = b, a+b
	}

	if remaining > 0 {
		segs = append(segs, fabric.IovSeg{Base: buf[off : off+remaining]})
	}

	return segs
}
