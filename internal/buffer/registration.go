package buffer

import (
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/xerr"
)

// RegisteredSeg records where one local segment landed after registration:
// which Registration (and therefore which remote key) it belongs to, and
// its offset within that registration (spec section 4.2: "remote addresses
// are treated as offsets into a registration, not virtual addresses").
type RegisteredSeg struct {
	Reg    fabric.Registration
	Offset uint64
	Length uint64
}

// RegisterVector registers segs across one or more fabric memory-
// registration calls, respecting the provider's per-call segment limit,
// issuing a fresh key per call from keys. On any failure it closes every
// registration already issued and returns the fabric error (spec section
// 4.2).
func RegisterVector(dom fabric.Domain, keys *KeySource, segs []fabric.IovSeg, access fabric.AccessFlags) ([]RegisteredSeg, error) {
	prov := dom.Provider()
	if prov.RequiresVirtualAddress() {
		return nil, xerr.New(xerr.CodeConfiguration,
			"provider requires virtual-address RMA, which this core does not support")
	}

	maxsegs := prov.MaxRegSegs()
	if maxsegs <= 0 {
		maxsegs = len(segs)
	}

	var out []RegisteredSeg
	var issued []fabric.Registration

	for start := 0; start < len(segs); start += maxsegs {
		end := start + maxsegs
		if end > len(segs) {
			end = len(segs)
		}
		chunk := segs[start:end]
		key := keys.Next()

		reg, err := dom.Register(chunk, access, key)
		if err != nil {
			for _, r := range issued {
				_ = r.Close()
			}
			return nil, xerr.Wrap(xerr.CodeResourceExhaustion, "memory registration failed", err)
		}
		issued = append(issued, reg)

		var off uint64
		for _, s := range chunk {
			out = append(out, RegisteredSeg{Reg: reg, Offset: off, Length: uint64(len(s.Base))})
			off += uint64(len(s.Base))
		}
	}

	return out, nil
}
