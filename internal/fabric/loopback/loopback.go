// Package loopback is an in-process Fabric implementation: two Endpoints
// wired directly to each other's memory, with no sockets or hardware
// involved. It exists to drive the connection state machines end-to-end
// for tests and the `-t` self-check mode, the same role momentics-hioload-ws's
// fake/transport.go plays for protocol/session layers that would otherwise
// require a live socket.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package loopback

import (
	"fmt"
	"sync"

	"github.com/momentics/fxfer/internal/fabric"
)

// Config tunes the provider capability limits the pair advertises, so
// tests can exercise fragmentation (spec section 4.6) by capping segment
// counts.
type Config struct {
	MaxRegSegs             int
	MaxRmaSegs              int
	RequiresVirtualAddress bool
}

// DefaultConfig matches the wire protocol's own ceiling (12 remote iovs).
func DefaultConfig() Config {
	return Config{MaxRegSegs: 12, MaxRmaSegs: 12, RequiresVirtualAddress: false}
}

type provider struct{ cfg Config }

func (p provider) MaxRegSegs() int               { return p.cfg.MaxRegSegs }
func (p provider) MaxRmaSegs() int               { return p.cfg.MaxRmaSegs }
func (p provider) RequiresVirtualAddress() bool  { return p.cfg.RequiresVirtualAddress }

// Pair builds two cross-wired endpoints: a acts as the receiver side's
// endpoint, b as the sender side's. Each has its own domain/registration
// table, reachable from the other for RDMA writes exactly as a real NIC
// would resolve a peer's advertised key.
func Pair(cfg Config) (a, b fabric.Endpoint) {
	domA := &domain{prov: provider{cfg}, regs: make(map[uint64]*registration)}
	domB := &domain{prov: provider{cfg}, regs: make(map[uint64]*registration)}
	epA := &endpoint{name: []byte("loopback-a"), dom: domA}
	epB := &endpoint{name: []byte("loopback-b"), dom: domB}
	epA.peer = epB
	epB.peer = epA
	return epA, epB
}

type registration struct {
	key   uint64
	segs  []fabric.IovSeg
	total uint64
}

func (r *registration) Key() uint64 { return r.key }
func (r *registration) Desc() any   { return r }
func (r *registration) Close() error { return nil }

// writeAt copies data into the registration's (possibly multi-segment)
// backing memory starting at logical offset off.
func (r *registration) writeAt(off uint64, data []byte) error {
	if off+uint64(len(data)) > r.total {
		return fmt.Errorf("loopback: write at %d len %d exceeds registration size %d", off, len(data), r.total)
	}
	remaining := data
	pos := uint64(0)
	for _, seg := range r.segs {
		segLen := uint64(len(seg.Base))
		if off >= pos+segLen {
			pos += segLen
			continue
		}
		if len(remaining) == 0 {
			break
		}
		start := uint64(0)
		if off > pos {
			start = off - pos
		}
		n := segLen - start
		if n > uint64(len(remaining)) {
			n = uint64(len(remaining))
		}
		copy(seg.Base[start:start+n], remaining[:n])
		remaining = remaining[n:]
		off += n
		pos += segLen
	}
	return nil
}

type domain struct {
	prov provider
	mu   sync.Mutex
	regs map[uint64]*registration
}

func (d *domain) Register(segs []fabric.IovSeg, access fabric.AccessFlags, key uint64) (fabric.Registration, error) {
	var total uint64
	for _, s := range segs {
		total += uint64(len(s.Base))
	}
	r := &registration{key: key, segs: append([]fabric.IovSeg(nil), segs...), total: total}
	d.mu.Lock()
	d.regs[key] = r
	d.mu.Unlock()
	return r, nil
}

func (d *domain) Provider() fabric.Provider { return d.prov }

func (d *domain) lookup(key uint64) (*registration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[key]
	return r, ok
}

func (d *domain) forget(key uint64) {
	d.mu.Lock()
	delete(d.regs, key)
	d.mu.Unlock()
}

type pendingRecv struct {
	buf []byte
	ctx any
}

type inboundMsg struct {
	data []byte
}

type endpoint struct {
	name []byte
	dom  *domain
	peer *endpoint

	mu        sync.Mutex
	pending   []pendingRecv
	inbox     []inboundMsg
	cancelled bool

	cq loopbackCQ
}

func (e *endpoint) GetName() ([]byte, error) { return e.name, nil }

func (e *endpoint) AddressVectorInsert(addr []byte) (fabric.PeerAddr, error) {
	// Loopback has exactly one peer; any advertised address resolves to it.
	return e.peer, nil
}

func (e *endpoint) Send(peer fabric.PeerAddr, data []byte, ctx any) error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return fabric.ErrCanceled
	}
	e.mu.Unlock()

	dst, ok := peer.(*endpoint)
	if !ok || dst != e.peer {
		return fmt.Errorf("loopback: send to unknown peer")
	}

	cp := append([]byte(nil), data...)

	dst.mu.Lock()
	if dst.cancelled {
		dst.mu.Unlock()
	} else if len(dst.pending) > 0 {
		pr := dst.pending[0]
		dst.pending = dst.pending[1:]
		dst.mu.Unlock()
		n := copy(pr.buf, cp)
		dst.cq.push(fabric.Completion{Len: n, Ctx: pr.ctx})
	} else {
		dst.inbox = append(dst.inbox, inboundMsg{data: cp})
		dst.mu.Unlock()
	}

	e.cq.push(fabric.Completion{Len: len(data), Ctx: ctx})
	return nil
}

func (e *endpoint) Recv(buf []byte, ctx any) error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return fabric.ErrCanceled
	}
	if len(e.inbox) > 0 {
		msg := e.inbox[0]
		e.inbox = e.inbox[1:]
		e.mu.Unlock()
		n := copy(buf, msg.data)
		e.cq.push(fabric.Completion{Len: n, Ctx: ctx})
		return nil
	}
	e.pending = append(e.pending, pendingRecv{buf: buf, ctx: ctx})
	e.mu.Unlock()
	return nil
}

func (e *endpoint) Write(peer fabric.PeerAddr, local [][]byte, remote []fabric.RemoteSeg, flags fabric.OpFlags, ctx any) error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return fabric.ErrCanceled
	}
	e.mu.Unlock()

	dst, ok := peer.(*endpoint)
	if !ok || dst != e.peer {
		return fmt.Errorf("loopback: write to unknown peer")
	}

	flat := make([]byte, 0)
	for _, l := range local {
		flat = append(flat, l...)
	}

	pos := 0
	for _, rs := range remote {
		reg, ok := dst.dom.lookup(rs.Key)
		if !ok {
			return fmt.Errorf("loopback: write: unknown remote key %d", rs.Key)
		}
		n := int(rs.Length)
		if pos+n > len(flat) {
			return fmt.Errorf("loopback: write: local data shorter than remote iov")
		}
		if err := reg.writeAt(rs.Offset, flat[pos:pos+n]); err != nil {
			return err
		}
		pos += n
	}

	e.cq.push(fabric.Completion{Flags: flags, Len: len(flat), Ctx: ctx})
	return nil
}

func (e *endpoint) Cancel() error {
	e.mu.Lock()
	e.cancelled = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, pr := range pending {
		e.cq.push(fabric.Completion{Ctx: pr.ctx, Err: fabric.ErrCanceled})
	}
	return nil
}

func (e *endpoint) Close() error { return nil }

func (e *endpoint) CQ() fabric.CompletionQueue { return &e.cq }
func (e *endpoint) Domain() fabric.Domain      { return e.dom }

// loopbackCQ is a simple mutex-protected completion slice; loopback has no
// real file descriptor to wait on, so WaitFD always reports unsupported and
// the worker falls back to its polling path.
type loopbackCQ struct {
	mu    sync.Mutex
	items []fabric.Completion
}

func (c *loopbackCQ) push(cmpl fabric.Completion) {
	c.mu.Lock()
	c.items = append(c.items, cmpl)
	c.mu.Unlock()
}

func (c *loopbackCQ) Poll(out []fabric.Completion) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(out, c.items)
	c.items = c.items[n:]
	return n, nil
}

func (c *loopbackCQ) WaitFD() (int, bool) { return -1, false }

func (c *loopbackCQ) TryWait() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}
