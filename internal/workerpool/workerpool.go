// Package workerpool implements the global worker registry and session
// assignment policy (spec section 4.9): an MRU-biased scan over running
// workers, lazy worker creation up to a hard cap, and coordinated shutdown.
//
// Grounded on original_source/transfer/fget.c's global_state worker table
// and pool_assign/pool_shutdown routines.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package workerpool

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/fxfer/internal/cxn"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/session"
	"github.com/momentics/fxfer/internal/worker"
	"github.com/momentics/fxfer/internal/xerr"
)

// MaxWorkers is the hard cap on lazily-created workers (spec section 5:
// "parallel OS threads (up to 128)").
const MaxWorkers = 128

// Config tunes the pool's worker construction and affinity policy.
type Config struct {
	Reregister  bool
	UseEpoll    bool
	PayloadSize int
	// PinCPUs, when non-empty, restricts worker thread creation to a
	// round-robin cycle over this CPU list (spec section 6's -p flag,
	// "listener only pins threads" — the fget/get personality).
	PinCPUs []int
	Log     zerolog.Logger
}

// Pool is the process-wide worker registry.
type Pool struct {
	mu        sync.Mutex
	workers   []*worker.Worker
	suspended bool
	nextCPU   int

	cfg    Config
	cancel func() bool
	wg     sync.WaitGroup
}

// New builds an empty Pool. cancelRequested is polled by every worker at
// the top of each loop pass (spec section 5's cooperative cancellation).
func New(cfg Config, cancelRequested func() bool) *Pool {
	return &Pool{cfg: cfg, cancel: cancelRequested}
}

// Assign installs a newly accepted/dialed connection's session onto the
// most-recently-started worker that has room, lazily spawning a new worker
// if every running one is full or contended (spec section 4.9).
func (p *Pool) Assign(dom fabric.Domain, build func(h cxn.Host) *session.Session) error {
	p.mu.Lock()
	if p.suspended {
		p.mu.Unlock()
		return xerr.New(xerr.CodeConfiguration, "workerpool: assignment suspended for shutdown")
	}

	for i := len(p.workers) - 1; i >= 0; i-- {
		w := p.workers[i]
		if !w.HasRoom() {
			continue
		}
		if w.TryAssign(dom, build) {
			p.mu.Unlock()
			return nil
		}
	}

	if len(p.workers) >= MaxWorkers {
		p.mu.Unlock()
		return xerr.New(xerr.CodeResourceExhaustion, "workerpool: at capacity")
	}

	cpu := -1
	if len(p.cfg.PinCPUs) > 0 {
		cpu = p.cfg.PinCPUs[p.nextCPU%len(p.cfg.PinCPUs)]
		p.nextCPU++
	}
	w := worker.New(len(p.workers), p.cfg.Reregister, p.cfg.UseEpoll, p.cfg.PayloadSize, cpu, p.cfg.Log)
	p.workers = append(p.workers, w)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.Run(p.cancel)
	}()
	p.mu.Unlock()

	if !w.TryAssign(dom, build) {
		return xerr.New(xerr.CodeResourceExhaustion, "workerpool: newly allocated worker rejected assignment")
	}
	return nil
}

// Failed reports whether any worker's session ended in error.
func (p *Pool) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		if w.Failed() {
			return true
		}
	}
	return false
}

// Shutdown suspends new assignments, waits for every worker to report no
// live sessions, then tells each to stop its outer loop and joins them all
// (spec section 4.9).
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.suspended = true
	workers := append([]*worker.Worker(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		for !w.Idle() {
			time.Sleep(time.Millisecond)
		}
	}
	for _, w := range workers {
		w.RequestShutdown()
	}
	p.wg.Wait()
}
