// Package selftest drives N receiver/sender session pairs over the
// in-process loopback fabric, the -t mode both personality binaries fall
// back to since real fabric discovery/connect is out of scope (spec
// section 1). It performs the sender-initial/receiver-ack handshake that
// a real accept/dial path would perform before the connection state
// machines take over, then runs the shared worker pool to completion and
// verifies every sink's byte stream.
//
// Grounded on momentics-hioload-ws's examples/stest/server/main.go driver shape
// (build a fixed-size fleet, run it, report pass/fail) and on
// original_source/transfer/fget.c's main(), which performs the same
// initial/ack exchange at connection-setup time before handing the
// session to a worker.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package selftest

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/fxfer/internal/cxn"
	"github.com/momentics/fxfer/internal/fabric"
	"github.com/momentics/fxfer/internal/fabric/loopback"
	"github.com/momentics/fxfer/internal/session"
	"github.com/momentics/fxfer/internal/terminal"
	"github.com/momentics/fxfer/internal/wire"
	"github.com/momentics/fxfer/internal/workerpool"
)

// Options tunes one self-test run, one field per CLI flag of spec section
// 6 that applies to the loopback-driven -t mode.
type Options struct {
	Sessions         int
	Reregister       bool
	UseEpoll         bool
	ContiguousWrites bool // -g: cap rma_maxsegs to 1
	PinCPUs          []int
	PayloadSize      int
}

// Result is one session pair's outcome, reported for logging and for the
// overall pass/fail decision.
type Result struct {
	Index           int
	ReceiverBytes   int
	SenderBytes     int
	ReceiverOutcome session.Outcome
	SenderOutcome   session.Outcome
	BytesMatch      bool
}

// Run builds Sessions session pairs over independent loopback endpoint
// pairs, assigns both halves of each pair to a shared worker pool, and
// blocks until every session has reached a terminal outcome.
// cancelRequested is polled by every worker exactly as a live deployment's
// signal handler would drive it (spec section 5). It returns the per-pair
// results, whether any worker reported a failure (protocol error or sink
// mismatch), and whether any session actually drained via cancellation
// rather than a clean end — the caller combines the latter with the -c
// flag per spec section 6's exit-code truth table.
func Run(log zerolog.Logger, opts Options, cancelRequested func() bool) (results []Result, anyFailed, anyCanceled bool) {
	cfg := loopback.DefaultConfig()
	if opts.ContiguousWrites {
		cfg.MaxRmaSegs = 1
	}

	pool := workerpool.New(workerpool.Config{
		Reregister:  opts.Reregister,
		UseEpoll:    opts.UseEpoll,
		PayloadSize: opts.PayloadSize,
		PinCPUs:     opts.PinCPUs,
		Log:         log,
	}, cancelRequested)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	results = make([]Result, opts.Sessions)

	for i := 0; i < opts.Sessions; i++ {
		i := i
		epR, epS := loopback.Pair(cfg)

		nameR, _ := epR.GetName()
		nameS, _ := epS.GetName()
		peerForS, _ := epS.AddressVectorInsert(nameR)
		peerForR, _ := epR.AddressVectorInsert(nameS)

		// Drain the sender's upcoming initial message into a real posted
		// receive so it never sits unconsumed in the endpoint's inbox
		// (spec section 4.5's initial-send has no receiver-side mirror in
		// the connection core itself — only accept-time setup reads it).
		initialBuf := make([]byte, wire.InitialWireSize)
		_ = epR.Recv(initialBuf, &initialBuf)

		var initMsg wire.Initial
		initMsg.NSources = uint32(opts.Sessions)
		initMsg.ID = uint32(i)
		initMsg.AddrLen = uint32(len(nameS))
		copy(initMsg.Addr[:], nameS)
		initialRaw := make([]byte, wire.InitialWireSize)
		_ = wire.EncodeInitial(initialRaw, &initMsg)

		var ackMsg wire.Ack
		ackMsg.AddrLen = uint32(len(nameR))
		copy(ackMsg.Addr[:], nameR)
		ackRaw := make([]byte, wire.AckWireSize)
		_ = wire.EncodeAck(ackRaw, &ackMsg)

		sourcePattern := terminal.NewSelfCheckSource()
		sink := terminal.NewSelfCheckSink()

		wg.Add(2)

		recordDone := func(idx int, isReceiver bool) func(session.Outcome) {
			return func(o session.Outcome) {
				mu.Lock()
				if isReceiver {
					results[idx].ReceiverOutcome = o
					results[idx].ReceiverBytes = sink.Idx()
					results[idx].BytesMatch = sink.Idx() == len(terminal.SelfCheckPattern)*terminal.SelfCheckRepeats
				} else {
					results[idx].SenderOutcome = o
					results[idx].SenderBytes = sourcePattern.Idx()
				}
				results[idx].Index = idx
				mu.Unlock()
				wg.Done()
			}
		}

		if err := pool.Assign(epS.Domain(), func(h cxn.Host) *session.Session {
			snd := cxn.NewSender(epS, peerForS, initialRaw, make([]byte, wire.AckWireSize), fabric.AccessSend)
			sess := session.New(snd, sourcePattern, 64)
			sess.Done = recordDone(i, false)
			return sess
		}); err != nil {
			log.Error().Err(err).Int("session", i).Msg("assign sender failed")
			wg.Done()
		}

		if err := pool.Assign(epR.Domain(), func(h cxn.Host) *session.Session {
			rcv := cxn.NewReceiver(epR, peerForR, ackRaw, fabric.AccessRemoteWrite|fabric.AccessRecv, h.Keys())
			sess := session.New(rcv, sink, 64)
			sess.Done = recordDone(i, true)
			return sess
		}); err != nil {
			log.Error().Err(err).Int("session", i).Msg("assign receiver failed")
			wg.Done()
		}
	}

	wg.Wait()

	// Give the pool a moment to settle both halves of the last pair onto
	// the idle path before tearing it down, mirroring the original's
	// pool_shutdown waiting for every worker to report idle.
	time.Sleep(time.Millisecond)
	pool.Shutdown()

	anyFailed = pool.Failed()
	for _, r := range results {
		for _, o := range [...]session.Outcome{r.ReceiverOutcome, r.SenderOutcome} {
			switch o {
			case session.OutcomeCanceled:
				anyCanceled = true
			case session.OutcomeEnd:
				// handled below via BytesMatch for the receiver side.
			default:
				anyFailed = true
			}
		}
		if r.ReceiverOutcome == session.OutcomeEnd && !r.BytesMatch {
			anyFailed = true
		}
	}
	return results, anyFailed, anyCanceled
}
