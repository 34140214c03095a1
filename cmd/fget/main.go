// Command fget is the receiver/listener personality: it accepts sessions
// and drives each through a Receiver connection state machine, verifying
// the incoming byte stream against the fixed self-check pattern.
//
// Real fabric discovery and listen/accept are out of scope for this port
// (the connection core only consumes an already-open fabric.Endpoint);
// without a live libfabric/verbs binding, -t drives the same state
// machines end to end over the in-process loopback fabric instead.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/momentics/fxfer/internal/cliutil"
	"github.com/momentics/fxfer/internal/selftest"
)

func main() {
	os.Exit(run())
}

func run() int {
	bindAddr := flag.String("b", "", "local bind address")
	expectCancel := flag.Bool("c", false, "expect cancellation")
	sessions := flag.Int("n", 1, "number of parallel sessions")
	cpuRange := flag.String("p", "", "CPU range for worker affinity, \"i - j\"")
	reregister := flag.Bool("r", false, "re-register payload buffers per write")
	useEpoll := flag.Bool("w", false, "accepted but has no effect: workers always poll their sessions")
	selfTest := flag.Bool("t", false, "run the built-in self-check over the loopback fabric")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("personality", "fget").Logger()

	if !*selfTest {
		log.Error().Str("bind", *bindAddr).Msg("real fabric listen/connect is out of scope for this build; rerun with -t")
		return 1
	}

	pinCPUs, err := cliutil.ParseCPURange(*cpuRange)
	if err != nil {
		log.Error().Err(err).Msg("invalid -p")
		return 1
	}

	cancel := cliutil.WatchSignals()

	results, failed, canceled := selftest.Run(log, selftest.Options{
		Sessions:    *sessions,
		Reregister:  *reregister,
		UseEpoll:    *useEpoll,
		PinCPUs:     pinCPUs,
		PayloadSize: 4096,
	}, cancel.Requested)

	for _, r := range results {
		log.Info().
			Int("session", r.Index).
			Str("receiver_outcome", r.ReceiverOutcome.String()).
			Int("bytes_verified", r.ReceiverBytes).
			Bool("bytes_match", r.BytesMatch).
			Msg("session complete")
	}

	code := cliutil.ExitCode(failed, *expectCancel, canceled)
	fmt.Fprintf(os.Stderr, "fget: sessions=%d failed=%v canceled=%v exit=%d\n", *sessions, failed, canceled, code)
	return code
}
