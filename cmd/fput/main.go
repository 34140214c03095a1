// Command fput is the sender/connector personality: it dials sessions and
// drives each through a Sender connection state machine, producing the
// fixed self-check pattern as its payload stream.
//
// Real fabric discovery and dial/connect are out of scope for this port
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
	expectCancel := flag.Bool("c", false, "expect cancellation")
	contiguous := flag.Bool("g", false, "contiguous-writes mode: cap rma_maxsegs to 1")
	sessions := flag.Int("n", 1, "number of parallel sessions")
	cpuRange := flag.String("p", "", "CPU range for worker affinity, \"i - j\"")
	reregister := flag.Bool("r", false, "re-register payload buffers per write")
	useEpoll := flag.Bool("w", false, "accepted but has no effect: workers always poll their sessions")
	selfTest := flag.Bool("t", false, "run the built-in self-check over the loopback fabric")
	flag.Parse()

	dest := flag.Arg(0)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("personality", "fput").Logger()

	if !*selfTest {
		log.Error().Str("dest", dest).Msg("real fabric listen/connect is out of scope for this build; rerun with -t")
		return 1
	}

	if _, err := cliutil.ParseCPURange(*cpuRange); err != nil {
		log.Error().Err(err).Msg("invalid -p")
		return 1
	}
	// -p is accepted for CLI compatibility but only the listener (fget)
	// personality actually pins worker threads to it.

	cancel := cliutil.WatchSignals()

	results, failed, canceled := selftest.Run(log, selftest.Options{
		Sessions:         *sessions,
		Reregister:       *reregister,
		UseEpoll:         *useEpoll,
		ContiguousWrites: *contiguous,
		PayloadSize:      4096,
	}, cancel.Requested)

	for _, r := range results {
		log.Info().
			Int("session", r.Index).
			Str("sender_outcome", r.SenderOutcome.String()).
			Int("bytes_sent", r.SenderBytes).
			Msg("session complete")
	}

	code := cliutil.ExitCode(failed, *expectCancel, canceled)
	fmt.Fprintf(os.Stderr, "fput: sessions=%d failed=%v canceled=%v exit=%d\n", *sessions, failed, canceled, code)
	return code
}
