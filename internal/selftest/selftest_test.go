package selftest

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestRunSingleSessionCleanTransfer(t *testing.T) {
	results, anyFailed, anyCanceled := Run(zerolog.Nop(), Options{
		Sessions:    1,
		PayloadSize: 16384,
	}, func() bool { return false })

	if anyFailed {
		t.Fatalf("run reported a failure")
	}
	if anyCanceled {
		t.Fatalf("run reported a cancellation with no cancel requested")
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !results[0].BytesMatch {
		t.Fatalf("receiver sink did not verify against the source pattern")
	}
}

func TestRunMultipleSessionsShareAWorker(t *testing.T) {
	const n = 3
	results, anyFailed, anyCanceled := Run(zerolog.Nop(), Options{
		Sessions:    n,
		PayloadSize: 16384,
	}, func() bool { return false })

	if anyFailed || anyCanceled {
		t.Fatalf("unexpected outcome: failed=%v canceled=%v", anyFailed, anyCanceled)
	}
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	for i, r := range results {
		if !r.BytesMatch {
			t.Errorf("session %d: sink did not verify", i)
		}
	}
}

func TestRunContiguousWritesMode(t *testing.T) {
	results, anyFailed, _ := Run(zerolog.Nop(), Options{
		Sessions:         1,
		ContiguousWrites: true,
		PayloadSize:      16384,
	}, func() bool { return false })

	if anyFailed {
		t.Fatalf("run reported a failure under -g mode")
	}
	if !results[0].BytesMatch {
		t.Fatalf("receiver sink did not verify under -g mode")
	}
}

func TestRunCancellationReportsCanceled(t *testing.T) {
	_, _, anyCanceled := Run(zerolog.Nop(), Options{
		Sessions:    1,
		PayloadSize: 16384,
	}, func() bool { return true })

	if !anyCanceled {
		t.Fatalf("expected the immediately-requested cancellation to surface")
	}
}
