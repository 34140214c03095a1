package cliutil

import (
	"reflect"
	"testing"
)

func TestParseCPURangeEmpty(t *testing.T) {
	got, err := ParseCPURange("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestParseCPURangeBasic(t *testing.T) {
	got, err := ParseCPURange("2-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{2, 3, 4, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCPURangeWithSpaces(t *testing.T) {
	got, err := ParseCPURange(" 2 - 5 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{2, 3, 4, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCPURangeReversedBounds(t *testing.T) {
	got, err := ParseCPURange("5-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{2, 3, 4, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseCPURangeSingleCPU(t *testing.T) {
	got, err := ParseCPURange("3-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("got %v, want [3]", got)
	}
}

func TestParseCPURangeMalformed(t *testing.T) {
	cases := []string{"abc", "1", "1-", "-1-2", "1-2-3", "x-3"}
	for _, c := range cases {
		if _, err := ParseCPURange(c); err == nil {
			t.Errorf("ParseCPURange(%q): expected error", c)
		}
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		failed, expectCancel, observedCancel bool
		want                                 int
	}{
		{false, false, false, 0},
		{false, true, true, 0},
		{false, true, false, 1},
		{false, false, true, 1},
		{true, false, false, 1},
		{true, true, true, 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.failed, c.expectCancel, c.observedCancel); got != c.want {
			t.Errorf("ExitCode(%v, %v, %v) = %d, want %d", c.failed, c.expectCancel, c.observedCancel, got, c.want)
		}
	}
}

func TestCancelFlagDefaultsFalse(t *testing.T) {
	var c CancelFlag
	if c.Requested() {
		t.Fatalf("expected fresh CancelFlag to report not-requested")
	}
}
