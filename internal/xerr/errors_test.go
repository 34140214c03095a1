package xerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeResourceExhaustion, "registration failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestAsFindsErrorThroughWrapping(t *testing.T) {
	inner := New(CodeProtocol, "malformed vector")
	outer := fmt.Errorf("context: %w", inner)

	var got *Error
	if !As(outer, &got) {
		t.Fatalf("expected As to find the wrapped *Error")
	}
	if got.Code != CodeProtocol {
		t.Fatalf("got code %v, want %v", got.Code, CodeProtocol)
	}
}

func TestAsFailsOnUnrelatedError(t *testing.T) {
	var got *Error
	if As(errors.New("plain"), &got) {
		t.Fatalf("expected As to fail on an unrelated error")
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(New(CodeTransient, "try again")) {
		t.Fatalf("expected transient error to be recognized")
	}
	if IsTransient(New(CodeProtocol, "bad")) {
		t.Fatalf("expected non-transient error to be rejected")
	}
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(New(CodeCanceled, "canceled")) {
		t.Fatalf("expected canceled error to be recognized")
	}
	if IsCanceled(New(CodeProtocol, "bad")) {
		t.Fatalf("expected non-canceled error to be rejected")
	}
}

func TestCodeStringCoversAllValues(t *testing.T) {
	codes := []Code{CodeConfiguration, CodeProtocol, CodeTransient, CodeCanceled, CodeResourceExhaustion, CodeTerminalMismatch}
	for _, c := range codes {
		if c.String() == "unknown" {
			t.Errorf("Code %d stringified as unknown", c)
		}
	}
}
