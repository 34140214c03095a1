// Package xerr defines the error taxonomy for the connection core (spec
// section 7): configuration, protocol, transient, canceled, resource
// exhaustion, and terminal-mismatch errors.
//
// Adapted from momentics-hioload-ws's api/errors.go Error/ErrorCode pair.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package xerr

import "fmt"

// Code classifies an error for the purposes of deciding whether it is
// transient (absorbed, no exit) or fatal (propagates to loop_error / exit).
type Code int

const (
	// CodeConfiguration covers invalid CLI input, an unsupported provider
	// capability, or a version mismatch detected at startup.
	CodeConfiguration Code = iota
	// CodeProtocol covers malformed messages, wrong completion flags, or
	// mismatched completion contexts: always fatal.
	CodeProtocol
	// CodeTransient covers provider back-pressure (try-again): never
	// surfaced as an error, retried next loop.
	CodeTransient
	// CodeCanceled covers expected post-cancel completions.
	CodeCanceled
	// CodeResourceExhaustion covers registration failures and similar.
	CodeResourceExhaustion
	// CodeTerminalMismatch covers a sink verification failure.
	CodeTerminalMismatch
)

func (c Code) String() string {
	switch c {
	case CodeConfiguration:
		return "configuration"
	case CodeProtocol:
		return "protocol"
	case CodeTransient:
		return "transient"
	case CodeCanceled:
		return "canceled"
	case CodeResourceExhaustion:
		return "resource-exhaustion"
	case CodeTerminalMismatch:
		return "terminal-mismatch"
	default:
		return "unknown"
	}
}

// Error is a structured error carrying a Code and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsTransient reports whether err represents back-pressure that the caller
// should silently retry next loop.
func IsTransient(err error) bool {
	var e *Error
	return As(err, &e) && e.Code == CodeTransient
}

// IsCanceled reports whether err is the expected completion error after an
// explicit cancel.
func IsCanceled(err error) bool {
	var e *Error
	return As(err, &e) && e.Code == CodeCanceled
}

// As is a thin re-export of errors.As specialized for *Error, kept local so
// call sites don't need to import both "errors" and this package.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
