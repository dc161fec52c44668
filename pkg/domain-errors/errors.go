// Package domainerrors provides typed, code-carrying errors shared by all
// services. Codes map the settlement error taxonomy: validation failures are
// rejected before any network call, not-found is a normal negative result,
// transient upstream failures are retryable, and invariant violations are
// fatal and non-retryable.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// CodeValidation marks malformed input or configuration rejected before
	// any network call (bad address, non-positive amount, unsupported asset).
	CodeValidation Code = "validation"
	// CodeNotFound is a normal negative result, never a failure.
	CodeNotFound Code = "not_found"
	// CodeTransient marks an upstream failure the caller may retry (RPC
	// timeout, unreachable ledger, disabled subsystem).
	CodeTransient Code = "transient_upstream"
	// CodeConflict marks an attempt to create state that already exists.
	CodeConflict Code = "conflict"
	// CodeInvariant marks a fatal, non-retryable invariant violation such as
	// a double release. Must be reported verbatim to the operator.
	CodeInvariant Code = "invariant_violation"
	CodeInternal  Code = "internal"
)

// Error is the concrete error type carrying a code and message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the failure is safe to retry from the caller's
// side. Only transient upstream failures qualify.
func Retryable(err error) bool {
	return HasCode(err, CodeTransient)
}

// ToHTTPStatus maps a code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvariant:
		return http.StatusConflict
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
