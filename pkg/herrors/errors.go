// Package herrors implements the error taxonomy the pipeline boundary
// classifies failures into: a code-carrying error type plus the
// transient/catastrophic/cancellation predicates built on it.
package herrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for pipeline routing decisions.
type Code string

const (
	CodeTransient    Code = "transient"
	CodePermanent    Code = "permanent"
	CodeDuplicate    Code = "duplicate"
	CodeCircuitOpen  Code = "circuit_open"
	CodeCatastrophic Code = "catastrophic"
	CodeCancellation Code = "cancellation"
	CodeInvalid      Code = "invalid_message"
	CodeNoHandler    Code = "no_handler"
	CodeAmbiguous    Code = "ambiguous_handler"
	CodeTimeout      Code = "timeout"
	CodeNotFound     Code = "not_found"
)

// AppError is the taxonomy carrier: a code, a human message, an optional
// wrapped cause, and a metadata bag for component/retry-count context.
type AppError struct {
	Code    Code
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New constructs an AppError of the given code.
func New(code Code, msg string) error {
	return &AppError{Code: code, Message: msg}
}

// Wrap constructs an AppError of the given code wrapping cause.
func Wrap(code Code, msg string, cause error) error {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// WithMeta attaches metadata, returning a new AppError (errors are
// otherwise treated as immutable once constructed).
func WithMeta(err error, meta map[string]string) error {
	var ae *AppError
	if errors.As(err, &ae) {
		clone := *ae
		clone.Meta = meta
		return &clone
	}
	return &AppError{Code: CodePermanent, Message: err.Error(), Cause: err, Meta: meta}
}

// CodeOf extracts the Code from err, defaulting to CodePermanent when err
// is not an *AppError.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodePermanent
}

var (
	ErrNoHandler        = New(CodeNoHandler, "no handler registered")
	ErrAmbiguousHandler = New(CodeAmbiguous, "multiple handlers registered")
	ErrInvalidMessage   = New(CodeInvalid, "message failed validation")
	ErrCircuitOpen      = New(CodeCircuitOpen, "circuit breaker open")
	ErrPoolExhausted    = New(CodePermanent, "connection pool exhausted")
	ErrTimeout          = New(CodeTimeout, "operation timed out")
	ErrNotFound         = New(CodeNotFound, "not found")
)
