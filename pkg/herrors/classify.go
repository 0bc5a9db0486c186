package herrors

import (
	"context"
	"errors"
	"strings"
)

// TransientDBCodes is the known set of transient database error codes
// (connection reset, server busy, database unavailable) consulted by
// IsTransient when err wraps a coded database error. Implementations of
// Coder report codes from this set for errors that should be retried.
var TransientDBCodes = map[string]bool{
	"connection_reset":     true,
	"connection_exception": true,
	"server_busy":          true,
	"database_unavailable": true,
	"too_many_connections": true,
}

// Coder is implemented by wrapped database errors that can report a
// stable error code (e.g. a driver-specific SQLSTATE mapping).
type Coder interface {
	ErrorCode() string
}

// IsCancellation reports whether err represents a context cancellation.
// Cancellations are never transient and must never be recorded as a
// circuit-breaker/retry failure. An *AppError's explicit Code wins over
// its wrapped Cause: a timeout the pipeline coded CodeTimeout carries
// context.DeadlineExceeded underneath, and walking the Unwrap chain
// first would misread every such timeout as a cancellation.
func IsCancellation(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == CodeCancellation
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether err may succeed on retry: a timeout, a
// wrapped database error whose code is in the known transient set, a
// message containing "timeout"/"connection" (case-insensitive — a
// fragile last resort kept for errors that never got a structured
// code), or an inner error that is itself transient. Cancellations are
// never transient regardless of the above.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// The explicit Code is checked before the cancellation probe so a
	// coded timeout wrapping context.DeadlineExceeded stays retryable.
	var ae *AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case CodeTransient, CodeTimeout, CodeCircuitOpen:
			return true
		case CodeCancellation:
			return false
		}
	}
	if IsCancellation(err) {
		return false
	}

	var coded Coder
	if errors.As(err, &coded) && TransientDBCodes[coded.ErrorCode()] {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") {
		return true
	}

	if inner := errors.Unwrap(err); inner != nil && inner != err {
		return IsTransient(inner)
	}
	return false
}

// IsCatastrophic reports whether err represents a condition the pipeline
// must escalate (rethrow) rather than retry or dead-letter.
func IsCatastrophic(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == CodeCatastrophic
	}
	return false
}
