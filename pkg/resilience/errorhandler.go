package resilience

import (
	"time"

	"github.com/heromessaging/messaging/pkg/herrors"
)

// ActionKind is the error handler's verdict at the pipeline boundary:
// Retry, SendToDeadLetter, Discard, or Escalate.
type ActionKind int

const (
	ActionRetry ActionKind = iota
	ActionSendToDeadLetter
	ActionDiscard
	ActionEscalate
)

// Action is returned by an ErrorHandler: a kind plus the parameters that
// kind needs (Delay for Retry, Reason for SendToDeadLetter).
type Action struct {
	Kind   ActionKind
	Delay  time.Duration
	Reason string
}

// ErrorHandler classifies a failure into one of the four actions, given
// the current retry count/budget. It is a function type so callers may
// override the default policy.
type ErrorHandler func(err error, retryCount, maxRetries int) Action

// DefaultErrorHandler is the default policy: transient errors
// retry while budget remains; non-transient errors or exhausted budget
// route to the dead-letter queue; catastrophic errors escalate
// (rethrow); cancellations are neither retried nor dead-lettered.
func DefaultErrorHandler(err error, retryCount, maxRetries int) Action {
	if herrors.IsCancellation(err) {
		return Action{Kind: ActionEscalate, Reason: "cancelled"}
	}
	if herrors.IsCatastrophic(err) {
		return Action{Kind: ActionEscalate, Reason: "catastrophic failure"}
	}
	if herrors.CodeOf(err) == herrors.CodeCircuitOpen {
		return Action{Kind: ActionSendToDeadLetter, Reason: "circuit open"}
	}
	if herrors.IsTransient(err) && retryCount < maxRetries {
		return Action{Kind: ActionRetry}
	}
	if herrors.IsTransient(err) {
		return Action{Kind: ActionSendToDeadLetter, Reason: "max retries exceeded"}
	}
	return Action{Kind: ActionSendToDeadLetter, Reason: "unhandled error: " + err.Error()}
}
