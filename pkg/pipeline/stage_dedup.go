package pipeline

import (
	"github.com/heromessaging/messaging/pkg/message"
)

// DuplicateChecker is consulted by the Deduplication stage; the inbox
// processor supplies an implementation backed by its storage's
// IsDuplicate lookup.
type DuplicateChecker interface {
	IsDuplicate(msg message.Message, pctx message.ProcessingContext) (bool, error)
}

// DuplicateCheckerFunc adapts a plain function to DuplicateChecker.
type DuplicateCheckerFunc func(msg message.Message, pctx message.ProcessingContext) (bool, error)

func (f DuplicateCheckerFunc) IsDuplicate(msg message.Message, pctx message.ProcessingContext) (bool, error) {
	return f(msg, pctx)
}

// Deduplication is active only in inbox mode: it
// consults checker and, on a duplicate, short-circuits to
// Success(duplicate=true) without invoking any inner stage. A checker
// error is treated as "not a duplicate" (fail open) so a storage hiccup
// degrades to at-least-once delivery rather than silently dropping
// messages.
func Deduplication(checker DuplicateChecker) Stage {
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			dup, err := checker.IsDuplicate(msg, pctx)
			if err == nil && dup {
				return message.SuccessDuplicate(msg)
			}
			return next(msg, pctx)
		}
	}
}
