package pipeline

import (
	"context"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/resilience"
)

// CircuitBreaker sheds load under sustained failure: if the named operation's
// breaker is open, short-circuits to Failure(CircuitOpen) without
// invoking next; otherwise it records the inner outcome against the
// breaker (success closes/resets, failure counts toward tripping).
func CircuitBreaker(mgr *resilience.BreakerManager, operation string) Stage {
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			var inner message.Result
			err := mgr.Execute(pctx.Context(), operation, func(ctx context.Context) error {
				inner = next(msg, pctx.WithContext(ctx))
				return inner.Err()
			})
			if herrors.CodeOf(err) == herrors.CodeCircuitOpen {
				return message.Failure(err, msg)
			}
			return inner
		}
	}
}
