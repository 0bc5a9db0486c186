package pipeline

import (
	"context"
	"time"

	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
)

// Timeout imposes a per-message budget by deriving a linked,
// deadline-bound context.Context from pctx's carried context. On
// expiry it raises herrors.ErrTimeout; a genuine upstream cancellation is
// propagated untouched.
func Timeout(d time.Duration) Stage {
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			if d <= 0 {
				return next(msg, pctx)
			}
			ctx, cancel := context.WithTimeout(pctx.Context(), d)
			defer cancel()
			inner := pctx.WithContext(ctx)

			resultCh := make(chan message.Result, 1)
			go func() { resultCh <- next(msg, inner) }()

			select {
			case result := <-resultCh:
				return result
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					return message.Failure(herrors.Wrap(herrors.CodeTimeout, "processing timed out", ctx.Err()), msg)
				}
				return message.Failure(ctx.Err(), msg)
			}
		}
	}
}
