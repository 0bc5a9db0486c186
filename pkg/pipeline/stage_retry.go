package pipeline

import (
	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/resilience"
)

// Retry retries the inner stage on transient
// failures with exponential backoff + jitter, bounded by
// pctx.MaxRetries. Each attempt advances pctx's retry bookkeeping
// (RetryCount, failure timestamps) via WithRetry so downstream stages
// (error handling, DLQ) see the final exhausted state. The loop itself
// is resilience.RetryPolicy.Do's avast/retry-go/v4 executor; this stage
// only supplies the per-attempt ProcessingContext advance and the
// budget's extra stop condition.
func Retry(policy resilience.RetryPolicy) Stage {
	c := policy.Clock
	if c == nil {
		c = clock.New()
	}
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			cur := pctx
			var last message.Result
			_ = policy.Do(pctx.Context(), func() error {
				last = next(msg, cur)
				if last.Succeeded() {
					return nil
				}
				return last.Err()
			},
				resilience.OnRetry(func(uint) {
					cur = cur.WithRetry(c.Now())
				}),
				resilience.StopIf(func() bool {
					return cur.ExhaustedRetries()
				}),
			)
			return last
		}
	}
}
