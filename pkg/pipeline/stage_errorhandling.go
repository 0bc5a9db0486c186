package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/resilience"
)

// ErrorHandling classifies any failure surviving the retry stage and
// decides among retry, dead-letter, discard, and escalate. By the time
// a failure reaches here, the
// retry stage has already exhausted (or skipped, for non-transient
// errors) its budget, so an ActionRetry verdict means "try once more
// immediately" rather than re-entering the backoff loop.
func ErrorHandling(handler resilience.ErrorHandler, dlq deadletter.Queue, component string, logger zerolog.Logger) Stage {
	if handler == nil {
		handler = resilience.DefaultErrorHandler
	}
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			result := next(msg, pctx)
			if result.Succeeded() {
				return result
			}

			action := handler(result.Err(), pctx.RetryCount, pctx.MaxRetries)
			switch action.Kind {
			case resilience.ActionRetry:
				return next(msg, pctx.WithRetry(pctx.LastFailureAt))
			case resilience.ActionDiscard:
				logger.Info().Str("component", component).Msg("pipeline.discard")
				return message.Success(nil, msg)
			case resilience.ActionEscalate:
				return result
			case resilience.ActionSendToDeadLetter:
				fallthrough
			default:
				if dlq != nil {
					_, err := dlq.Send(pctx.Context(), msg, deadletter.FailureContext{
						Reason:     action.Reason,
						InnerError: result.Err(),
						Component:  component,
						RetryCount: pctx.RetryCount,
						FailedAt:   pctx.LastFailureAt,
						Metadata:   pctx.Metadata,
					})
					if err != nil {
						logger.Error().Err(err).Msg("pipeline.dlq_send_failed")
					}
				}
				return message.Failure(herrors.Wrap(herrors.CodeOf(result.Err()), action.Reason, result.Err()), msg)
			}
		}
	}
}
