package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/metrics"
)

// Instrumentation is the outermost stage: it starts a span (here, a
// structured log scope with component/operation/message_id fields) and
// records the start time so every other stage and the terminal
// handler's duration is captured, without introducing a separate
// tracing library.
func Instrumentation(recorder metrics.Recorder, operation string, logger zerolog.Logger) Stage {
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			start := time.Now()
			log := logger.With().
				Str("component", pctx.Component).
				Str("operation", operation).
				Str("message_id", msg.MessageID().String()).
				Logger()
			log.Debug().Msg("pipeline.start")

			result := next(msg, pctx)

			duration := time.Since(start)
			success := result.Succeeded()
			recorder.Observe(operation, duration, success)
			if success {
				log.Debug().Dur("duration", duration).Bool("duplicate", result.Duplicate()).Msg("pipeline.complete")
			} else {
				log.Warn().Dur("duration", duration).Err(result.Err()).Msg("pipeline.failed")
			}
			return result
		}
	}
}
