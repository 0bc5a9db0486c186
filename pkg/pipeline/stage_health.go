package pipeline

import (
	"time"

	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/resilience"
)

// HealthRecording feeds every outcome of operation into monitor: the
// breaker decides whether to call next, this stage decides whether the
// system looks healthy.
func HealthRecording(monitor *resilience.HealthMonitor, operation string) Stage {
	if monitor == nil {
		return func(next Next) Next { return next }
	}
	return func(next Next) Next {
		return func(msg message.Message, pctx message.ProcessingContext) message.Result {
			start := time.Now()
			result := next(msg, pctx)
			reason := ""
			if result.Failed() {
				reason = result.Err().Error()
			}
			monitor.Record(operation, time.Since(start), result.Succeeded(), reason)
			return result
		}
	}
}
