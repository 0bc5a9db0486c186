package transport

import "github.com/heromessaging/messaging/pkg/message"

// Header keys the trace context travels under. Outbound, the publisher
// injects the envelope's correlation/causation ids; inbound, the
// consumer extracts them so a handler's own messages re-parent onto the
// same correlation chain.
const (
	HeaderCorrelationID = "x-correlation-id"
	HeaderCausationID   = "x-causation-id"
)

// InjectTrace copies env's correlation and causation ids into headers,
// skipping empty values. headers must be non-nil.
func InjectTrace(headers map[string]any, env message.Envelope) {
	if env.CorrelationID != "" {
		headers[HeaderCorrelationID] = env.CorrelationID
	}
	if env.CausationID != "" {
		headers[HeaderCausationID] = env.CausationID
	}
}

// ExtractTrace reads the trace context out of an inbound delivery's
// headers; missing keys come back empty.
func ExtractTrace(headers map[string]any) (correlationID, causationID string) {
	if v, ok := headers[HeaderCorrelationID].(string); ok {
		correlationID = v
	}
	if v, ok := headers[HeaderCausationID].(string); ok {
		causationID = v
	}
	return correlationID, causationID
}
