// Package pipeline implements the processing decorator chain: an
// ordered list of middleware stages wrapping a terminal handler, built
// once per processor and reused for every message. One composed
// pipeline object replaces hand-wiring retry, breaker, and logging
// middleware separately at every call site.
package pipeline

import (
	"github.com/heromessaging/messaging/pkg/message"
)

// Next is the signature every stage wraps: given a message and its
// processing context, produce a Result. The innermost Next is the
// terminal handler invocation; every other Next is the next stage
// outward.
type Next func(msg message.Message, pctx message.ProcessingContext) message.Result

// Stage wraps a Next into a new Next, observing or altering control flow
// around it (short-circuiting, retrying, timing out, recording metrics).
type Stage func(next Next) Next

// Pipeline is an ordered, pre-composed chain of stages around a
// terminal handler, built once and reused for every message.
type Pipeline struct {
	entry Next
}

// New composes stages outermost-first around terminal: stages[0] is
// invoked first (outermost), terminal is invoked last (innermost).
func New(terminal Next, stages ...Stage) *Pipeline {
	entry := terminal
	for i := len(stages) - 1; i >= 0; i-- {
		entry = stages[i](entry)
	}
	return &Pipeline{entry: entry}
}

// Process runs msg through the full composed chain.
func (p *Pipeline) Process(msg message.Message, pctx message.ProcessingContext) message.Result {
	return p.entry(msg, pctx)
}

// TerminalHandler adapts a plain handler function (the shape user code
// registers with the dispatcher) into the innermost Next.
type TerminalHandler func(msg message.Message, pctx message.ProcessingContext) (any, error)

// Terminal wraps a TerminalHandler into a Next that converts its
// (payload, error) return into a Result.
func Terminal(h TerminalHandler) Next {
	return func(msg message.Message, pctx message.ProcessingContext) message.Result {
		payload, err := h(msg, pctx)
		if err != nil {
			return message.Failure(err, msg)
		}
		return message.Success(payload, msg)
	}
}
