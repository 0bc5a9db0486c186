// Package inbox implements exactly-once intake: dedup check, mark
// pending, dispatch through the pipeline, mark the outcome.
package inbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/heromessaging/messaging/pkg/message"
	"github.com/heromessaging/messaging/pkg/metrics"
	"github.com/heromessaging/messaging/pkg/pipeline"
	"github.com/heromessaging/messaging/pkg/storage"
)

// Options configures dedup window and metrics recording.
type Options struct {
	Window  time.Duration
	Metrics metrics.Recorder

	// Stages wrap the dispatch call outward of the mandatory
	// Deduplication stage — e.g. Instrumentation or a shared
	// CircuitBreaker. Deduplication always runs innermost of these,
	// immediately around the dispatch terminal.
	Stages []pipeline.Stage
}

// DefaultOptions is a 24-hour dedup window.
func DefaultOptions() Options {
	return Options{Window: 24 * time.Hour}
}

// Dispatch is the seam that actually processes a deduplicated message;
// the dispatcher's Dispatch method satisfies this directly for commands.
type Dispatch func(ctx context.Context, msg message.Message) message.Result

// Processor runs ProcessIncoming as a pipeline.Pipeline, so the
// Deduplication stage is the thing that actually decides
// duplicate-or-fresh rather than that check being inlined as a direct
// storage call.
type Processor struct {
	store  storage.InboxStorage
	opts   Options
	stages []pipeline.Stage

	processed  atomic.Uint64
	duplicates atomic.Uint64
	failed     atomic.Uint64
}

// Metrics is the processor's counter snapshot.
type Metrics struct {
	Processed         uint64
	Duplicates        uint64
	Failed            uint64
	DeduplicationRate float64
}

// New builds a Processor over store.
func New(store storage.InboxStorage, opts Options) *Processor {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	p := &Processor{store: store, opts: opts}

	checker := pipeline.DuplicateCheckerFunc(func(msg message.Message, pctx message.ProcessingContext) (bool, error) {
		fresh, err := store.TryInsertPending(pctx.Context(), msg.MessageID(), opts.Window)
		if err != nil {
			return false, err
		}
		if !fresh {
			p.duplicates.Add(1)
			opts.Metrics.Count("inbox.dedup", "duplicate")
			return true, nil
		}
		opts.Metrics.Count("inbox.dedup", "fresh")
		return false, nil
	})

	p.stages = append(append([]pipeline.Stage{}, opts.Stages...), pipeline.Deduplication(checker))
	return p
}

// ProcessIncoming runs msg through the pipeline: the Deduplication stage
// short-circuits to a SuccessDuplicate Result for a message already seen
// within the window; otherwise dispatch runs and the outcome is recorded
// against the inbox store.
func (p *Processor) ProcessIncoming(ctx context.Context, msg message.Message, dispatch Dispatch) message.Result {
	terminal := func(msg message.Message, pctx message.ProcessingContext) message.Result {
		result := dispatch(pctx.Context(), msg)
		if result.Succeeded() {
			p.processed.Add(1)
			_ = p.store.MarkProcessed(pctx.Context(), msg.MessageID())
		} else {
			p.failed.Add(1)
			_ = p.store.MarkFailed(pctx.Context(), msg.MessageID())
		}
		return result
	}
	pline := pipeline.New(terminal, p.stages...)
	pctx := message.NewContext(ctx, "inbox", 0)
	return pline.Process(msg, pctx)
}

// Metrics snapshots the processor's counters. The deduplication rate is
// duplicates / (processed + duplicates), zero before any traffic.
func (p *Processor) Metrics() Metrics {
	processed := p.processed.Load()
	duplicates := p.duplicates.Load()
	rate := 0.0
	if processed+duplicates > 0 {
		rate = float64(duplicates) / float64(processed+duplicates)
	}
	return Metrics{
		Processed:         processed,
		Duplicates:        duplicates,
		Failed:            p.failed.Load(),
		DeduplicationRate: rate,
	}
}
