package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/heromessaging/messaging/pkg/message"
)

// BatchOptions configures the batch pipeline variant.
type BatchOptions struct {
	MaxParallelism int
	// ContinueOnFailure: a failure does not stop subsequent items.
	ContinueOnFailure bool
	// FallbackToIndividualProcessing: if the batch-level terminal handler
	// panics or a batch-wide error is detected, retry each message
	// individually through the same per-item pipeline.
	FallbackToIndividualProcessing bool
}

// BatchPipeline runs messages through the same per-item stage chain a
// Pipeline would, with configurable parallelism and failure
// containment.
type BatchPipeline struct {
	item *Pipeline
	opts BatchOptions
}

// NewBatch builds a BatchPipeline that processes each item through item.
func NewBatch(item *Pipeline, opts BatchOptions) *BatchPipeline {
	if opts.MaxParallelism <= 0 {
		opts.MaxParallelism = 1
	}
	return &BatchPipeline{item: item, opts: opts}
}

// Process processes messages[i] with contexts[i] for each i. len(messages)
// must equal len(contexts). If MaxParallelism == 1, processing is
// strictly sequential and ordering is preserved by construction; for
// MaxParallelism > 1, up to that many items run concurrently via
// errgroup.Group.SetLimit, with results still written back by original
// index so the returned BatchResult is index-ordered regardless of
// completion order.
func (b *BatchPipeline) Process(ctx context.Context, messages []message.Message, contexts []message.ProcessingContext) message.BatchResult {
	n := len(messages)
	results := make([]message.Result, n)

	runOne := func(i int) {
		results[i] = b.item.Process(messages[i], contexts[i])
	}

	if b.opts.MaxParallelism <= 1 {
		for i := 0; i < n; i++ {
			runOne(i)
			if !b.opts.ContinueOnFailure && results[i].Failed() {
				for j := i + 1; j < n; j++ {
					results[j] = message.Failure(context.Canceled, messages[j])
				}
				break
			}
		}
		return message.NewBatchResult(results)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.MaxParallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if !b.opts.ContinueOnFailure && gctx.Err() != nil {
				results[i] = message.Failure(context.Canceled, messages[i])
				return nil
			}
			runOne(i)
			if !b.opts.ContinueOnFailure && results[i].Failed() {
				return results[i].Err()
			}
			return nil
		})
	}
	_ = g.Wait() // per-item errors are already captured in results

	return message.NewBatchResult(results)
}

// ProcessWithFallback runs a batch-level handler first; if it returns an
// error and FallbackToIndividualProcessing is set, it falls back to
// Process so each message is retried individually through the per-item
// path.
func (b *BatchPipeline) ProcessWithFallback(ctx context.Context, messages []message.Message, contexts []message.ProcessingContext, batchHandler func(context.Context, []message.Message) error) message.BatchResult {
	if batchHandler != nil {
		if err := safeCall(batchHandler, ctx, messages); err != nil {
			if !b.opts.FallbackToIndividualProcessing {
				results := make([]message.Result, len(messages))
				for i, m := range messages {
					results[i] = message.Failure(err, m)
				}
				return message.NewBatchResult(results)
			}
		} else {
			results := make([]message.Result, len(messages))
			for i, m := range messages {
				results[i] = message.Success(nil, m)
			}
			return message.NewBatchResult(results)
		}
	}
	return b.Process(ctx, messages, contexts)
}

func safeCall(fn func(context.Context, []message.Message) error, ctx context.Context, messages []message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredPanicError{r}
		}
	}()
	return fn(ctx, messages)
}

type recoveredPanicError struct{ v any }

func (e recoveredPanicError) Error() string {
	return "batch handler panicked"
}
