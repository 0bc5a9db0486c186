// Package batch implements the batch accumulator: a FIFO queue that
// emits a batch when it is full, a timeout elapses, or an external flush
// signal arrives, and which flags an under-sized timed-out batch so
// callers route it back to individual processing instead of the batch
// handler.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heromessaging/messaging/pkg/clock"
)

// ErrFull is returned by Submit when the accumulator is at capacity and
// configured to reject rather than block; the choice is made at
// construction via Options.BlockOnFull.
var ErrFull = errors.New("batch: accumulator at capacity")

// ErrClosed is returned by Submit once the accumulator has been closed.
var ErrClosed = errors.New("batch: accumulator closed")

// Options configures an Accumulator.
type Options struct {
	MaxBatchSize int
	MinBatchSize int
	BatchTimeout time.Duration
	// Capacity bounds the internal queue; 0 means MaxBatchSize*4.
	Capacity int
	// BlockOnFull selects backpressure semantics: true blocks Submit
	// until room frees up or ctx is done; false returns ErrFull
	// immediately.
	BlockOnFull bool
}

// Batch is one emitted group of accumulated items, in submission order.
type Batch[T any] struct {
	Items []T
	// MetMinBatchSize is false when the batch was flushed by timeout (or
	// an explicit Flush) before reaching MinBatchSize; callers must
	// bypass the batch handler and process Items individually in that
	// case.
	MetMinBatchSize bool
}

// Accumulator is a thread-safe, FIFO, single-consumer batch accumulator.
// Submission is admitted through a bounded channel, so the channel's own
// send-blocking (or non-blocking select) implements the backpressure
// contract without a separate lock around the buffer.
type Accumulator[T any] struct {
	opts  Options
	clock clock.Clock

	items chan T
	flush chan struct{}
	out   chan Batch[T]
	done  chan struct{}

	closeOnce sync.Once
	loopWG    sync.WaitGroup
}

// New builds an Accumulator with the given options, defaulting any
// zero-valued bound, and starts its consumer loop.
func New[T any](opts Options, c clock.Clock) *Accumulator[T] {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	if opts.MinBatchSize <= 0 {
		opts.MinBatchSize = 1
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = time.Second
	}
	if opts.Capacity <= 0 {
		opts.Capacity = opts.MaxBatchSize * 4
	}
	if c == nil {
		c = clock.New()
	}
	a := &Accumulator[T]{
		opts:  opts,
		clock: c,
		items: make(chan T, opts.Capacity),
		flush: make(chan struct{}, 1),
		out:   make(chan Batch[T], 1),
		done:  make(chan struct{}),
	}
	a.loopWG.Add(1)
	go a.loop()
	return a
}

// Submit admits item into the accumulator, non-blocking below capacity.
// At capacity it blocks until room frees (BlockOnFull) or ctx is done,
// or returns ErrFull immediately.
func (a *Accumulator[T]) Submit(ctx context.Context, item T) error {
	select {
	case <-a.done:
		return ErrClosed
	default:
	}

	if a.opts.BlockOnFull {
		select {
		case a.items <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return ErrClosed
		}
	}

	select {
	case a.items <- item:
		return nil
	case <-a.done:
		return ErrClosed
	default:
		return ErrFull
	}
}

// Flush signals an immediate emission of whatever is currently buffered,
// regardless of size or elapsed time. A no-op if nothing is buffered.
func (a *Accumulator[T]) Flush() {
	select {
	case a.flush <- struct{}{}:
	default:
	}
}

// Batches returns the channel the consumer reads emitted batches from.
// It is closed after Close's final flush.
func (a *Accumulator[T]) Batches() <-chan Batch[T] { return a.out }

// Close stops admitting new items, flushes whatever remains as a final
// batch, and closes the Batches channel. Safe to call more than once.
func (a *Accumulator[T]) Close() {
	a.closeOnce.Do(func() { close(a.done) })
	a.loopWG.Wait()
}

func (a *Accumulator[T]) loop() {
	defer a.loopWG.Done()
	defer close(a.out)

	buf := make([]T, 0, a.opts.MaxBatchSize)
	var timer clock.Timer

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	emit := func(metMin bool) {
		if len(buf) == 0 {
			return
		}
		items := buf
		buf = make([]T, 0, a.opts.MaxBatchSize)
		stopTimer()
		a.out <- Batch[T]{Items: items, MetMinBatchSize: metMin}
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case item := <-a.items:
			buf = append(buf, item)
			if timer == nil {
				timer = a.clock.NewTimer(a.opts.BatchTimeout)
			}
			if len(buf) >= a.opts.MaxBatchSize {
				emit(true)
			}

		case <-a.flush:
			// Pull in items Submit has already admitted but the loop has
			// not yet moved into buf, so a Flush right after Submit
			// includes them.
		drain:
			for len(buf) < a.opts.MaxBatchSize {
				select {
				case item := <-a.items:
					buf = append(buf, item)
				default:
					break drain
				}
			}
			emit(len(buf) >= a.opts.MinBatchSize)

		case <-timerC:
			emit(len(buf) >= a.opts.MinBatchSize)

		case <-a.done:
			// Drain whatever is already queued before the final emit, since
			// items may have been admitted right before Close raced in.
			for {
				select {
				case item := <-a.items:
					buf = append(buf, item)
				default:
					emit(len(buf) >= a.opts.MinBatchSize)
					return
				}
			}
		}
	}
}
