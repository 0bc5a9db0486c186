package pipeline

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/metrics"
	"github.com/heromessaging/messaging/pkg/resilience"
)

// DefaultOptions assembles the full stage chain in its canonical order:
// Instrumentation, (Health), Validation, (Deduplication), (Timeout),
// (CircuitBreaker), Retry, ErrorHandling. Parenthesized stages are
// included only when their dependency is non-nil/non-zero, so a caller
// building an outbound command pipeline (no dedup) and an inbound event
// pipeline (dedup, no cache) share one assembly function.
type DefaultOptions struct {
	Operation string
	Component string

	Metrics metrics.Recorder
	Logger  zerolog.Logger

	Validator        *validator.Validate
	DuplicateChecker DuplicateChecker

	Timeout time.Duration

	Breaker *resilience.BreakerManager
	Retry   resilience.RetryPolicy
	Health  *resilience.HealthMonitor

	ErrorHandler resilience.ErrorHandler
	DeadLetter   deadletter.Queue
}

// Default builds the ordered stage slice described by opts, for use with
// New or directly as a dispatcher's variadic stages argument, so a
// caller gets the canonical chain without hand-assembling it stage by
// stage.
func Default(opts DefaultOptions) []Stage {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}

	stages := []Stage{Instrumentation(opts.Metrics, opts.Operation, opts.Logger)}

	if opts.Health != nil {
		stages = append(stages, HealthRecording(opts.Health, opts.Operation))
	}

	stages = append(stages, Validation(opts.Validator))

	if opts.DuplicateChecker != nil {
		stages = append(stages, Deduplication(opts.DuplicateChecker))
	}

	if opts.Timeout > 0 {
		stages = append(stages, Timeout(opts.Timeout))
	}

	if opts.Breaker != nil {
		stages = append(stages, CircuitBreaker(opts.Breaker, opts.Operation))
	}

	stages = append(stages, Retry(opts.Retry))
	stages = append(stages, ErrorHandling(opts.ErrorHandler, opts.DeadLetter, opts.Component, opts.Logger))

	return stages
}
