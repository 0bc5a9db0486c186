// Package builder composes the core's pluggable parts — storages, a
// serializer, a transport, batch/retry/breaker/health options — into a
// validated set ready for the dispatcher and processors to consume:
// collect, validate, fail fast on the first missing or out-of-bounds
// setting, with environment-sourced defaults for anything not set
// programmatically.
package builder

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/heromessaging/messaging/pkg/config"
	"github.com/heromessaging/messaging/pkg/deadletter"
	"github.com/heromessaging/messaging/pkg/herrors"
	"github.com/heromessaging/messaging/pkg/pipeline"
	"github.com/heromessaging/messaging/pkg/resilience"
	"github.com/heromessaging/messaging/pkg/serializer"
	"github.com/heromessaging/messaging/pkg/storage"
	"github.com/heromessaging/messaging/pkg/transport"
)

// Builder assembles the components a running core needs, deferring to
// config.Config defaults for any option not set explicitly.
type Builder struct {
	cfg *config.Config

	registry    *Registry
	registerErr error

	messageStore   storage.MessageStorage
	outboxStore    storage.OutboxStorage
	inboxStore     storage.InboxStorage
	scheduledStore storage.ScheduledMessageStorage
	queueStore     storage.QueueStorage

	serializer serializer.Serializer
	transport  transport.MessageTransport
	deadLetter deadletter.Queue

	batch     pipeline.BatchOptions
	retry     resilience.RetryPolicy
	breaker   resilience.BreakerOptions
	health    resilience.HealthMonitorOptions
	hasBatch  bool
	hasRetry  bool
	hasBrkr   bool
	hasHealth bool
}

// System is the validated, fully wired set of components Build returns.
type System struct {
	MessageStorage   storage.MessageStorage
	OutboxStorage    storage.OutboxStorage
	InboxStorage     storage.InboxStorage
	ScheduledStorage storage.ScheduledMessageStorage
	QueueStorage     storage.QueueStorage
	Serializer       serializer.Serializer
	Transport        transport.MessageTransport
	// DeadLetter is the queue pipeline.ErrorHandling routes
	// SendToDeadLetter-classified failures to, per System.Stages. Nil
	// means ErrorHandling falls back to its own no-op default.
	DeadLetter deadletter.Queue
	Batch      pipeline.BatchOptions
	Retry      resilience.RetryPolicy
	Breaker    resilience.BreakerOptions
	// BreakerManager is the live breaker instance backing Breaker's
	// options, shared by every pipeline.CircuitBreaker stage this System
	// assembles so all operations trip the same breaker state machine.
	BreakerManager *resilience.BreakerManager
	// Health aggregates the outcomes Stages wires it to record,
	// alongside the other builder option groups.
	Health *resilience.HealthMonitor
	// PluginOrder is the dependency-resolved registration order, useful
	// for callers that need to start plugins (e.g. open pooled
	// connections) in dependency order.
	PluginOrder []string
}

// New starts a Builder seeded from cfg. A nil cfg loads the ambient
// environment-sourced Config.
func New(cfg *config.Config) *Builder {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			loaded = &config.Config{}
		}
		cfg = loaded
	}
	return &Builder{cfg: cfg, registry: NewRegistry()}
}

func (b *Builder) register(name string, impl any, dependsOn []string) {
	if b.registerErr != nil {
		return
	}
	b.registerErr = b.registry.Register(Plugin{Name: name, Impl: impl, DependsOn: dependsOn})
}

// WithMessageStorage registers the message storage plugin.
func (b *Builder) WithMessageStorage(name string, s storage.MessageStorage, dependsOn ...string) *Builder {
	b.messageStore = s
	b.register(name, s, dependsOn)
	return b
}

// WithOutboxStorage registers the outbox storage plugin.
func (b *Builder) WithOutboxStorage(name string, s storage.OutboxStorage, dependsOn ...string) *Builder {
	b.outboxStore = s
	b.register(name, s, dependsOn)
	return b
}

// WithInboxStorage registers the inbox storage plugin.
func (b *Builder) WithInboxStorage(name string, s storage.InboxStorage, dependsOn ...string) *Builder {
	b.inboxStore = s
	b.register(name, s, dependsOn)
	return b
}

// WithScheduledStorage registers the scheduled-message storage plugin.
func (b *Builder) WithScheduledStorage(name string, s storage.ScheduledMessageStorage, dependsOn ...string) *Builder {
	b.scheduledStore = s
	b.register(name, s, dependsOn)
	return b
}

// WithQueueStorage registers the queue storage plugin.
func (b *Builder) WithQueueStorage(name string, s storage.QueueStorage, dependsOn ...string) *Builder {
	b.queueStore = s
	b.register(name, s, dependsOn)
	return b
}

// WithSerializer registers the serializer plugin. Required.
func (b *Builder) WithSerializer(name string, s serializer.Serializer, dependsOn ...string) *Builder {
	b.serializer = s
	b.register(name, s, dependsOn)
	return b
}

// WithTransport registers the transport plugin. Optional: an in-process
// deployment may run on storage seams alone.
func (b *Builder) WithTransport(name string, t transport.MessageTransport, dependsOn ...string) *Builder {
	b.transport = t
	b.register(name, t, dependsOn)
	return b
}

// WithDeadLetter sets the queue pipeline.ErrorHandling routes
// SendToDeadLetter-classified failures to. Optional; unset leaves
// ErrorHandling's own no-op default in place.
func (b *Builder) WithDeadLetter(q deadletter.Queue) *Builder {
	b.deadLetter = q
	return b
}

// WithBatch sets explicit batch options, overriding the config-derived
// default.
func (b *Builder) WithBatch(opts pipeline.BatchOptions) *Builder {
	b.batch = opts
	b.hasBatch = true
	return b
}

// WithRetry sets an explicit retry policy, overriding the config-derived
// default.
func (b *Builder) WithRetry(policy resilience.RetryPolicy) *Builder {
	b.retry = policy
	b.hasRetry = true
	return b
}

// WithBreaker sets explicit breaker options, overriding the
// config-derived default.
func (b *Builder) WithBreaker(opts resilience.BreakerOptions) *Builder {
	b.breaker = opts
	b.hasBrkr = true
	return b
}

// WithHealth sets explicit health monitor options, overriding the
// package default (10% failure threshold, 1h retention).
func (b *Builder) WithHealth(opts resilience.HealthMonitorOptions) *Builder {
	b.health = opts
	b.hasHealth = true
	return b
}

// Build validates every registered plugin (non-empty name, non-nil
// implementation — enforced at registration time by Register),
// resolves the plugin dependency order, fills unset option groups from
// the config-derived defaults, validates internal option bounds, and
// returns the assembled System. A Serializer is mandatory; all storages
// and the transport are optional.
func (b *Builder) Build() (*System, error) {
	if b.registerErr != nil {
		return nil, b.registerErr
	}
	if b.serializer == nil {
		return nil, herrors.New(herrors.CodeInvalid, "builder: a serializer is required")
	}

	order, err := b.registry.Resolve()
	if err != nil {
		return nil, err
	}

	batch := b.batch
	if !b.hasBatch {
		batch = pipeline.BatchOptions{MaxParallelism: 1, ContinueOnFailure: true}
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	retry := b.retry
	if !b.hasRetry {
		retry = resilience.DefaultRetryPolicy()
		retry.MaxRetries = b.cfg.RetryMaxAttempts
		retry.BaseDelay = b.cfg.RetryBaseDelay
		retry.MaxDelay = b.cfg.RetryMaxDelay
	}
	if err := validateRetry(retry); err != nil {
		return nil, err
	}

	breaker := b.breaker
	if !b.hasBrkr {
		breaker = resilience.DefaultBreakerOptions()
		breaker.FailureThreshold = uint32(b.cfg.BreakerFailureThreshold)
		breaker.BreakDuration = b.cfg.BreakerBreakDuration
	}
	if err := validateBreaker(breaker); err != nil {
		return nil, err
	}

	health := b.health
	if !b.hasHealth {
		health = resilience.DefaultHealthMonitorOptions()
	}

	return &System{
		MessageStorage:   b.messageStore,
		OutboxStorage:    b.outboxStore,
		InboxStorage:     b.inboxStore,
		ScheduledStorage: b.scheduledStore,
		QueueStorage:     b.queueStore,
		Serializer:       b.serializer,
		Transport:        b.transport,
		DeadLetter:       b.deadLetter,
		Batch:            batch,
		Retry:            retry,
		Breaker:          breaker,
		BreakerManager:   resilience.NewBreakerManager(breaker),
		Health:           resilience.NewHealthMonitor(health),
		PluginOrder:      order,
	}, nil
}

// Stages assembles the full pipeline stage chain for operation using this
// System's Retry/Breaker/Health components, via pipeline.Default. checker
// may be nil for outbound (command/query) pipelines that don't need a
// Deduplication stage; pass one built from InboxStorage for inbound
// processing.
func (s *System) Stages(operation, component string, checker pipeline.DuplicateChecker, logger zerolog.Logger) []pipeline.Stage {
	return pipeline.Default(pipeline.DefaultOptions{
		Operation:        operation,
		Component:        component,
		Logger:           logger,
		Validator:        validator.New(validator.WithRequiredStructEnabled()),
		DuplicateChecker: checker,
		Breaker:          s.BreakerManager,
		Retry:            s.Retry,
		Health:           s.Health,
		DeadLetter:       s.DeadLetter,
	})
}

func validateBatch(o pipeline.BatchOptions) error {
	if o.MaxParallelism < 1 {
		return herrors.New(herrors.CodeInvalid, "builder: batch max_parallelism must be >= 1")
	}
	return nil
}

func validateRetry(p resilience.RetryPolicy) error {
	if p.MaxRetries < 0 {
		return herrors.New(herrors.CodeInvalid, "builder: retry max_retries must be >= 0")
	}
	if p.BaseDelay <= 0 {
		return herrors.New(herrors.CodeInvalid, "builder: retry base_delay must be > 0")
	}
	if p.MaxDelay < p.BaseDelay {
		return herrors.New(herrors.CodeInvalid, "builder: retry max_delay must be >= base_delay")
	}
	return nil
}

func validateBreaker(o resilience.BreakerOptions) error {
	if o.FailureThreshold < 1 {
		return herrors.New(herrors.CodeInvalid, "builder: breaker failure_threshold must be >= 1")
	}
	if o.BreakDuration <= 0 {
		return herrors.New(herrors.CodeInvalid, "builder: breaker break_duration must be > 0")
	}
	return nil
}
