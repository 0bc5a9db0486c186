package resilience

import (
	"sync"
	"time"

	"github.com/heromessaging/messaging/pkg/clock"
)

// Status is the health monitor's aggregate verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// OperationHealth is the per-operation record the monitor tracks:
// total/success/failure counters, the last failure, and a rolling
// average response time kept as an EMA.
type OperationHealth struct {
	Total             uint64
	Successes         uint64
	Failures          uint64
	LastFailureTime   time.Time
	LastFailureReason string
	AvgResponseTime   time.Duration
	updatedAt         time.Time
}

// FailureRate is Failures/Total, zero when no data exists yet.
func (h OperationHealth) FailureRate() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Failures) / float64(h.Total)
}

// HealthMonitor aggregates per-operation counters into an overall
// Healthy/Degraded/Unhealthy/Unknown verdict and prunes entries older
// than MetricsRetention.
type HealthMonitor struct {
	clock            clock.Clock
	failureThreshold float64
	emaAlpha         float64
	retention        time.Duration

	mu  sync.Mutex
	ops map[string]*OperationHealth
}

// HealthMonitorOptions configures a HealthMonitor.
type HealthMonitorOptions struct {
	Clock            clock.Clock
	FailureThreshold float64       // fraction of failures past which an op is "over threshold"
	EMAAlpha         float64       // smoothing factor for the rolling average response time
	MetricsRetention time.Duration
}

// DefaultHealthMonitorOptions returns sensible defaults: 10% failure
// rate threshold, EMA alpha 0.2, 1h retention.
func DefaultHealthMonitorOptions() HealthMonitorOptions {
	return HealthMonitorOptions{
		Clock:            clock.New(),
		FailureThreshold: 0.10,
		EMAAlpha:         0.2,
		MetricsRetention: time.Hour,
	}
}

// NewHealthMonitor builds a HealthMonitor from the given options,
// defaulting any zero-valued field.
func NewHealthMonitor(opts HealthMonitorOptions) *HealthMonitor {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 0.10
	}
	if opts.EMAAlpha <= 0 {
		opts.EMAAlpha = 0.2
	}
	if opts.MetricsRetention <= 0 {
		opts.MetricsRetention = time.Hour
	}
	return &HealthMonitor{
		clock:            opts.Clock,
		failureThreshold: opts.FailureThreshold,
		emaAlpha:         opts.EMAAlpha,
		retention:        opts.MetricsRetention,
		ops:              make(map[string]*OperationHealth),
	}
}

// Record registers the outcome of one invocation of operation.
func (h *HealthMonitor) Record(operation string, d time.Duration, success bool, failureReason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.clock.Now()
	op, ok := h.ops[operation]
	if !ok {
		op = &OperationHealth{AvgResponseTime: d}
		h.ops[operation] = op
	}
	op.Total++
	if success {
		op.Successes++
		if op.AvgResponseTime == 0 {
			op.AvgResponseTime = d
		} else {
			op.AvgResponseTime = time.Duration(h.emaAlpha*float64(d) + (1-h.emaAlpha)*float64(op.AvgResponseTime))
		}
	} else {
		op.Failures++
		op.LastFailureTime = now
		op.LastFailureReason = failureReason
	}
	op.updatedAt = now
}

// Operation returns a copy of the tracked record for operation, or the
// zero value if nothing has been recorded.
func (h *HealthMonitor) Operation(operation string) OperationHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	if op, ok := h.ops[operation]; ok {
		return *op
	}
	return OperationHealth{}
}

// Prune removes operation records whose last update is older than the
// configured retention, intended to be called periodically by a
// background worker.
func (h *HealthMonitor) Prune() {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := h.clock.Now().Add(-h.retention)
	for name, op := range h.ops {
		if op.updatedAt.Before(cutoff) {
			delete(h.ops, name)
		}
	}
}

// Status computes the overall verdict across all tracked operations:
// Unknown with no data, Healthy if none are over the failure threshold,
// Unhealthy if at least half are over threshold, Degraded otherwise.
func (h *HealthMonitor) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ops) == 0 {
		return StatusUnknown
	}
	over := 0
	for _, op := range h.ops {
		if op.FailureRate() > h.failureThreshold {
			over++
		}
	}
	switch {
	case over == 0:
		return StatusHealthy
	case float64(over) >= float64(len(h.ops))/2:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}
