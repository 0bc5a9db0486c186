// Package metrics collapses the core's instrumentation into one
// sum-typed snapshot read through a single Recorder seam, instead of
// scattering near-duplicate promauto metric vars across packages. A
// Recorder is an interface so callers can supply a Prometheus-backed
// implementation or accept the no-op zero value.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time read of one operation's counters, matching
// the health monitor's per-operation bookkeeping and the
// dispatcher/pipeline's send/receive/publish duration counters.
type Snapshot struct {
	Operation      string
	Total          uint64
	Successes      uint64
	Failures       uint64
	AvgDuration    time.Duration
	LastDuration   time.Duration
	LastFailureAt  time.Time
	LastFailureMsg string
}

// Recorder is the single seam every decorator, processor, and pool
// reports through. The zero value (Noop) discards everything so callers
// never need to nil-check or branch.
type Recorder interface {
	Observe(operation string, d time.Duration, success bool)
	Count(operation, status string)
	Snapshot(operation string) Snapshot
	Snapshots() []Snapshot
}

// Noop is the default Recorder: every call is a no-op, every Snapshot is
// zero-valued.
type Noop struct{}

func (Noop) Observe(string, time.Duration, bool) {}
func (Noop) Count(string, string)                {}
func (Noop) Snapshot(operation string) Snapshot  { return Snapshot{Operation: operation} }
func (Noop) Snapshots() []Snapshot               { return nil }

// InMemory is a lock-protected Recorder used by tests and by callers who
// want snapshot access without standing up a Prometheus registry.
type InMemory struct {
	mu   sync.Mutex
	ops  map[string]*opState
	reg  *prometheus.Registry
	cnt  *prometheus.CounterVec
	hist *prometheus.HistogramVec
}

type opState struct {
	total, successes, failures uint64
	totalDuration              time.Duration
	lastDuration               time.Duration
	lastFailureAt              time.Time
	lastFailureMsg             string
}

// NewInMemory builds a Recorder that also mirrors counts/durations into a
// private Prometheus registry (never the global default registry, so
// multiple processor instances in one process never collide on metric
// names the way a promauto global would).
func NewInMemory() *InMemory {
	reg := prometheus.NewRegistry()
	cnt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heromessaging_operations_total",
		Help: "Total operations processed by the messaging core, by operation and status.",
	}, []string{"operation", "status"})
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heromessaging_operation_duration_seconds",
		Help:    "Operation duration in seconds, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(cnt, hist)
	return &InMemory{ops: make(map[string]*opState), reg: reg, cnt: cnt, hist: hist}
}

// Registry exposes the private Prometheus registry for callers that want
// to serve /metrics themselves.
func (m *InMemory) Registry() *prometheus.Registry { return m.reg }

func (m *InMemory) state(operation string) *opState {
	s, ok := m.ops[operation]
	if !ok {
		s = &opState{}
		m.ops[operation] = s
	}
	return s
}

func (m *InMemory) Observe(operation string, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(operation)
	s.total++
	if success {
		s.successes++
	} else {
		s.failures++
		s.lastFailureAt = time.Now().UTC()
	}
	s.totalDuration += d
	s.lastDuration = d
	m.hist.WithLabelValues(operation).Observe(d.Seconds())
	status := "success"
	if !success {
		status = "failure"
	}
	m.cnt.WithLabelValues(operation, status).Inc()
}

func (m *InMemory) Count(operation, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(operation)
	s.total++
	switch status {
	case "success":
		s.successes++
	case "failure":
		s.failures++
		s.lastFailureAt = time.Now().UTC()
	}
	m.cnt.WithLabelValues(operation, status).Inc()
}

// RecordFailureReason attaches a human-readable reason to the most recent
// failure, used by health reporting.
func (m *InMemory) RecordFailureReason(operation, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(operation).lastFailureMsg = reason
}

func (m *InMemory) Snapshot(operation string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.ops[operation]
	if !ok {
		return Snapshot{Operation: operation}
	}
	return snapshotOf(operation, s)
}

func (m *InMemory) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.ops))
	for op, s := range m.ops {
		out = append(out, snapshotOf(op, s))
	}
	return out
}

func snapshotOf(op string, s *opState) Snapshot {
	avg := time.Duration(0)
	if s.total > 0 {
		avg = s.totalDuration / time.Duration(s.total)
	}
	return Snapshot{
		Operation:      op,
		Total:          s.total,
		Successes:      s.successes,
		Failures:       s.failures,
		AvgDuration:    avg,
		LastDuration:   s.lastDuration,
		LastFailureAt:  s.lastFailureAt,
		LastFailureMsg: s.lastFailureMsg,
	}
}
