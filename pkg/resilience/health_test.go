package resilience_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/heromessaging/messaging/pkg/clock"
	"github.com/heromessaging/messaging/pkg/resilience"
)

func TestHealthMonitor_StatusTransitions(t *testing.T) {
	fake := clock.NewFake(time.Now())
	opts := resilience.DefaultHealthMonitorOptions()
	opts.Clock = fake
	opts.FailureThreshold = 0.5
	m := resilience.NewHealthMonitor(opts)

	assert.Equal(t, resilience.StatusUnknown, m.Status())

	m.Record("op-a", 10*time.Millisecond, true, "")
	assert.Equal(t, resilience.StatusHealthy, m.Status())

	for i := 0; i < 5; i++ {
		m.Record("op-a", 10*time.Millisecond, false, "boom")
	}
	assert.Equal(t, resilience.StatusUnhealthy, m.Status())

	m.Record("op-b", 5*time.Millisecond, true, "")
	// op-a over threshold, op-b not: 1 of 2 ops over => exactly half => unhealthy
	assert.Equal(t, resilience.StatusUnhealthy, m.Status())
}

func TestHealthMonitor_Prune(t *testing.T) {
	fake := clock.NewFake(time.Now())
	opts := resilience.DefaultHealthMonitorOptions()
	opts.Clock = fake
	opts.MetricsRetention = time.Minute
	m := resilience.NewHealthMonitor(opts)

	m.Record("stale", time.Millisecond, true, "")
	fake.Advance(2 * time.Minute)
	m.Prune()

	assert.Equal(t, uint64(0), m.Operation("stale").Total)
}
