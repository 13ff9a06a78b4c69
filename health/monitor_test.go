package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("trigno-client", "streaming")
	m.UpdateUnhealthy("dispatcher", "queue stalled")

	s, ok := m.Get("trigno-client")
	require.True(t, ok)
	assert.True(t, s.IsHealthy())
	assert.Equal(t, "trigno-client", s.Component)
	assert.False(t, s.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Count())
}

func TestAggregateUnhealthyWins(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("trigno-client", "ok")
	m.UpdateDegraded("live-buffer", "dropping batches")
	m.UpdateUnhealthy("recording", "disk full")

	agg := m.AggregateHealth("emgstream")
	assert.True(t, agg.IsUnhealthy())
	assert.Len(t, agg.SubStatuses, 3)
}

func TestAggregateDegraded(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("trigno-client", "ok")
	m.UpdateDegraded("live-buffer", "dropping batches")

	agg := m.AggregateHealth("emgstream")
	assert.True(t, agg.IsDegraded())
	assert.False(t, agg.Healthy)
}

func TestAggregateAllHealthy(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("trigno-client", "ok")
	m.UpdateHealthy("dispatcher", "ok")

	agg := m.AggregateHealth("emgstream")
	assert.True(t, agg.IsHealthy())
	assert.Equal(t, "all components healthy", agg.Message)
}

func TestRemove(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("trigno-client", "ok")
	m.Remove("trigno-client")
	assert.Equal(t, 0, m.Count())
}
