package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("hub", "ok").IsHealthy())
	assert.True(t, NewDegraded("mirror", "reconnecting").IsDegraded())
	assert.True(t, NewUnhealthy("store", "unreachable").IsUnhealthy())

	assert.True(t, NewHealthy("hub", "ok").Healthy)
	assert.False(t, NewDegraded("mirror", "reconnecting").Healthy)
}

func TestAggregateRules(t *testing.T) {
	healthy := NewHealthy("intake", "listening")
	degraded := NewDegraded("mirror", "reconnecting")
	unhealthy := NewUnhealthy("store", "unreachable")

	assert.True(t, Aggregate("gateway", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("gateway", []Status{healthy, degraded}).IsDegraded())
	assert.True(t, Aggregate("gateway", []Status{degraded, unhealthy}).IsUnhealthy())
	assert.True(t, Aggregate("gateway", nil).IsHealthy())

	agg := Aggregate("gateway", []Status{healthy, degraded})
	assert.Len(t, agg.SubStatuses, 2)
}

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("intake", "listening on udp")
	m.UpdateDegraded("mirror", "reconnecting")

	status, ok := m.Get("intake")
	require.True(t, ok)
	assert.Equal(t, "intake", status.Component)
	assert.True(t, status.IsHealthy())
	assert.False(t, status.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)

	all := m.GetAll()
	assert.Len(t, all, 2)
}

func TestMonitorAggregateHealth(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("intake", "listening")
	m.UpdateHealthy("hub", "3 subscribers")

	assert.True(t, m.AggregateHealth("gateway").IsHealthy())

	m.UpdateUnhealthy("store", "timeout")
	agg := m.AggregateHealth("gateway")
	assert.True(t, agg.IsUnhealthy())
	assert.Len(t, agg.SubStatuses, 3)
}
