package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.CoreMetrics())
	require.NotNil(t, registry.PrometheusRegistry())

	// Core metrics are gathered without touching them first.
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegisterComponentMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "test_total",
		Help:      "Test counter.",
	})
	require.NoError(t, registry.Register("test", "test_total", counter))

	// Same key again is rejected.
	err := registry.Register("test", "test_total", counter)
	require.Error(t, err)

	assert.True(t, registry.Unregister("test", "test_total"))
	assert.False(t, registry.Unregister("test", "test_total"))
}

func TestServerLifecycle(t *testing.T) {
	registry := NewMetricsRegistry()
	srv := NewServer(0, "", registry)
	assert.Equal(t, 9090, srv.port)
	assert.Equal(t, "/metrics", srv.path)

	// Stop before start is a no-op.
	require.NoError(t, srv.Stop(time.Second))
}

func TestServerStartRequiresRegistry(t *testing.T) {
	srv := NewServer(0, "", nil)
	require.Error(t, srv.Start())
}
