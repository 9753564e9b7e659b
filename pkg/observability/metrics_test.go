package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	// Registering twice on the same registry must fail.
	assert.Panics(t, func() { NewMetrics(registry) })
}

func TestMetrics_RecordPluginCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPluginCall("git", "Decorate", StatusOK, 5*time.Millisecond)
	m.RecordPluginCall("git", "Decorate", StatusOK, 5*time.Millisecond)
	m.RecordPluginCall("git", "Decorate", StatusFault, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PluginCallsTotal.WithLabelValues("git", "Decorate", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PluginCallsTotal.WithLabelValues("git", "Decorate", StatusFault)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PluginCallDuration))
}

func TestMetrics_Helpers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCapabilityLookup(true)
	m.RecordCapabilityLookup(false)
	m.RecordCapabilityLookup(false)
	m.RecordLoadRejection("version")
	m.SetPluginsLoaded(3)
	m.RecordHealthError("git")
	m.RecordDecorated("git", "batch", 10)
	m.RecordDecorated("git", "batch", 0)
	m.RecordBatchFallback("git")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapabilityCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CapabilityCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadRejectionsTotal.WithLabelValues("version")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PluginsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthErrorsTotal.WithLabelValues("git")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.EntriesDecoratedTotal.WithLabelValues("git", "batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchFallbacksTotal.WithLabelValues("git")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPluginCall("git", "Decorate", StatusOK, time.Millisecond)
		m.RecordCapabilityLookup(true)
		m.RecordLoadRejection("open")
		m.SetPluginsLoaded(1)
		m.RecordHealthError("git")
		m.RecordDecorated("git", "single", 1)
		m.RecordBatchFallback("git")
	})
}

func TestWriteMetricsFile(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.SetPluginsLoaded(2)

	path := filepath.Join(t.TempDir(), "llx.prom")
	require.NoError(t, WriteMetricsFile(path, registry))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "llx_plugins_loaded 2")

	assert.NoError(t, WriteMetricsFile("", registry))
}
