package observability

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{}, quietLogger())
	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestOTelConfig_Enabled(t *testing.T) {
	assert.False(t, OTelConfig{}.Enabled())
	assert.True(t, OTelConfig{Endpoint: "localhost:4317"}.Enabled())
}

func TestShutdownOTel_Nil(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, quietLogger()))
}

func TestTracer_NotNil(t *testing.T) {
	assert.NotNil(t, Tracer())
}

func TestOTelMetrics_RecordPluginCall(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(prev)

	m, err := NewOTelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPluginCall(ctx, "git", "Decorate", StatusOK, 2*time.Millisecond)
	m.RecordDecorated(ctx, "git", "batch", 4)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["llx.plugin.calls"])
	assert.True(t, names["llx.plugin.call.duration"])
	assert.True(t, names["llx.plugin.entries.decorated"])
}

func TestOTelMetrics_NilIsNoop(t *testing.T) {
	var m *OTelMetrics
	assert.NotPanics(t, func() {
		m.RecordPluginCall(context.Background(), "git", "Decorate", StatusOK, time.Millisecond)
		m.RecordDecorated(context.Background(), "git", "batch", 1)
	})
}
