package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry instruments mirroring the Prometheus plugin
// call metrics, for export over OTLP. A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	pluginCalls        metric.Int64Counter
	pluginCallDuration metric.Float64Histogram
	entriesDecorated   metric.Int64Counter
}

// NewOTelMetrics creates instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(InstrumentationName)

	m := &OTelMetrics{}
	var err error

	m.pluginCalls, err = meter.Int64Counter(
		"llx.plugin.calls",
		metric.WithDescription("Total number of plugin calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin calls counter: %w", err)
	}

	m.pluginCallDuration, err = meter.Float64Histogram(
		"llx.plugin.call.duration",
		metric.WithDescription("Plugin call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin call duration histogram: %w", err)
	}

	m.entriesDecorated, err = meter.Int64Counter(
		"llx.plugin.entries.decorated",
		metric.WithDescription("Entries sent to plugins for decoration"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decorated entries counter: %w", err)
	}

	return m, nil
}

// RecordPluginCall records one foreign call.
func (m *OTelMetrics) RecordPluginCall(ctx context.Context, plugin, kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("kind", kind),
		attribute.String("status", status),
	)
	m.pluginCalls.Add(ctx, 1, attrs)
	m.pluginCallDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDecorated counts entries dispatched to a plugin.
func (m *OTelMetrics) RecordDecorated(ctx context.Context, plugin, mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.entriesDecorated.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("mode", mode),
	))
}
