package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes used as the status label of llx_plugin_calls_total.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusFault       = "fault"
	StatusUnsupported = "unsupported"
)

// Metrics holds Prometheus metrics for the plugin runtime. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Plugin call metrics
	PluginCallsTotal   *prometheus.CounterVec
	PluginCallDuration *prometheus.HistogramVec

	// Capability cache metrics
	CapabilityCacheTotal *prometheus.CounterVec

	// Loader metrics
	LoadRejectionsTotal *prometheus.CounterVec
	PluginsLoaded       prometheus.Gauge

	// Health metrics
	HealthErrorsTotal *prometheus.CounterVec

	// Decoration metrics
	EntriesDecoratedTotal *prometheus.CounterVec
	BatchFallbacksTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all plugin runtime metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_calls_total",
				Help: "Total number of plugin calls",
			},
			[]string{"plugin", "kind", "status"},
		),
		PluginCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llx_plugin_call_duration_seconds",
				Help:    "Plugin call duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"plugin", "kind"},
		),
		CapabilityCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_capability_cache_total",
				Help: "Capability cache lookups by result",
			},
			[]string{"result"},
		),
		LoadRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_load_rejections_total",
				Help: "Plugin libraries rejected at load time by reason",
			},
			[]string{"reason"},
		),
		PluginsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "llx_plugins_loaded",
				Help: "Number of plugins in the registry",
			},
		),
		HealthErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_health_errors_total",
				Help: "Errors recorded in the plugin health ledger",
			},
			[]string{"plugin"},
		),
		EntriesDecoratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_entries_decorated_total",
				Help: "Entries sent to plugins for decoration by dispatch mode",
			},
			[]string{"plugin", "mode"},
		),
		BatchFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llx_plugin_batch_fallbacks_total",
				Help: "Batch decorations that fell back to per-entry calls",
			},
			[]string{"plugin"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.PluginCallsTotal,
		m.PluginCallDuration,
		m.CapabilityCacheTotal,
		m.LoadRejectionsTotal,
		m.PluginsLoaded,
		m.HealthErrorsTotal,
		m.EntriesDecoratedTotal,
		m.BatchFallbacksTotal,
	)

	return m
}

// RecordPluginCall records one foreign call and its duration.
func (m *Metrics) RecordPluginCall(plugin, kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PluginCallsTotal.WithLabelValues(plugin, kind, status).Inc()
	m.PluginCallDuration.WithLabelValues(plugin, kind).Observe(d.Seconds())
}

// RecordCapabilityLookup counts a capability cache hit or miss.
func (m *Metrics) RecordCapabilityLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CapabilityCacheTotal.WithLabelValues(result).Inc()
}

// RecordLoadRejection counts a rejected plugin library.
func (m *Metrics) RecordLoadRejection(reason string) {
	if m == nil {
		return
	}
	m.LoadRejectionsTotal.WithLabelValues(reason).Inc()
}

// SetPluginsLoaded sets the registry size gauge.
func (m *Metrics) SetPluginsLoaded(n int) {
	if m == nil {
		return
	}
	m.PluginsLoaded.Set(float64(n))
}

// RecordHealthError counts an error appended to the health ledger.
func (m *Metrics) RecordHealthError(plugin string) {
	if m == nil {
		return
	}
	m.HealthErrorsTotal.WithLabelValues(plugin).Inc()
}

// RecordDecorated counts entries dispatched to a plugin in batch or single mode.
func (m *Metrics) RecordDecorated(plugin, mode string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EntriesDecoratedTotal.WithLabelValues(plugin, mode).Add(float64(n))
}

// RecordBatchFallback counts a batch that was retried entry by entry.
func (m *Metrics) RecordBatchFallback(plugin string) {
	if m == nil {
		return
	}
	m.BatchFallbacksTotal.WithLabelValues(plugin).Inc()
}

// WriteMetricsFile writes every metric gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteMetricsFile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, g)
}
