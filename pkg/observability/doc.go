// Package observability provides logging, Prometheus metrics, OpenTelemetry
// tracing and shutdown helpers for llx.
//
// # Logging
//
//	logger, err := observability.NewLogger(cfg.LogLevel, os.Stderr)
//	logger.WithField("plugin", name).Warn("plugin rejected")
//
// # Metrics
//
// Plugin runtime metrics are registered on a caller-supplied registry and are
// safe to use through a nil *Metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordPluginCall("git", "Decorate", observability.StatusOK, d)
//	_ = observability.WriteMetricsFile(cfg.MetricsFile, registry)
//
// # Tracing
//
// InitOTel installs OTLP/gRPC exporters when an endpoint is configured.
// Otherwise Tracer returns the global no-op tracer.
package observability
