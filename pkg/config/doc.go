// Package config provides llx configuration from a YAML file and environment
// variables.
//
// # Overview
//
// Load starts from Default, applies the YAML file (a missing file is fine),
// then LLX_* environment variables, and validates the result. Save writes the
// configuration back, which is how `llx enable` and `llx disable` persist.
//
// # Configuration File
//
//	plugins_dir: ~/.config/llx/plugins
//	enabled_plugins: [git, sizebadge]
//	theme: default
//	default_format: long     # default, long, tree, grid, table
//	show_icons: true
//	shortcuts:
//	  gs:
//	    plugin: git
//	    action: status
//	workers: 8
//	decoration_cache_size: 4096
//	health_db: ~/.cache/llx/health.db
//	log_level: warn
//	metrics_file: /var/lib/node_exporter/llx.prom
//	otel:
//	  endpoint: otel-collector:4317
//	  service_name: llx
//	  insecure: true
//
// # Environment
//
//	LLX_PLUGINS_DIR, LLX_ENABLED_PLUGINS (comma separated), LLX_THEME,
//	LLX_DEFAULT_FORMAT, LLX_SHOW_ICONS, LLX_WORKERS, LLX_DECORATION_CACHE_SIZE,
//	LLX_HEALTH_DB, LLX_LOG_LEVEL, LLX_METRICS_FILE, LLX_OTEL_ENDPOINT,
//	LLX_OTEL_SERVICE_NAME, LLX_OTEL_INSECURE
//
// # Related Packages
//
//   - pkg/plugins: Receives the enabled set and the plugin configuration payload
//   - pkg/observability: Uses the log level, metrics file and OTel settings
package config
