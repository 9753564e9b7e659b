// Package plugins is the llx plugin runtime: it loads plugin libraries, talks to
// them over the byte-message protocol and keeps misbehaving plugins from taking
// the host down.
//
// # Overview
//
// Loader: Discovers libraries in plugin directories, gates them on protocol
// version and registers them
// Handle: One loaded plugin; serializes calls and contains faults
// Registry: The set of loaded plugins the rest of llx calls into
// CapabilityCache: Each plugin's supported formats, queried once per run
// Dispatcher: Batch decoration with per-entry fallback
// HealthLedger: Per-plugin error history and missing dependencies
//
// # Usage Example
//
//	registry := plugins.NewRegistry(plugins.WithEnabled(cfg.EnabledPlugins...))
//	defer registry.Close()
//
//	loader := plugins.NewLoader([]string{cfg.PluginsDir}, log)
//	report := loader.Discover(ctx, registry)
//	for _, rejected := range report.Rejected {
//		fmt.Fprintln(os.Stderr, "warning:", rejected)
//	}
//
//	entries = registry.Decorate(ctx, entries, protocol.FormatLong)
//
// # Failure Handling
//
// Nothing a plugin does at call time is returned to the listing as an error.
// A failed call leaves the affected entries undecorated and appends to the
// plugin's HealthLedger record, which `llx plugins` and `llx health` display.
//
// # Related Packages
//
//   - pkg/dylib: Opens libraries and performs the raw call
//   - pkg/protocol: Messages and codec
//   - pkg/pluginsdk: The plugin side of the protocol
package plugins
