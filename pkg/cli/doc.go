// Package cli provides the llx command-line interface.
//
// # Overview
//
// Every command loads the configuration, builds the plugin runtime from it
// (registry, loader, health ledger, metrics) and shuts it down on exit. Plugin
// libraries that fail to load are reported as warnings; they never fail a
// listing.
//
// # Commands
//
// list: List a directory (the default when no command is given)
//
//	llx -l ~/src
//	llx list --format tree -a .
//
// plugins: Show installed plugins, their status and health
//
//	llx plugins -v
//	llx plugins --json
//
// enable / disable: Change the enabled set and save the configuration
//
//	llx enable git
//	llx disable git
//
// action: Run a plugin action directly or through a shortcut
//
//	llx action git status
//	llx action gs
//	llx action --list
//
// clean: Delete plugin libraries that no longer load
//
//	llx clean
//
// health: Show plugin error history; with health_db set it spans runs
//
//	llx health
//	llx health --clear git
//	llx health --prune 720h
//
// watch: Load plugins as they are copied into the plugin directory
//
//	llx watch
//
// # Configuration
//
//	export LLX_CONFIG=~/.config/llx/config.yaml
//	# Or use --config flag
//
// # Related Packages
//
//   - pkg/config: Configuration file and environment
//   - pkg/plugins: The plugin runtime
//   - pkg/lister: Produces the entries plugins decorate
package cli
