package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/llx/pkg/dylib"
	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOpener replaces the dynamic library opener.
func WithOpener(open Opener) LoaderOption {
	return func(l *Loader) { l.open = open }
}

// WithSupportedVersions sets the accepted plugin protocol versions.
func WithSupportedVersions(r protocol.VersionRange) LoaderOption {
	return func(l *Loader) { l.supported = r }
}

// WithLoaderMetrics sets the metrics recorded by the loader and its handles.
func WithLoaderMetrics(m *observability.Metrics, om *observability.OTelMetrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
		l.otelMetrics = om
	}
}

// WithConfigPayload sets the configuration delivered to every plugin once it
// is registered.
func WithConfigPayload(p protocol.ConfigPayload) LoaderOption {
	return func(l *Loader) { l.payload = &p }
}

// Loader discovers plugin libraries in directories and registers them.
type Loader struct {
	pluginDirs []string
	open       Opener
	supported  protocol.VersionRange
	payload    *protocol.ConfigPayload

	log         *logrus.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

// NewLoader creates a new plugin loader
func NewLoader(dirs []string, log *logrus.Logger, opts ...LoaderOption) *Loader {
	if log == nil {
		log = logrus.New()
	}

	l := &Loader{
		pluginDirs: dirs,
		open:       OpenLibrary,
		supported:  protocol.SupportedVersions,
		log:        log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dirs returns the directories the loader scans.
func (l *Loader) Dirs() []string {
	return l.pluginDirs
}

// LoadReport summarizes one discovery pass.
type LoadReport struct {
	Loaded   []string
	Rejected []*LoadError
}

// Candidates returns the library files in the plugin directories, in directory
// then name order, without duplicates. Missing directories are created.
func (l *Loader) Candidates() []string {
	seen := make(map[string]bool)
	var paths []string

	for _, dir := range l.pluginDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.log.Warnf("Failed to create plugin directory %s: %v", dir, err)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			l.log.Warnf("Failed to read plugin directory %s: %v", dir, err)
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			if entry.IsDir() || !dylib.IsCandidate(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			canonical := canonicalPath(path)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true
			paths = append(paths, path)
		}
	}
	return paths
}

// Discover loads every candidate library into registry, one at a time. A
// rejected candidate is logged and reported and never stops the others.
func (l *Loader) Discover(ctx context.Context, registry *Registry) *LoadReport {
	report := &LoadReport{}

	for _, path := range l.Candidates() {
		if ctx.Err() != nil {
			break
		}
		if registry.hasPath(canonicalPath(path)) {
			continue
		}

		h, err := l.Load(ctx, registry, path)
		if err != nil {
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				loadErr = &LoadError{Path: path, Err: err}
			}
			report.Rejected = append(report.Rejected, loadErr)
			continue
		}
		report.Loaded = append(report.Loaded, h.Name())
	}

	return report
}

// Load opens one library, checks it and registers it. The configuration
// payload, if any, is delivered after registration; its failure is recorded in
// the registry's health ledger and does not undo the load.
func (l *Loader) Load(ctx context.Context, registry *Registry, path string) (*Handle, error) {
	h, err := l.connect(ctx, path)
	if err != nil {
		return nil, l.reject(path, err)
	}

	if err := registry.Register(h); err != nil {
		_ = h.Close()
		return nil, l.reject(path, err)
	}

	l.log.Infof("Loaded plugin: %s (protocol %d) from %s", h.Name(), h.ProtocolVersion(), path)

	if l.payload != nil {
		registry.deliverConfig(ctx, h, *l.payload)
	}
	return h, nil
}

// Validate reports whether the library at path could be loaded: it opens the
// library, checks the protocol version, performs the name handshake and
// closes it again.
func (l *Loader) Validate(ctx context.Context, path string) error {
	h, err := l.connect(ctx, path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	return h.Close()
}

func (l *Loader) connect(ctx context.Context, path string) (*Handle, error) {
	t, err := l.open(path)
	if err != nil {
		return nil, err
	}

	h, err := NewHandle(ctx, path, t,
		l.supported,
		WithHandleLogger(l.log),
		WithHandleMetrics(l.metrics, l.otelMetrics),
	)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return h, nil
}

func (l *Loader) reject(path string, err error) *LoadError {
	l.metrics.RecordLoadRejection(rejectionReason(err))
	l.log.Warnf("Failed to load plugin %s: %v", path, err)
	return &LoadError{Path: path, Err: err}
}

// canonicalPath resolves symlinks so one library reached by two names is
// loaded once.
func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// DefaultPluginDir returns the default plugin directory.
func DefaultPluginDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "llx", "plugins")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".config", "llx", "plugins")
}
