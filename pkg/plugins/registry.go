package plugins

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// DefaultDecorationCacheSize bounds the single-entry decoration cache.
const DefaultDecorationCacheSize = 4096

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(log *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRegistryMetrics sets the metrics recorded by the registry and its caches.
func WithRegistryMetrics(m *observability.Metrics, om *observability.OTelMetrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
		r.otelMetrics = om
	}
}

// WithHealthLedger replaces the registry's health ledger.
func WithHealthLedger(l *HealthLedger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.health = l
		}
	}
}

// WithWorkers bounds how many plugins decorate concurrently.
func WithWorkers(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithDecorationCacheSize sets the number of single-entry decorations kept.
func WithDecorationCacheSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithEnabled marks plugins as enabled, whether or not they are loaded yet.
func WithEnabled(names ...string) RegistryOption {
	return func(r *Registry) {
		for _, name := range names {
			r.enabled[name] = true
		}
	}
}

type registered struct {
	handle *Handle
	// active counts callers currently using handle.
	active sync.WaitGroup
}

type decorationKey struct {
	path   string
	format string
}

// Registry holds every loaded plugin and is the entry point the rest of llx
// calls into. It owns the capability cache, health ledger, batch dispatcher and
// decoration cache.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*registered
	paths   map[string]string
	enabled map[string]bool

	caps        *CapabilityCache
	health      *HealthLedger
	dispatcher  *Dispatcher
	decorations *lru.Cache[decorationKey, protocol.Entry]

	workers     int
	cacheSize   int
	log         *logrus.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins:   make(map[string]*registered),
		paths:     make(map[string]string),
		enabled:   make(map[string]bool),
		workers:   runtime.NumCPU(),
		cacheSize: DefaultDecorationCacheSize,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.health == nil {
		r.health = NewHealthLedger(WithHealthLogger(r.log), WithHealthMetrics(r.metrics))
	}
	r.caps = NewCapabilityCache(r.health, r.metrics)
	r.dispatcher = NewDispatcher(r.caps, r.health, r.log, r.metrics, r.otelMetrics)

	cache, err := lru.New[decorationKey, protocol.Entry](r.cacheSize)
	if err != nil {
		// Only a non-positive size fails, and options reject those.
		panic(err)
	}
	r.decorations = cache
	return r
}

// Health returns the registry's health ledger.
func (r *Registry) Health() *HealthLedger { return r.health }

// Capabilities returns the registry's capability cache.
func (r *Registry) Capabilities() *CapabilityCache { return r.caps }

// Register adds h under its declared name.
func (r *Registry) Register(h *Handle) error {
	if h == nil {
		return errors.New("cannot register nil plugin")
	}

	r.mu.Lock()
	if _, exists := r.plugins[h.Name()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, h.Name())
	}
	r.plugins[h.Name()] = &registered{handle: h}
	r.paths[canonicalPath(h.Path())] = h.Name()
	n := len(r.plugins)
	r.mu.Unlock()

	r.decorations.Purge()
	r.metrics.SetPluginsLoaded(n)
	return nil
}

// Unregister removes the named plugin, waits for calls already using it to
// finish and closes it.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	entry, exists := r.plugins[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	delete(r.plugins, name)
	delete(r.paths, canonicalPath(entry.handle.Path()))
	n := len(r.plugins)
	r.mu.Unlock()

	r.decorations.Purge()
	r.metrics.SetPluginsLoaded(n)

	entry.active.Wait()
	r.caps.forget(entry.handle)
	return entry.handle.Close()
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.plugins[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return entry.handle, nil
}

// List returns all registered plugins sorted by name.
func (r *Registry) List() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Handle, 0, len(r.plugins))
	for _, entry := range r.plugins {
		result = append(result, entry.handle)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Enable turns the named plugin on.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable turns the named plugin off.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, on bool) error {
	r.mu.Lock()
	if _, exists := r.plugins[name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if on {
		r.enabled[name] = true
	} else {
		delete(r.enabled, name)
	}
	r.mu.Unlock()

	r.decorations.Purge()
	return nil
}

// IsEnabled reports whether the named plugin is enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

// Enabled returns the names of registered, enabled plugins, sorted.
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.plugins {
		if r.enabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Close unregisters and closes every plugin.
func (r *Registry) Close() error {
	var errs []error
	for _, h := range r.List() {
		if err := r.Unregister(h.Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) hasPath(canonical string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.paths[canonical]
	return ok
}

// nameForPath returns the registered plugin loaded from canonical, if any.
func (r *Registry) nameForPath(canonical string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.paths[canonical]
	return name, ok
}

// acquire pins the named plugin so Unregister waits for the caller. The
// returned release must be called when done.
func (r *Registry) acquire(name string) (*Handle, func(), error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.plugins[name]
	if !exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	entry.active.Add(1)
	return entry.handle, entry.active.Done, nil
}

// acquireEnabled pins every enabled plugin, sorted by name.
func (r *Registry) acquireEnabled() ([]*Handle, func()) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pinned []*registered
	for name, entry := range r.plugins {
		if r.enabled[name] {
			entry.active.Add(1)
			pinned = append(pinned, entry)
		}
	}
	sort.Slice(pinned, func(i, j int) bool { return pinned[i].handle.Name() < pinned[j].handle.Name() })

	handles := make([]*Handle, len(pinned))
	for i, entry := range pinned {
		handles[i] = entry.handle
	}
	return handles, func() {
		for _, entry := range pinned {
			entry.active.Done()
		}
	}
}
