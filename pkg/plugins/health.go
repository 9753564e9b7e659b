package plugins

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/llx/pkg/observability"
)

// HealthEvent is one recorded plugin failure.
type HealthEvent struct {
	At      time.Time
	Message string
}

// HealthRecord is the accumulated diagnostic history of one plugin.
type HealthRecord struct {
	Plugin              string
	Errors              []HealthEvent
	MissingDependencies []string
	LastSuccess         time.Time
}

// Healthy reports whether the plugin has no errors, or has answered
// successfully since the last one.
func (r HealthRecord) Healthy() bool {
	last, ok := r.LastError()
	if !ok {
		return true
	}
	return !r.LastSuccess.IsZero() && !r.LastSuccess.Before(last.At)
}

// LastError returns the most recent error, if any.
func (r HealthRecord) LastError() (HealthEvent, bool) {
	if len(r.Errors) == 0 {
		return HealthEvent{}, false
	}
	return r.Errors[len(r.Errors)-1], true
}

// HealthStore persists health events across runs.
type HealthStore interface {
	AppendError(ctx context.Context, plugin string, ev HealthEvent) error
	AddMissingDependency(ctx context.Context, plugin, dep string) error
	Load(ctx context.Context, plugin string) (HealthRecord, error)
	Plugins(ctx context.Context) ([]string, error)
}

// HealthOption configures a HealthLedger.
type HealthOption func(*HealthLedger)

// WithHealthStore persists every recorded error and missing dependency to s.
func WithHealthStore(s HealthStore) HealthOption {
	return func(l *HealthLedger) { l.store = s }
}

// WithHealthLogger sets the logger used to report store failures.
func WithHealthLogger(log *logrus.Logger) HealthOption {
	return func(l *HealthLedger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithHealthMetrics counts recorded errors.
func WithHealthMetrics(m *observability.Metrics) HealthOption {
	return func(l *HealthLedger) { l.metrics = m }
}

type healthState struct {
	errors      []HealthEvent
	missing     map[string]struct{}
	lastSuccess time.Time
}

// HealthLedger records per-plugin failures for the current run. It is safe for
// concurrent use. Records are append-only and uncapped.
type HealthLedger struct {
	mu      sync.RWMutex
	records map[string]*healthState

	store   HealthStore
	log     *logrus.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewHealthLedger creates an empty ledger.
func NewHealthLedger(opts ...HealthOption) *HealthLedger {
	l := &HealthLedger{
		records: make(map[string]*healthState),
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *HealthLedger) state(plugin string) *healthState {
	st, ok := l.records[plugin]
	if !ok {
		st = &healthState{missing: make(map[string]struct{})}
		l.records[plugin] = st
	}
	return st
}

// RecordError appends an error to the plugin's record.
func (l *HealthLedger) RecordError(plugin, message string) {
	ev := HealthEvent{At: l.now(), Message: message}

	l.mu.Lock()
	st := l.state(plugin)
	st.errors = append(st.errors, ev)
	l.mu.Unlock()

	l.metrics.RecordHealthError(plugin)
	if l.store != nil {
		if err := l.store.AppendError(context.Background(), plugin, ev); err != nil {
			l.log.WithField("plugin", plugin).Warnf("Failed to persist health event: %v", err)
		}
	}
}

// RecordMissingDependency adds dep to the plugin's missing dependency set.
func (l *HealthLedger) RecordMissingDependency(plugin, dep string) {
	l.mu.Lock()
	st := l.state(plugin)
	_, seen := st.missing[dep]
	st.missing[dep] = struct{}{}
	l.mu.Unlock()

	if seen || l.store == nil {
		return
	}
	if err := l.store.AddMissingDependency(context.Background(), plugin, dep); err != nil {
		l.log.WithField("plugin", plugin).Warnf("Failed to persist missing dependency: %v", err)
	}
}

// RecordSuccess notes a successful answer, which makes the plugin healthy again.
func (l *HealthLedger) RecordSuccess(plugin string) {
	now := l.now()
	l.mu.Lock()
	l.state(plugin).lastSuccess = now
	l.mu.Unlock()
}

// Snapshot returns a copy of the plugin's record. Unknown plugins yield an
// empty, healthy record.
func (l *HealthLedger) Snapshot(plugin string) HealthRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := HealthRecord{Plugin: plugin}
	st, ok := l.records[plugin]
	if !ok {
		return rec
	}
	rec.Errors = append([]HealthEvent(nil), st.errors...)
	rec.LastSuccess = st.lastSuccess
	for dep := range st.missing {
		rec.MissingDependencies = append(rec.MissingDependencies, dep)
	}
	sort.Strings(rec.MissingDependencies)
	return rec
}

// Plugins returns the names of plugins with a record, sorted.
func (l *HealthLedger) Plugins() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.records))
	for name := range l.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns the plugin's persisted record when a store is configured,
// and the in-memory snapshot otherwise.
func (l *HealthLedger) History(ctx context.Context, plugin string) (HealthRecord, error) {
	if l.store == nil {
		return l.Snapshot(plugin), nil
	}
	rec, err := l.store.Load(ctx, plugin)
	if err != nil {
		return HealthRecord{}, err
	}
	rec.LastSuccess = l.Snapshot(plugin).LastSuccess
	return rec, nil
}

// HistoryPlugins lists plugins with persisted history, or with an in-memory
// record when no store is configured.
func (l *HealthLedger) HistoryPlugins(ctx context.Context) ([]string, error) {
	if l.store == nil {
		return l.Plugins(), nil
	}
	return l.store.Plugins(ctx)
}
