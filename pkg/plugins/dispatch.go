package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// Dispatch modes, used as metric labels.
const (
	modeBatch  = "batch"
	modeSingle = "single"
)

// Dispatcher decorates collections of entries with one plugin, using a single
// BatchDecorate call when the plugin supports it and per-entry Decorate calls
// otherwise.
type Dispatcher struct {
	caps        *CapabilityCache
	health      *HealthLedger
	log         *logrus.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

// NewDispatcher creates a dispatcher that consults caps and records failures
// in health.
func NewDispatcher(caps *CapabilityCache, health *HealthLedger, log *logrus.Logger, metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		caps:        caps,
		health:      health,
		log:         log,
		metrics:     metrics,
		otelMetrics: otelMetrics,
	}
}

// DecorateMany returns one entry per input entry, in input order. Entry i of
// the result is entries[i] with h's fields merged in, or an undecorated copy of
// entries[i] if decorating it failed. Failures never propagate; each failed
// entry adds one record to the health ledger.
func (d *Dispatcher) DecorateMany(ctx context.Context, h *Handle, entries []protocol.Entry, format string) []protocol.Entry {
	if len(entries) == 0 {
		return []protocol.Entry{}
	}

	if d.batchEnabled(ctx, h) {
		out, err := d.batch(ctx, h, entries, format)
		if err == nil {
			d.health.RecordSuccess(h.Name())
			return out
		}
		d.metrics.RecordBatchFallback(h.Name())
		d.log.WithField("plugin", h.Name()).Debugf("Batch decoration failed, decorating entries one by one: %v", err)
	}
	return d.sequential(ctx, h, entries)
}

// batchEnabled decides whether to try BatchDecorate. Plugins that declare a
// feature list are taken at their word; plugins that do not are probed, and a
// refused probe disables batching for the handle.
func (d *Dispatcher) batchEnabled(ctx context.Context, h *Handle) bool {
	caps := d.caps.Capabilities(ctx, h)
	if caps.Declared {
		return caps.Has(protocol.FeatureBatchDecorate)
	}
	return !h.batchUnsupported.Load()
}

func (d *Dispatcher) batch(ctx context.Context, h *Handle, entries []protocol.Entry, format string) ([]protocol.Entry, error) {
	d.metrics.RecordDecorated(h.Name(), modeBatch, len(entries))
	d.otelMetrics.RecordDecorated(ctx, h.Name(), modeBatch, len(entries))

	resp, err := h.Request(ctx, &protocol.BatchDecorate{Entries: entries, Format: format})
	if err != nil {
		var unsupported *UnsupportedRequestError
		if errors.As(err, &unsupported) && !d.caps.Capabilities(ctx, h).Declared {
			h.batchUnsupported.Store(true)
		}
		return nil, err
	}

	decorated := resp.(*protocol.BatchDecoratedResponse).Entries
	if len(decorated) != len(entries) {
		return nil, fmt.Errorf("batch returned %d entries for %d requested", len(decorated), len(entries))
	}

	out := make([]protocol.Entry, len(entries))
	for i := range entries {
		if decorated[i].Path != entries[i].Path {
			return nil, fmt.Errorf("batch entry %d is %q, want %q", i, decorated[i].Path, entries[i].Path)
		}
		out[i] = entries[i].Clone()
		out[i].Merge(decorated[i])
		d.dropOrphans(h.Name(), &out[i])
	}
	return out, nil
}

func (d *Dispatcher) sequential(ctx context.Context, h *Handle, entries []protocol.Entry) []protocol.Entry {
	out := make([]protocol.Entry, len(entries))
	succeeded := false

	for i, entry := range entries {
		out[i] = entry.Clone()
		if ctx.Err() != nil {
			continue
		}

		d.metrics.RecordDecorated(h.Name(), modeSingle, 1)
		d.otelMetrics.RecordDecorated(ctx, h.Name(), modeSingle, 1)

		resp, err := h.Request(ctx, &protocol.Decorate{Entry: entry})
		if err != nil {
			if ctx.Err() == nil {
				d.recordFailure(h.Name(), entry.Path, err)
			}
			continue
		}
		out[i].Merge(resp.(*protocol.DecoratedResponse).Entry)
		d.dropOrphans(h.Name(), &out[i])
		succeeded = true
	}

	if succeeded {
		d.health.RecordSuccess(h.Name())
	}
	return out
}

// dropOrphans removes field types a plugin declared without setting the field.
func (d *Dispatcher) dropOrphans(plugin string, e *protocol.Entry) {
	if dropped := e.DropOrphanFieldTypes(); len(dropped) > 0 {
		d.log.WithFields(logrus.Fields{
			"plugin": plugin,
			"path":   e.Path,
		}).Debugf("Dropped field types without a field: %v", dropped)
	}
}

// recordFailure adds exactly one error record for a failed entry, plus any
// missing dependencies the plugin reported.
func (d *Dispatcher) recordFailure(plugin, path string, err error) {
	d.health.RecordError(plugin, fmt.Sprintf("decorate %s: %v", path, err))

	var unsupported *UnsupportedRequestError
	if errors.As(err, &unsupported) {
		for _, dep := range unsupported.MissingDependencies {
			d.health.RecordMissingDependency(plugin, dep)
		}
	}
}
