package plugins

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// decoratedFormat reports whether plugins take part in rendering format.
func decoratedFormat(format string) bool {
	return format == protocol.FormatDefault || format == protocol.FormatLong
}

// supporting filters handles down to those whose declared formats contain format.
func (r *Registry) supporting(ctx context.Context, handles []*Handle, format string) []*Handle {
	var out []*Handle
	for _, h := range handles {
		if r.caps.SupportedFormats(ctx, h).Contains(format) {
			out = append(out, h)
		}
	}
	return out
}

// Decorate runs every enabled plugin that supports format over entries and
// returns the decorated copies in input order. Plugins run concurrently, up to
// the configured worker count; their fields are applied in plugin name order,
// so a later plugin wins a field both set. Plugin failures leave entries
// undecorated by that plugin and are recorded in the health ledger.
func (r *Registry) Decorate(ctx context.Context, entries []protocol.Entry, format string) []protocol.Entry {
	out := make([]protocol.Entry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
	}
	if len(entries) == 0 || !decoratedFormat(format) {
		return out
	}

	handles, release := r.acquireEnabled()
	defer release()

	targets := r.supporting(ctx, handles, format)
	if len(targets) == 0 {
		return out
	}

	results := make([][]protocol.Entry, len(targets))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, h := range targets {
		g.Go(func() error {
			defer observability.RecoverPanicWithCallback(r.log, "decorate with plugin "+h.Name(), func(rec interface{}) {
				r.health.RecordError(h.Name(), fmt.Sprintf("decorate panicked: %v", rec))
			})
			results[i] = r.dispatcher.DecorateMany(ctx, h, entries, format)
			return nil
		})
	}
	_ = g.Wait()

	for _, decorated := range results {
		if decorated == nil {
			continue
		}
		for i := range out {
			applyDelta(&out[i], entries[i], decorated[i])
		}
	}
	return out
}

// DecorateEntry decorates a single entry. Results are cached per path and
// format until the set of plugins or their enabled state changes.
func (r *Registry) DecorateEntry(ctx context.Context, entry protocol.Entry, format string) protocol.Entry {
	out := entry.Clone()
	if !decoratedFormat(format) {
		return out
	}

	key := decorationKey{path: entry.Path, format: format}
	if cached, ok := r.decorations.Get(key); ok {
		out.Merge(cached)
		return out
	}

	handles, release := r.acquireEnabled()
	defer release()

	var fields protocol.Entry
	for _, h := range r.supporting(ctx, handles, format) {
		decorated := r.dispatcher.DecorateMany(ctx, h, []protocol.Entry{entry}, format)
		applyDelta(&fields, entry, decorated[0])
	}

	if len(fields.CustomFields) > 0 {
		r.decorations.Add(key, fields)
		out.Merge(fields)
	}
	return out
}

// FormatFields asks each enabled plugin supporting format to render its column
// for entry and returns the fields they produced, in plugin name order.
func (r *Registry) FormatFields(ctx context.Context, entry protocol.Entry, format string) []string {
	if !decoratedFormat(format) {
		return nil
	}

	handles, release := r.acquireEnabled()
	defer release()

	var fields []string
	for _, h := range r.supporting(ctx, handles, format) {
		caps := r.caps.Capabilities(ctx, h)
		if caps.Declared && !caps.Has(protocol.FeatureFormatField) {
			continue
		}

		resp, err := h.Request(ctx, &protocol.FormatField{Entry: entry, Format: format})
		if err != nil {
			var unsupported *UnsupportedRequestError
			if !errors.As(err, &unsupported) && ctx.Err() == nil {
				r.health.RecordError(h.Name(), fmt.Sprintf("format field %s: %v", entry.Path, err))
			}
			continue
		}
		if field := resp.(*protocol.FieldResponse).Field; field != nil {
			fields = append(fields, *field)
		}
	}
	return fields
}

// applyDelta copies into dst the fields decorated has that base lacks or holds
// with a different value.
func applyDelta(dst *protocol.Entry, base, decorated protocol.Entry) {
	var delta protocol.Entry
	for k, v := range decorated.CustomFields {
		if old, ok := base.CustomFields[k]; ok && old == v {
			continue
		}
		if delta.CustomFields == nil {
			delta.CustomFields = make(map[string]string)
		}
		delta.CustomFields[k] = v
	}
	for k, ft := range decorated.FieldTypes {
		if old, ok := base.FieldTypes[k]; ok && old == ft {
			continue
		}
		if delta.FieldTypes == nil {
			delta.FieldTypes = make(map[string]protocol.FieldType)
		}
		delta.FieldTypes[k] = ft
	}
	dst.Merge(delta)
}
