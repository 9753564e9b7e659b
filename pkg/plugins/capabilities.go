package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/llx/pkg/observability"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// FormatSet is a sorted, duplicate-free list of output format names.
type FormatSet []string

func newFormatSet(formats []string) FormatSet {
	if len(formats) == 0 {
		return nil
	}
	set := append(FormatSet(nil), formats...)
	sort.Strings(set)
	out := set[:1]
	for _, f := range set[1:] {
		if f != out[len(out)-1] {
			out = append(out, f)
		}
	}
	return out
}

// Contains reports whether format is in the set.
func (s FormatSet) Contains(format string) bool {
	i := sort.SearchStrings(s, format)
	return i < len(s) && s[i] == format
}

// Capabilities is a plugin's answer to GetSupportedFormats.
type Capabilities struct {
	Formats  FormatSet
	Features []string
	// Declared is false when the plugin sent no feature list, in which case batch
	// support is discovered by probing.
	Declared  bool
	FetchedAt time.Time
}

// Has reports whether the plugin declared feature.
func (c Capabilities) Has(feature string) bool {
	for _, f := range c.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CapabilityCache memoizes each plugin's capabilities for the life of the
// process. Concurrent first lookups for one plugin share a single foreign call.
type CapabilityCache struct {
	mu      sync.RWMutex
	entries map[*Handle]Capabilities
	group   singleflight.Group

	health  *HealthLedger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCapabilityCache creates an empty cache. Failed queries are recorded in
// health when it is non-nil.
func NewCapabilityCache(health *HealthLedger, metrics *observability.Metrics) *CapabilityCache {
	return &CapabilityCache{
		entries: make(map[*Handle]Capabilities),
		health:  health,
		metrics: metrics,
		now:     time.Now,
	}
}

func (c *CapabilityCache) lookup(h *Handle) (Capabilities, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	caps, ok := c.entries[h]
	return caps, ok
}

// Capabilities returns h's capabilities, querying the plugin on first use only.
// A failed query is cached as the empty set.
func (c *CapabilityCache) Capabilities(ctx context.Context, h *Handle) Capabilities {
	if caps, ok := c.lookup(h); ok {
		c.metrics.RecordCapabilityLookup(true)
		return caps
	}

	key := fmt.Sprintf("%p", h)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if caps, ok := c.lookup(h); ok {
			return caps, nil
		}
		c.metrics.RecordCapabilityLookup(false)

		caps, err := c.fetch(ctx, h)
		if isContextError(err) {
			// Nothing was asked; leave the slot empty for the next caller.
			return caps, nil
		}
		c.mu.Lock()
		c.entries[h] = caps
		c.mu.Unlock()
		return caps, nil
	})
	return v.(Capabilities)
}

// SupportedFormats returns the formats h declared.
func (c *CapabilityCache) SupportedFormats(ctx context.Context, h *Handle) FormatSet {
	return c.Capabilities(ctx, h).Formats
}

func (c *CapabilityCache) fetch(ctx context.Context, h *Handle) (Capabilities, error) {
	caps := Capabilities{FetchedAt: c.now()}

	resp, err := h.Request(ctx, &protocol.GetSupportedFormats{})
	if err != nil {
		if ctx.Err() == nil && c.health != nil {
			c.health.RecordError(h.Name(), fmt.Sprintf("capability query: %v", err))
		}
		return caps, err
	}

	formats := resp.(*protocol.FormatsResponse)
	caps.Formats = newFormatSet(formats.Formats)
	caps.Features = append([]string(nil), formats.Capabilities...)
	caps.Declared = len(formats.Capabilities) > 0
	return caps, nil
}

// forget drops h's entry once h has left the registry.
func (c *CapabilityCache) forget(h *Handle) {
	c.mu.Lock()
	delete(c.entries, h)
	c.mu.Unlock()
}
