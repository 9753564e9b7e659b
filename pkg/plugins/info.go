package plugins

import (
	"context"
	"time"
)

// PluginInfo describes one registered plugin for management commands.
type PluginInfo struct {
	Name            string
	Version         string
	Description     string
	ProtocolVersion uint32
	Path            string
	LoadedAt        time.Time
	Enabled         bool
	Formats         FormatSet
	Features        []string
	Health          HealthRecord
}

// Describe returns information about every registered plugin, sorted by name.
func (r *Registry) Describe(ctx context.Context) []PluginInfo {
	handles := r.List()
	infos := make([]PluginInfo, 0, len(handles))

	for _, h := range handles {
		pinned, release, err := r.acquire(h.Name())
		if err != nil {
			// Unregistered since List.
			continue
		}

		version, description := pinned.Metadata(ctx)
		caps := r.caps.Capabilities(ctx, pinned)
		infos = append(infos, PluginInfo{
			Name:            pinned.Name(),
			Version:         version,
			Description:     description,
			ProtocolVersion: pinned.ProtocolVersion(),
			Path:            pinned.Path(),
			LoadedAt:        pinned.LoadedAt(),
			Enabled:         r.IsEnabled(pinned.Name()),
			Formats:         caps.Formats,
			Features:        caps.Features,
			Health:          r.health.Snapshot(pinned.Name()),
		})
		release()
	}
	return infos
}
