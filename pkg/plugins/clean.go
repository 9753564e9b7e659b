package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/platinummonkey/llx/pkg/dylib"
	"github.com/platinummonkey/llx/pkg/protocol"
)

// CleanReport lists what Clean found in a plugin directory.
type CleanReport struct {
	Valid   []string
	Removed []string
	// Invalid maps each rejected library to the reason it was rejected.
	Invalid map[string]error
	// Failed maps invalid libraries that could not be deleted to the error.
	Failed map[string]error
}

// Clean validates every plugin library in dir and deletes the invalid ones. A
// library that belongs to a registered plugin is checked through the existing
// handle; if it no longer answers, the plugin is unregistered and closed
// before its file is removed.
func (r *Registry) Clean(ctx context.Context, loader *Loader, dir string) (*CleanReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	report := &CleanReport{
		Invalid: make(map[string]error),
		Failed:  make(map[string]error),
	}

	for _, entry := range entries {
		if entry.IsDir() || !dylib.IsCandidate(entry.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		path := filepath.Join(dir, entry.Name())
		verr := r.validateLoaded(ctx, path)
		if errors.Is(verr, errNotLoaded) {
			verr = loader.Validate(ctx, path)
		}
		if verr == nil {
			report.Valid = append(report.Valid, path)
			continue
		}
		report.Invalid[path] = verr
		r.log.Warnf("Invalid plugin %s: %v", path, verr)

		if name, ok := r.nameForPath(canonicalPath(path)); ok {
			if err := r.Unregister(name); err != nil && !errors.Is(err, ErrPluginNotFound) {
				r.log.WithField("plugin", name).Warnf("Failed to close plugin before removal: %v", err)
			}
		}

		if err := os.Remove(path); err != nil {
			report.Failed[path] = err
			continue
		}
		report.Removed = append(report.Removed, path)
		r.log.Infof("Removed invalid plugin: %s", path)
	}
	return report, nil
}

var errNotLoaded = errors.New("library is not loaded")

// validateLoaded repeats the name handshake over the registered handle for
// path, if there is one.
func (r *Registry) validateLoaded(ctx context.Context, path string) error {
	name, ok := r.nameForPath(canonicalPath(path))
	if !ok {
		return errNotLoaded
	}
	h, release, err := r.acquire(name)
	if err != nil {
		return errNotLoaded
	}
	defer release()

	resp, err := h.Request(ctx, &protocol.GetName{})
	if err != nil {
		return &LoadError{Path: path, Err: fmt.Errorf("%w: name handshake: %v", ErrMalformedPlugin, err)}
	}
	if got := resp.(*protocol.NameResponse).Name; got != name {
		return &LoadError{Path: path, Err: fmt.Errorf("%w: plugin now reports name %q, loaded as %q", ErrMalformedPlugin, got, name)}
	}
	return nil
}
