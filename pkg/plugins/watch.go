package plugins

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/llx/pkg/dylib"
)

// watchDebounce is how long a new file must stay quiet before it is loaded, so
// a library still being copied into place is not opened half-written.
const watchDebounce = 500 * time.Millisecond

// Watch loads libraries created in the plugin directories into registry until
// ctx is done. Plugins already loaded are never reloaded: a change to a loaded
// library is only logged. Loads happen one at a time on the watch goroutine.
func (l *Loader) Watch(ctx context.Context, registry *Registry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range l.pluginDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	l.log.Infof("Watching plugin directories: %v", l.pluginDirs)

	debounce := newDebouncer(watchDebounce, 16)
	defer debounce.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !dylib.IsCandidate(event.Name) {
				continue
			}
			switch {
			case registry.hasPath(canonicalPath(event.Name)):
				if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					l.log.Warnf("Loaded plugin library %s changed on disk (%s); restart to pick it up", event.Name, event.Op)
				}
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				debounce.schedule(event.Name)
			}

		case path := <-debounce.ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if registry.hasPath(canonicalPath(path)) {
				continue
			}
			// Load logs rejections itself.
			_, _ = l.Load(ctx, registry, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warnf("Plugin watcher error: %v", err)
		}
	}
}

// debouncer delivers a path on ready once no schedule call for it has been
// made for delay.
type debouncer struct {
	delay time.Duration
	ready chan string
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	// timers scheduled or firing
	wg sync.WaitGroup
}

func newDebouncer(delay time.Duration, buffer int) *debouncer {
	return &debouncer{
		delay:   delay,
		ready:   make(chan string, buffer),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}
}

func (d *debouncer) schedule(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.pending[path]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[path] == timer {
			delete(d.pending, path)
		}
		d.mu.Unlock()
		select {
		case d.ready <- path:
		case <-d.done:
		}
	})
	d.pending[path] = timer
}

// stop cancels pending timers and waits for fired ones to give up delivering.
func (d *debouncer) stop() {
	close(d.done)
	d.mu.Lock()
	for path, t := range d.pending {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.pending, path)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
