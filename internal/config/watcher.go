package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/modes1090/internal/monitoring"
)

// DefaultDebounce coalesces the burst of events an editor produces on save.
const DefaultDebounce = 100 * time.Millisecond

// ConfigWatcher reloads a configuration file when it changes on disk.
type ConfigWatcher struct {
	path     string
	Debounce time.Duration

	mu       sync.Mutex
	debounce *time.Timer
}

// NewConfigWatcher returns a watcher for the file at path.
func NewConfigWatcher(path string) *ConfigWatcher {
	return &ConfigWatcher{path: filepath.Clean(path), Debounce: DefaultDebounce}
}

// Run watches the file's directory until ctx is done. Each successful
// reload is passed to onChange; a file that fails to load or validate is
// logged and ignored.
func (w *ConfigWatcher) Run(ctx context.Context, onChange func(*ReceiverConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	defer w.stop()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload(ctx, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("[Config] watcher error: %v", err)
		}
	}
}

func (w *ConfigWatcher) debounceReload(ctx context.Context, onChange func(*ReceiverConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		cfg, err := Load(w.path)
		if err != nil {
			monitoring.Logf("[Config] ignoring change to %s: %v", w.path, err)
			return
		}
		monitoring.Logf("[Config] reloaded %s", w.path)
		onChange(cfg)
	})
}

func (w *ConfigWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}
