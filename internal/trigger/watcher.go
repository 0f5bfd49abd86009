package trigger

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// defaultDebounceInterval is how long the watcher waits for further writes
// before emitting a trigger. Editors and config management tools write files
// in bursts.
const defaultDebounceInterval = 500 * time.Millisecond

// ConfigWatcher watches the deployment configuration file and enqueues a
// config-changed trigger on the dispatcher whenever it changes.
type ConfigWatcher struct {
	mu sync.Mutex

	configPath       string
	dispatcher       *Dispatcher
	watcher          *fsnotify.Watcher
	debounceInterval time.Duration
	pending          *time.Timer
	running          bool
}

// NewConfigWatcher creates a watcher for the given deployment file. A zero
// debounce interval selects the default.
func NewConfigWatcher(configPath string, dispatcher *Dispatcher, debounceInterval time.Duration) *ConfigWatcher {
	if debounceInterval == 0 {
		debounceInterval = defaultDebounceInterval
	}
	return &ConfigWatcher{
		configPath:       configPath,
		dispatcher:       dispatcher,
		debounceInterval: debounceInterval,
	}
}

// Start begins watching. The watch is placed on the containing directory:
// most tools replace config files by rename, which would silently detach a
// watch on the file itself.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.running = true
	w.mu.Unlock()

	if err := watcher.Add(filepath.Dir(w.configPath)); err != nil {
		w.Stop()
		return err
	}

	go w.processEvents(ctx)

	logging.Info("ConfigWatcher", "Watching %s for configuration changes", w.configPath)
	return nil
}

// processEvents turns filesystem events on the deployment file into
// debounced triggers.
func (w *ConfigWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "Filesystem watcher error")
		}
	}
}

func (w *ConfigWatcher) handleFsEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceInterval, func() {
		logging.Debug("ConfigWatcher", "Deployment configuration changed: %s", w.configPath)
		w.dispatcher.Trigger(core.Trigger{
			Kind:      core.TriggerConfigChanged,
			Source:    w.configPath,
			Timestamp: time.Now(),
		})
	})
}

func (w *ConfigWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

// Stop closes the watcher.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			logging.Error("ConfigWatcher", err, "Error closing filesystem watcher")
		}
		w.watcher = nil
	}

	logging.Info("ConfigWatcher", "Stopped watching %s", w.configPath)
	return nil
}
