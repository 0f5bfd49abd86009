package trigger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// RelationChangeFunc is invoked with the relation name whose negotiated data
// changed. The serve loop wires it to the matching handler's OnChanged.
type RelationChangeFunc func(relationName string, trigger core.Trigger)

// RelationWatcher watches the relation data directory, where the substrate
// lands one YAML file per relation, and reports per-relation changes.
type RelationWatcher struct {
	mu sync.Mutex

	dir              string
	onChange         RelationChangeFunc
	watcher          *fsnotify.Watcher
	debounceInterval time.Duration
	pending          map[string]*time.Timer
	running          bool
}

// NewRelationWatcher creates a watcher for the given relation data
// directory. A zero debounce interval selects the default.
func NewRelationWatcher(dir string, onChange RelationChangeFunc, debounceInterval time.Duration) *RelationWatcher {
	if debounceInterval == 0 {
		debounceInterval = defaultDebounceInterval
	}
	return &RelationWatcher{
		dir:              dir,
		onChange:         onChange,
		debounceInterval: debounceInterval,
		pending:          make(map[string]*time.Timer),
	}
}

// Start begins watching, creating the data directory if needed.
func (w *RelationWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.running = true
	w.mu.Unlock()

	if err := watcher.Add(w.dir); err != nil {
		w.Stop()
		return err
	}

	go w.processEvents(ctx)

	logging.Info("RelationWatcher", "Watching %s for relation data changes", w.dir)
	return nil
}

func (w *RelationWatcher) processEvents(ctx context.Context) {
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
			logging.Error("RelationWatcher", err, "Filesystem watcher error")
		}
	}
}

func (w *RelationWatcher) handleFsEvent(event fsnotify.Event) {
	name := relationFromPath(event.Name)
	if name == "" {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[name]; ok {
		timer.Stop()
	}
	w.pending[name] = time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		logging.Debug("RelationWatcher", "Relation data changed: %s", name)
		w.onChange(name, core.Trigger{
			Kind:      core.TriggerRelationChanged,
			Source:    name,
			Timestamp: time.Now(),
		})
	})
}

// relationFromPath extracts the relation name from a data file path.
// Request files written back by handlers are ignored.
func relationFromPath(path string) string {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return ""
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.HasSuffix(name, ".request") {
		return ""
	}
	return name
}

func (w *RelationWatcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
}

// Stop closes the watcher.
func (w *RelationWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			logging.Error("RelationWatcher", err, "Error closing filesystem watcher")
		}
		w.watcher = nil
	}

	logging.Info("RelationWatcher", "Stopped watching %s", w.dir)
	return nil
}
