// Package watch re-triggers scenario runs when scenario files change.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"choreo/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounceInterval is the time to wait after the last change
	// before OnChange fires.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is the fallback polling interval when fsnotify is
	// not available.
	DefaultPollInterval = 2 * time.Second
)

// Config holds configuration for the scenario watcher.
type Config struct {
	// Root is a scenario file or a directory watched recursively.
	Root string

	// Debounce collapses bursts of changes into one callback.
	Debounce time.Duration

	// PollInterval is used when fsnotify cannot watch Root.
	PollInterval time.Duration

	// OnChange is called once per burst of changes.
	OnChange func()
}

// Watcher monitors scenario and schema files. It uses fsnotify and falls
// back to polling modification times.
type Watcher struct {
	mu sync.Mutex

	config    Config
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	// lastModTimes tracks relevant files for fallback polling
	lastModTimes map[string]time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// New creates a watcher; call Start to begin watching.
func New(config Config) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounceInterval
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		config:       config,
		lastModTimes: make(map[string]time.Time),
	}
}

// Start begins watching. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if _, err := os.Stat(w.config.Root); err != nil {
		return err
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("Watcher", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges()
		return nil
	}

	if err := w.addTree(watcher, w.config.Root); err != nil {
		logging.Warn("Watcher", "Failed to watch %s, falling back to polling: %v", w.config.Root, err)
		watcher.Close()
		go w.pollForChanges()
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(watcher, watcher.Events, watcher.Errors)

	logging.Info("Watcher", "Watching %s for scenario changes", w.config.Root)
	return nil
}

// addTree watches root's directory, or every directory below root.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(watcher *fsnotify.Watcher, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(watcher, event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(watcher, event.Name); err != nil {
				logging.Warn("Watcher", "Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}
	if !w.isRelevantFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("Watcher", "Scenario file changed: %s", event.Name)
	w.triggerDebounced()
}

// isRelevantFile accepts scenario files and the JSON schemas they reference.
// When Root is a single file only that file is relevant.
func (w *Watcher) isRelevantFile(path string) bool {
	if info, err := os.Stat(w.config.Root); err == nil && !info.IsDir() {
		return filepath.Clean(path) == filepath.Clean(w.config.Root)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.checkForChanges()

	for {
		select {
		case <-w.stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("Watcher", "Scenario changes detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

// checkForChanges rescans Root and reports whether any relevant file was
// added, removed or modified since the previous scan.
func (w *Watcher) checkForChanges() bool {
	current := make(map[string]time.Time)
	_ = filepath.WalkDir(w.config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.isRelevantFile(path) {
			return nil
		}
		if info, err := d.Info(); err == nil {
			current[path] = info.ModTime()
		}
		return nil
	})

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := len(current) != len(w.lastModTimes)
	for path, mod := range current {
		if last, ok := w.lastModTimes[path]; !ok || mod.After(last) {
			changed = true
		}
	}
	initial := len(w.lastModTimes) == 0
	w.lastModTimes = current
	return changed && !initial
}

// Stop gracefully stops the watcher. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("Watcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Info("Watcher", "Stopped watching %s", w.config.Root)
	return nil
}

// IsRunning returns whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
