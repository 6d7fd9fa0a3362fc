package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTargets holds callbacks that fire when specific config files
// change. Used for hot-reloading the ruleset without restarting whatever
// long-running process (e.g. the dashboard server) holds a rules.Store
// open — this never watches the sort source directory itself, which is
// out of scope for the core.
type WatchTargets struct {
	// OnRulesChange fires when the configured rules file is written or
	// created. Typically triggers rules.Store.Reload().
	OnRulesChange func()
}

// Watcher monitors a rules file's containing directory for changes
// using fsnotify, firing OnRulesChange when that file is written.
//
// The watcher runs a background goroutine that processes fsnotify events.
// Call Close() to stop the watcher and release resources.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	rulesName string
	done      chan struct{}
}

// NewWatcher creates a file watcher on rulesFile's containing directory
// (fsnotify watches directories, not individual files, since editors
// commonly replace a file via rename-into-place rather than in-place
// write).
//
// The watcher immediately starts processing events in a background
// goroutine. Events are not debounced: every write or create event on
// the rules file calls OnRulesChange, so rapid successive writes can
// trigger several reloads.
func NewWatcher(rulesFile string, targets WatchTargets) (*Watcher, error) {
	dir := filepath.Dir(rulesFile)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	// Watch the entire config directory. fsnotify will send events for
	// any file created, written, renamed, or removed in this directory.
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fw,
		rulesName: filepath.Base(rulesFile),
		done:      make(chan struct{}),
	}

	// Start the event processing goroutine.
	go w.processEvents(targets)

	slog.Info("rules file watcher started", "dir", dir, "file", w.rulesName)
	return w, nil
}

// processEvents reads fsnotify events and dispatches to the appropriate
// callback. Runs in a background goroutine until Close() is called.
func (w *Watcher) processEvents(targets WatchTargets) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// We only care about write and create events — not remove
			// or rename, which would indicate the file was deleted.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if filepath.Base(event.Name) != w.rulesName {
				continue
			}
			slog.Info("rules file changed, triggering reload", "file", w.rulesName)
			if targets.OnRulesChange != nil {
				targets.OnRulesChange()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the file watcher goroutine and releases the underlying
// fsnotify watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	// Signal the goroutine to stop.
	select {
	case <-w.done:
		// Already closed.
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
