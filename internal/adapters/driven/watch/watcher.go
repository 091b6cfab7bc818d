// Package watch provides the recursive filesystem watcher behind the
// ingest daemon, built on fsnotify. It observes and reports paths; all
// filtering and processing decisions belong to the caller.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Watcher watches a root directory tree for new files. fsnotify does
// not recurse, so directories are registered individually and new ones
// are picked up from their create events.
type Watcher struct {
	root string
}

// New creates a watcher for the given root directory.
func New(root string) *Watcher {
	return &Watcher{root: root}
}

// Watch blocks, reporting created and moved-in file paths to emit
// until ctx is cancelled. The root must exist when Watch is called.
func (w *Watcher) Watch(ctx context.Context, emit func(path string)) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", w.root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.root, nil); err != nil {
		return err
	}
	logger.Debug("Watching %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			fi, err := os.Stat(event.Name)
			if err != nil {
				// Gone already; a short-lived temp file.
				continue
			}
			if fi.IsDir() {
				// Files may land in the new directory before its
				// watch is registered, so sweep it after adding.
				if err := addTree(fw, event.Name, emit); err != nil {
					logger.Warn("Failed to watch new directory %s: %v", event.Name, err)
				}
				continue
			}
			emit(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)
		}
	}
}

// addTree registers dir and every directory below it. When emit is
// non-nil, regular files found along the way are reported too.
func addTree(fw *fsnotify.Watcher, dir string, emit func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk; skip rather than abort.
			logger.Warn("Skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if emit != nil && d.Type().IsRegular() {
			emit(path)
		}
		return nil
	})
}
