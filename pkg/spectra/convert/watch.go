package convert

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// Watcher converts dataset files as they appear under watched directories.
type Watcher struct {
	conv    *Converter
	watcher *fsnotify.Watcher
	paths   map[string]bool
	mu      sync.RWMutex
	closed  bool
}

// NewWatcher returns a watcher that hands new files to conv.
func NewWatcher(conv *Converter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		conv:    conv,
		watcher: fsw,
		paths:   make(map[string]bool),
	}, nil
}

// Watch adds root and all its subdirectories. Symlinks are not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return w.addTree(absRoot)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		logging.Get("convert").Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run handles events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get("convert").Error("watcher error", "error", err)
		}
	}
}

// handleEvent converts created or rewritten dataset files. Datasets are
// written through a temp file and a rename, so most arrive as a Create of
// the final name; a plain copy shows up as Create followed by Writes and is
// retried on each Write until it loads.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Lstat(event.Name)
		if err != nil || info.Mode()&fs.ModeSymlink != 0 {
			return
		}
		if info.IsDir() {
			// addWatch logs the directories it fails to add.
			_ = w.addTree(event.Name)
			return
		}
		w.convert(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.convert(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.forget(event.Name)
	}
}

func (w *Watcher) convert(path string) {
	if !IsSource(path) {
		return
	}
	w.conv.ConvertFile(path)
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
