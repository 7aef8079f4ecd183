package vectordb

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
)

// Invalidator is implemented by Registry.
type Invalidator interface {
	Invalidate(jurisdiction string)
}

// Watcher invalidates a jurisdiction whenever a snapshot file under
// <root>/<jurisdiction>/ is created, written, removed or renamed.
type Watcher struct {
	root    string
	target  Invalidator
	watcher *fsnotify.Watcher
}

func NewWatcher(root string, target Invalidator) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)
	if err := w.Add(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(root, e.Name())); err != nil {
				logger.Warnf("snapshot watcher: cannot watch %s: %v", e.Name(), err)
			}
		}
	}
	return &Watcher{root: root, target: target, watcher: w}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("snapshot watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch len(parts) {
	case 1:
		// A new jurisdiction directory.
		if event.Op&fsnotify.Create == fsnotify.Create {
			if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					logger.Warnf("snapshot watcher: cannot watch %s: %v", rel, err)
				}
			}
		}
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.target.Invalidate(parts[0])
		}
	case 2:
		if _, ok := indexNameFromFile(parts[1]); !ok {
			return
		}
		if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
			return
		}
		logger.Debugf("snapshot watcher: %s %s", event.Op, rel)
		w.target.Invalidate(parts[0])
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
