package session

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long Watch waits after the last change before syncing.
const DefaultDebounce = 500 * time.Millisecond

// SyncResult reports one sync triggered by Watch.
type SyncResult struct {
	Files   int
	Changed []string
	Err     error
}

// Watcher re-syncs the declared files of a session whenever they change.
type Watcher struct {
	session  *Session
	bundle   Bundle
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	// OnSync, when set, is called after each sync.
	OnSync func(SyncResult)
}

// NewWatcher watches every directory under the project root except the
// ones a bundle never declares files in.
func (s *Session) NewWatcher(b Bundle, debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		session:  s,
		bundle:   b,
		watcher:  watcher,
		debounce: debounce,
		logger:   s.logger().WithField("component", "watch"),
		pending:  map[string]bool{},
	}
	if err := w.addTree(s.Workspace.LocalRoot); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.session.Workspace.LocalRoot && ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debugf("watching %s", path)
		return nil
	})
}

func ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

// Run blocks until ctx is cancelled, syncing after each quiet period that
// follows a change to a declared file.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("watcher error: %v", err)
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !ignoredDir(info.Name()) {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).Warnf("failed to watch %s", event.Name)
			}
			return
		}
	}
	rel, err := filepath.Rel(w.session.Workspace.LocalRoot, event.Name)
	if err != nil || !w.bundle.Matches(filepath.ToSlash(rel)) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.ToSlash(rel)] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		changed = append(changed, rel)
	}
	w.pending = map[string]bool{}
	w.mu.Unlock()
	sort.Strings(changed)

	if ctx.Err() != nil || len(changed) == 0 {
		return
	}
	n, err := w.session.Sync(ctx, w.bundle, false)
	if err != nil {
		w.logger.WithError(err).Error("sync failed")
	} else {
		w.logger.WithFields(logrus.Fields{"changed": len(changed), "files": n}).Info("synced")
	}
	if w.OnSync != nil {
		w.OnSync(SyncResult{Files: n, Changed: changed, Err: err})
	}
}
