// Package watcher watches the uploads directory with fsnotify. Files live at
// <root>/<userID>/<filename>; creates and writes are debounced into ingest
// callbacks and removals into delete callbacks.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Khandelwalgov/AskPro/pkg/utils"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Upload identifies a file in the uploads tree.
type Upload struct {
	UserID   string
	Filename string // slash-separated, relative to the user's folder
	Path     string
}

// Watcher watches the uploads root and invokes callbacks on file changes.
type Watcher struct {
	root        string
	extensions  []string
	onIngest    func(Upload)
	onRemove    func(Upload)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the uploads root. extensions filter which
// files are reported (empty = all). onIngest and onRemove may be nil.
func NewWatcher(root string, extensions []string, onIngest, onRemove func(Upload), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		extensions:  extensions,
		onIngest:    onIngest,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched uploads directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start creates the root if needed and starts watching. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		w.mu.Unlock()
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fw.Close()
		w.watcher = nil
		w.mu.Unlock()
		return err
	}
	w.started = true
	w.logger.Debug("watcher starting", zap.String("root", w.root), zap.Strings("extensions", w.extensions))
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if up, ok := w.resolve(path); ok && info.Mode().IsRegular() {
			w.debounceIngest(up)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if up, ok := w.resolve(path); ok && w.onRemove != nil {
			w.onRemove(up)
		}
	}
}

// handleNewDirectory watches a directory that appeared under the root (a new
// user folder or a folder copied into one) and ingests the files already in it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if err := w.addTreeLocked(dir); err != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	w.mu.Unlock()
	w.syncDirectory(dir)
}

func (w *Watcher) addTreeLocked(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// resolve maps path to its upload. Paths directly under the root, hidden
// files and files with filtered extensions are not uploads.
func (w *Watcher) resolve(path string) (Upload, bool) {
	return resolve(w.root, path, w.extensions)
}

func resolve(root, path string, extensions []string) (Upload, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || !inDir(root, path) {
		return Upload{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return Upload{}, false
	}
	for _, p := range parts {
		if p == "" || p == "." || isHidden(p) {
			return Upload{}, false
		}
	}
	if !matchExtension(path, extensions) {
		return Upload{}, false
	}
	return Upload{
		UserID:   parts[0],
		Filename: strings.Join(parts[1:], "/"),
		Path:     path,
	}, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceIngest(up Upload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[up.Path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, up.Path)
		w.mu.Unlock()
		w.logger.Debug("watcher ingesting file", zap.String("user", up.UserID), zap.String("filename", up.Filename))
		if w.onIngest != nil {
			w.onIngest(up)
		}
	})
	w.debounceMap[up.Path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) syncDirectory(dir string) {
	w.logger.Debug("watcher syncing directory", zap.String("dir", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if up, ok := w.resolve(path); ok && w.onIngest != nil {
			w.onIngest(up)
		}
		return nil
	})
}

// SyncExistingFiles reports every upload already under the root to onIngest.
// Call it after Start to pick up files that arrived while nothing was watching.
func (w *Watcher) SyncExistingFiles() {
	w.syncDirectory(w.root)
}

// Stop stops the watcher and releases resources. Pending debounced ingests are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
