// Package watcher imports files dropped into inbox directories. A Watcher
// reports debounced file changes under a set of roots; an Inbox turns those
// changes into document imports and deletions.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	defaultDebounce = 400 * time.Millisecond
	defaultRetry    = 2 * time.Second
)

// Watcher watches root directories and calls onChange once a file has been
// quiet for the debounce interval, and onRemove when it disappears.
type Watcher struct {
	extensions []string
	recursive  bool
	onChange   func(path string)
	onRemove   func(path string)
	debounce   time.Duration
	retry      time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	roots     []string
	watched   map[string][]string // root -> directories registered with fsnotify
	pending   map[string]*time.Timer
	fsw       *fsnotify.Watcher
	started   bool
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides how long a file must be quiet before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRetryDelay sets how long Requeue waits before reporting a file again.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.retry = d
		}
	}
}

// NewWatcher creates a watcher over roots. Only files whose extension is in
// extensions are reported; an empty list reports every file.
func NewWatcher(roots, extensions []string, recursive bool, onChange, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  recursive,
		onChange:   onChange,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		retry:      defaultRetry,
		watched:    make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil && !slices.Contains(w.roots, abs) {
			w.roots = append(w.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.LoggerOrNop(w.logger)
	return w
}

// Start registers the roots, creating missing ones, and processes events
// until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, root := range w.roots {
		if err := w.watchRootLocked(root); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.started = true
	w.logger.Debug("watcher started",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.onRemove != nil && matchExtension(path, w.extensions) {
			w.onRemove(path)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.addSubdirectory(path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
	}
}

// addSubdirectory starts watching a directory created or moved under a root
// and reports the files already inside it.
func (w *Watcher) addSubdirectory(dir string) {
	w.mu.Lock()
	fsw, recursive := w.fsw, w.recursive
	w.mu.Unlock()
	if fsw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	w.scan(dir)
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(root, path) {
			return true
		}
	}
	return false
}

// inDir reports whether path is dir or lies beneath it.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
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

// schedule (re)starts the quiet timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.startTimerLocked(path, w.debounce)
}

// Requeue reports path to onChange again after the retry delay. It is a
// no-op when a change for path is already pending or the watcher stopped.
func (w *Watcher) Requeue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; ok {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}
	w.startTimerLocked(path, w.retry)
}

func (w *Watcher) startTimerLocked(path string, d time.Duration) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if w.onChange != nil {
			w.onChange(path)
		}
	})
	w.pending[path] = t
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory starts watching root. With scanExisting, files already in it
// are reported in the background.
func (w *Watcher) AddDirectory(root string, scanExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if slices.Contains(w.roots, abs) {
		return nil
	}
	if w.fsw != nil {
		if err := w.watchRootLocked(abs); err != nil {
			return err
		}
	}
	w.roots = append(w.roots, abs)
	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("scan_existing", scanExisting))
	if scanExisting && w.fsw != nil {
		go w.scan(abs)
	}
	return nil
}

func (w *Watcher) watchRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.watched[root] = []string{root}
		return nil
	}
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.watched[root] = dirs
	return nil
}

// RemoveDirectory stops watching root. Documents imported from it are kept.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.roots, abs)
	if i < 0 {
		return nil
	}
	if w.fsw != nil {
		for _, dir := range w.watched[abs] {
			_ = w.fsw.Remove(dir)
		}
	}
	delete(w.watched, abs)
	w.roots = slices.Delete(w.roots, i, i+1)
	w.logger.Debug("watcher directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.roots)
}

// ScanExisting reports every matching file already present under the roots.
func (w *Watcher) ScanExisting() {
	for _, root := range w.Directories() {
		w.scan(root)
	}
}

func (w *Watcher) scan(root string) {
	if w.onChange == nil {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.onChange(path)
		}
		return nil
	})
}

// Stop releases the fsnotify watcher and drops pending notifications.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.fsw = nil
	w.started = false
	w.mu.Unlock()

	w.closeOnce.Do(func() { close(w.done) })
	_ = fsw.Close()
}
