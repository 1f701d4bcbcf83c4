package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is re-embedded.
const DefaultDebounce = 400 * time.Millisecond

// Watcher reports changes to the files a Walker would ingest. Rapid writes to
// one file are coalesced into a single change callback. Callbacks for one
// path run one at a time in event order.
type Watcher struct {
	walker   *Walker
	onChange func(File)
	onRemove func(File)
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	timers map[string]*time.Timer
	queues map[string]*pathQueue
}

// pathQueue holds the callbacks waiting to run for one path.
type pathQueue struct {
	pending []func()
	running bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

func NewWatcher(walker *Walker, onChange, onRemove func(File), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		walker:   walker,
		onChange: onChange,
		onRemove: onRemove,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		timers:   make(map[string]*time.Timer),
		queues:   make(map[string]*pathQueue),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run watches the walker root until ctx is cancelled. Pending debounced
// changes are dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()
	defer w.stop()

	if err := w.addTree(w.walker.Root()); err != nil {
		return err
	}
	w.logger.Info("watching", "root", w.walker.Root(), "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.logger.Debug("watcher event", "op", ev.Op.String(), "path", ev.Name)

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(ev.Name)
			return
		}
		if f, ok := w.walker.Match(ev.Name); ok {
			w.debounceChange(f)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
		if f, ok := w.walker.Match(ev.Name); ok && w.onRemove != nil {
			w.enqueue(f.AbsPath, func() { w.onRemove(f) })
		}
	}
}

// handleNewDirectory watches a directory created or moved under the root and
// reports every file already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if rel, err := filepath.Rel(w.walker.Root(), dir); err == nil && w.walker.SkipsDir(rel) {
		return
	}
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("watch directory failed", "path", dir, "error", err)
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if f, ok := w.walker.Match(path); ok {
			w.debounceChange(f)
		}
		return nil
	})
}

func (w *Watcher) addTree(root string) error {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.walker.Root() {
			if rel, err := filepath.Rel(w.walker.Root(), path); err == nil && w.walker.SkipsDir(rel) {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) debounceChange(f File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[f.AbsPath]; ok {
		t.Stop()
	}
	w.timers[f.AbsPath] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, f.AbsPath)
		w.mu.Unlock()
		if w.onChange != nil {
			w.enqueue(f.AbsPath, func() { w.onChange(f) })
		}
	})
}

// enqueue schedules fn after every callback already queued for path. A single
// goroutine drains each path's queue, so a slow sync for one file never
// overlaps a later event for the same file.
func (w *Watcher) enqueue(path string, fn func()) {
	w.mu.Lock()
	q, ok := w.queues[path]
	if !ok {
		q = &pathQueue{}
		w.queues[path] = q
	}
	q.pending = append(q.pending, fn)
	if q.running {
		w.mu.Unlock()
		return
	}
	q.running = true
	w.mu.Unlock()
	go w.drain(path, q)
}

func (w *Watcher) drain(path string, q *pathQueue) {
	for {
		w.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			delete(w.queues, path)
			w.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending = q.pending[1:]
		w.mu.Unlock()
		fn()
	}
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}
