// Package watcher watches a corpus directory with fsnotify and rebuilds the
// index once changes settle.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// RebuildFunc rebuilds the index from the watched corpus.
type RebuildFunc func(ctx context.Context) error

// Watcher watches a corpus root and calls a RebuildFunc after a quiet
// period following any change to a matching file. Rebuilds never overlap;
// changes seen during a rebuild schedule one more.
type Watcher struct {
	root      string
	suffix    string
	recursive bool
	rebuild   RebuildFunc
	debounce  time.Duration
	ignore    []string
	logger    *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	running  bool
	dirty    bool
	rebuilds int
	ctx      context.Context
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watcher events and rebuild outcomes.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before a rebuild.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips events under the given directories, typically the index
// directory when it lives inside the corpus.
func WithIgnore(dirs ...string) WatcherOption {
	return func(w *Watcher) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// NewWatcher creates a watcher over root for files whose names end with
// suffix (empty matches every file).
func NewWatcher(root, suffix string, recursive bool, rebuild RebuildFunc, opts ...WatcherOption) *Watcher {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	w := &Watcher{
		root:      filepath.Clean(root),
		suffix:    suffix,
		recursive: recursive,
		rebuild:   rebuild,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	w.ctx = ctx
	w.logger.Info("watching corpus",
		zap.String("root", w.root),
		zap.String("suffix", w.suffix),
		zap.Bool("recursive", w.recursive),
		zap.Duration("debounce", w.debounce))
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
	if !inDir(w.root, path) || w.ignored(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.recursive && filepath.Dir(path) != path && !hidden(filepath.Base(path)) {
				w.mu.Lock()
				if w.watcher != nil {
					if err := w.addTreeLocked(path); err != nil {
						w.logger.Warn("watch new directory", zap.String("path", path), zap.Error(err))
					}
				}
				w.mu.Unlock()
				w.schedule()
			}
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.matchSuffix(path) {
		w.schedule()
	}
}

// addTreeLocked watches dir, and with recursion every non-hidden directory
// below it.
func (w *Watcher) addTreeLocked(dir string) error {
	if !w.recursive {
		return w.watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (hidden(d.Name()) || w.ignored(path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, d := range w.ignore {
		if inDir(d, path) {
			return true
		}
	}
	return false
}

func (w *Watcher) matchSuffix(path string) bool {
	return matchSuffix(path, w.suffix)
}

func matchSuffix(path, suffix string) bool {
	name := filepath.Base(path)
	if hidden(name) {
		return false
	}
	return strings.HasSuffix(name, suffix)
}

func hidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// inDir reports whether path is dir or lies below it.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// schedule restarts the quiet period.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.running {
		w.dirty = true
		w.mu.Unlock()
		return
	}
	w.running = true
	ctx := w.ctx
	w.mu.Unlock()

	for {
		start := time.Now()
		err := w.rebuild(ctx)
		w.mu.Lock()
		w.rebuilds++
		w.mu.Unlock()
		if err != nil {
			w.logger.Error("rebuild failed", zap.String("root", w.root), zap.Error(err))
		} else {
			w.logger.Info("index rebuilt", zap.String("root", w.root), zap.Duration("elapsed", time.Since(start)))
		}

		w.mu.Lock()
		if !w.dirty || !w.started {
			w.running = false
			w.dirty = false
			w.mu.Unlock()
			return
		}
		w.dirty = false
		w.mu.Unlock()
	}
}

// Rebuilds returns how many rebuilds have run.
func (w *Watcher) Rebuilds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

// Stop stops the watcher and releases resources. A rebuild in progress is
// allowed to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
