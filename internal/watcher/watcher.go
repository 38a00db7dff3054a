// Package watcher reports changed .nu files under a project tree.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"nubridge/internal/event"
	"nubridge/internal/trace"
)

// DefaultDebounce is the per-path quiet period before a change is published.
const DefaultDebounce = 500 * time.Millisecond

var ErrClosed = errors.New("watcher closed")

// Publisher receives debounced file.changed events. *event.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, topic event.Topic, payload any) error
}

// Options configure a Watcher.
type Options struct {
	Root     string
	Debounce time.Duration
	Ignore   []string // extra gitignore-style patterns
	Tracer   trace.Tracer
}

// Stats counts watcher activity.
type Stats struct {
	Dirs      int
	Raw       uint64 // fsnotify events seen
	Published uint64
	Errors    uint64
}

// Watcher follows a directory tree with fsnotify, adding directories as
// they appear.
type Watcher struct {
	fsw      *fsnotify.Watcher
	filter   *Filter
	debounce time.Duration
	tracer   trace.Tracer

	mu     sync.Mutex
	dirs   map[string]struct{}
	closed bool

	raw, published, errCount atomic.Uint64
}

// New creates a Watcher and registers every directory under opts.Root.
func New(opts Options) (*Watcher, error) {
	filter, err := NewFilter(opts.Root, opts.Ignore)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	tr := opts.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	delay := opts.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}
	w := &Watcher{
		fsw:      fsw,
		filter:   filter,
		debounce: delay,
		tracer:   tr,
		dirs:     make(map[string]struct{}),
	}
	if err := w.addTree(filter.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the watched root.
func (w *Watcher) Root() string { return w.filter.Root() }

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter.SkipDir(p) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	return nil
}

func (w *Watcher) forget(dir string) {
	w.mu.Lock()
	delete(w.dirs, dir)
	w.mu.Unlock()
}

// Run publishes debounced changes until ctx is done or the watcher closes.
func (w *Watcher) Run(ctx context.Context, pub Publisher) error {
	deb := NewDebouncer(w.debounce, func(path string) {
		w.published.Add(1)
		trace.Point(w.tracer, trace.ScopeFile, "watch", "changed", path)
		if err := pub.Publish(ctx, event.TopicFileChanged, event.File{Path: path}); err != nil {
			trace.Error(w.tracer, "watch", "publish", err, "path", path)
		}
	})
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			w.raw.Add(1)
			w.handle(ev, deb)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			w.errCount.Add(1)
			trace.Error(w.tracer, "watch", "fsnotify", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, deb *Debouncer) {
	path := filepath.Clean(ev.Name)
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.forget(path)
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			if !w.filter.SkipDir(path) {
				if err := w.addTree(path); err != nil {
					trace.Error(w.tracer, "watch", "add", err, "dir", path)
				}
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if w.filter.Reports(path) {
		deb.Trigger(path)
	}
}

// Stats returns activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	dirs := len(w.dirs)
	w.mu.Unlock()
	return Stats{
		Dirs:      dirs,
		Raw:       w.raw.Load(),
		Published: w.published.Load(),
		Errors:    w.errCount.Load(),
	}
}

// Close stops watching. Run returns ErrClosed afterwards.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}
