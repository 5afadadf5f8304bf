package snapshot

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher signals when a probe file changes so a new window is seen before
// the next poll tick. It watches the parent directory, which also catches
// probes that replace the file by rename, and falls back to stat polling when
// fsnotify is unavailable or fails.
type Watcher struct {
	// path is the probe file being monitored.
	path string
	// events is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	// exited is closed when the watch goroutine returns.
	exited       chan struct{}
	once         sync.Once
	polling      atomic.Bool
	pollInterval time.Duration
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval sets the stat interval used in polling mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollInterval = d }
}

// withForcedPolling skips fsnotify. Tests use it to exercise the fallback.
func withForcedPolling() WatcherOption {
	return func(w *Watcher) { w.polling.Store(true) }
}

// NewWatcher starts watching path. The file need not exist yet, but its
// directory should.
func NewWatcher(path string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.polling.Load() {
		go w.run(nil)
		return w
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.run(nil)
		return w
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		slog.Info("cannot watch probe directory, falling back to polling", "path", path, "error", err)
		fsw.Close()
		w.polling.Store(true)
		go w.run(nil)
		return w
	}
	go w.run(fsw)
	return w
}

// Events receives a signal each time the probe file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using stat polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.done)
	})
	<-w.exited
	return nil
}

// run owns fsw: it closes it on exit or when switching to polling.
func (w *Watcher) run(fsw *fsnotify.Watcher) {
	defer close(w.exited)
	if fsw != nil {
		if !w.watch(fsw) {
			return
		}
		w.polling.Store(true)
	}
	w.poll()
}

// watch forwards changes of the probe file. It returns true when fsnotify
// failed and the caller should poll instead.
func (w *Watcher) watch(fsw *fsnotify.Watcher) bool {
	defer fsw.Close()
	name := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return false
		case event, ok := <-fsw.Events:
			if !ok {
				return false
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return false
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			return true
		}
	}
}

// poll stats the probe file and signals when its modification time or size
// changes.
func (w *Watcher) poll() {
	var lastMod time.Time
	var lastSize int64 = -1
	if info, err := os.Stat(w.path); err == nil {
		lastMod, lastSize = info.ModTime(), info.Size()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if !info.ModTime().Equal(lastMod) || info.Size() != lastSize {
				lastMod, lastSize = info.ModTime(), info.Size()
				w.notify()
			}
		}
	}
}

// notify coalesces: if a signal is already pending the call is a no-op.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
