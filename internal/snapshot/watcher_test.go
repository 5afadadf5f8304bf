// Tests for the probe file watcher: event delivery through fsnotify and the
// polling fallback, filtering of unrelated files, and close semantics.
package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Events():
		return true
	case <-time.After(timeout):
		return false
	}
}

// drain discards a pending signal left over from setup writes.
func drain(w *Watcher) {
	select {
	case <-w.Events():
	default:
	}
}

func TestWatcherDetectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.json")
	w := NewWatcher(path)
	defer w.Close()

	os.WriteFile(path, []byte(`{"application":"Word"}`), 0o644)
	if !waitEvent(t, w, 3*time.Second) {
		t.Fatal("no event after write")
	}
}

func TestWatcherDetectsRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "window.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w := NewWatcher(path)
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	tmp := filepath.Join(dir, "window.json.tmp")
	os.WriteFile(tmp, []byte(`{"application":"Mail"}`), 0o644)
	drain(w)
	os.Rename(tmp, path)
	if !waitEvent(t, w, 3*time.Second) {
		t.Fatal("no event after atomic replace")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(filepath.Join(dir, "window.json"))
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o644)
	if waitEvent(t, w, 300*time.Millisecond) {
		t.Fatal("unexpected event for unrelated file")
	}
}

func TestWatcherPollingFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	w := NewWatcher(path, withForcedPolling(), WithPollInterval(20*time.Millisecond))
	defer w.Close()
	if !w.Polling() {
		t.Fatal("expected polling mode")
	}

	// Size change is detected even within the mtime granularity.
	os.WriteFile(path, []byte(`{"application":"Word"}`), 0o644)
	if !waitEvent(t, w, 2*time.Second) {
		t.Fatal("no event in polling mode")
	}
}

func TestWatcherUnwatchableDirFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "window.json")
	w := NewWatcher(path, WithPollInterval(20*time.Millisecond))
	defer w.Close()
	if !w.Polling() {
		t.Fatal("expected polling fallback for missing directory")
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "window.json"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
