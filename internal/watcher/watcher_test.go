package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/songbook/internal/bundle"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/testutil"
)

type recorded struct {
	mu     sync.Mutex
	events []string
}

func (r *recorded) cb(kind string, ref catalog.Ref, doc string) {
	r.mu.Lock()
	r.events = append(r.events, kind+" "+string(ref)+"/"+doc)
	r.mu.Unlock()
}

func (r *recorded) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func (r *recorded) count(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.events {
		if got == e {
			n++
		}
	}
	return n
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, dir string) *recorded {
	t.Helper()
	b, err := bundle.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	rec := &recorded{}
	go func() {
		defer close(done)
		_ = Watch(ctx, b, logger, rec.cb)
	}()
	// Let the watcher register its directories.
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_UpdatedDocument(t *testing.T) {
	dir := testutil.TestBundle(t, "ZH")
	rec := startWatcher(t, dir)

	path := filepath.Join(dir, "ZH", "songs.json")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"1":{"title":"x"}}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("updated ZH/songs.json")
	}, "expected update event")
	time.Sleep(2 * settle)
	if n := rec.count("updated ZH/songs.json"); n != 1 {
		t.Errorf("burst produced %d events, want 1", n)
	}
}

func TestWatcher_NewBookDirectory(t *testing.T) {
	dir := testutil.TestBundle(t)
	rec := startWatcher(t, dir)

	testutil.WriteBook(t, dir, "CH", "CH local")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("created CH/summary.json")
	}, "expected created event for new book")
}

func TestWatcher_DeletedDocument(t *testing.T) {
	dir := testutil.TestBundle(t, "GH")
	rec := startWatcher(t, dir)

	if err := os.Remove(filepath.Join(dir, "GH", "index.json")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("deleted GH/index.json")
	}, "expected delete event")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := testutil.TestBundle(t, "ZH")
	rec := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "ZH", "cover.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ZH", "summary.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("updated ZH/summary.json")
	}, "expected summary update")
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if filepath.Base(e) == "cover.png" {
			t.Errorf("unexpected event %q", e)
		}
	}
}
