// Package watcher reports changes to the bundled book documents.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/songbook/internal/bundle"
	"github.com/starford/songbook/internal/catalog"
)

// EventCallback is called once per settled document change. kind is one of
// "created", "updated", "deleted".
type EventCallback func(kind string, ref catalog.Ref, doc string)

// settle is how long a document must stay quiet before its change is
// reported. Editors and rsync write in bursts.
const settle = 150 * time.Millisecond

type change struct {
	kind string
	ref  catalog.Ref
	doc  string
}

// Watch starts an fsnotify watcher on the bundle root and processes change
// events until ctx is cancelled. Book directories created at runtime are
// added to the watch list.
func Watch(ctx context.Context, b *bundle.FS, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, b.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", b.Root()))

	pending := make(map[string]change)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(path string, c change) {
		if prev, ok := pending[path]; ok && prev.kind == "created" && c.kind == "updated" {
			c.kind = "created"
		}
		pending[path] = c
		if flushTimer == nil {
			flushTimer = time.NewTimer(settle)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for path, c := range pending {
				delete(pending, path)
				logger.Debug("watcher: document changed",
					slog.String("book", string(c.ref)),
					slog.String("document", c.doc),
					slog.String("op", c.kind))
				if cb != nil {
					cb(c.kind, c.ref, c.doc)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					scanNewDir(b, ev.Name, schedule)
					continue
				}
			}

			ref, doc, ok := b.Locate(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				schedule(ev.Name, change{kind: "created", ref: ref, doc: doc})
			case ev.Op&fsnotify.Write != 0:
				schedule(ev.Name, change{kind: "updated", ref: ref, doc: doc})
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// A rename reports the old path only; the new one arrives
				// as a separate Create.
				schedule(ev.Name, change{kind: "deleted", ref: ref, doc: doc})
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// scanNewDir reports documents already present in a directory that
// appeared after the watch started.
func scanNewDir(b *bundle.FS, dir string, schedule func(string, change)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ref, doc, ok := b.Locate(path); ok {
			schedule(path, change{kind: "created", ref: ref, doc: doc})
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
