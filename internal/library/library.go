// Package library manages the user's imported-book list and bookmarks in the
// preference store.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/songbook/internal/apperr"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/models"
	"github.com/starford/songbook/internal/prefs"
)

// Library caches the externalBooks list. Every mutation is a
// read-modify-write under mu.
type Library struct {
	store    prefs.Store
	logger   *slog.Logger
	onChange func([]catalog.Ref)

	mu     sync.Mutex
	refs   []catalog.Ref
	loaded bool
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(lib *Library) { lib.logger = l }
}

// WithOnChange registers a callback invoked with the new list after Import
// or Remove.
func WithOnChange(fn func([]catalog.Ref)) Option {
	return func(lib *Library) { lib.onChange = fn }
}

// New creates a Library over store.
func New(store prefs.Store, opts ...Option) *Library {
	lib := &Library{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(lib)
	}
	return lib
}

// Load (re)reads the imported list from the store.
func (l *Library) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

// Invalidate drops the cached list; the next read goes to the store.
func (l *Library) Invalidate() {
	l.mu.Lock()
	l.loaded = false
	l.refs = nil
	l.mu.Unlock()
}

// Imported returns a copy of the imported references in insertion order.
func (l *Library) Imported(ctx context.Context) ([]catalog.Ref, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(l.refs), nil
}

// Contains reports whether ref is imported.
func (l *Library) Contains(ctx context.Context, ref catalog.Ref) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLocked(ctx); err != nil {
		return false, err
	}
	return slices.Contains(l.refs, ref), nil
}

// Import appends ref to the imported list. Prepackaged and unknown books are
// rejected.
func (l *Library) Import(ctx context.Context, ref catalog.Ref) error {
	if err := catalog.Importable(ref); err != nil {
		return err
	}

	l.mu.Lock()
	if err := l.ensureLocked(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	if slices.Contains(l.refs, ref) {
		l.mu.Unlock()
		return fmt.Errorf("library: %s: %w", ref, apperr.ErrAlreadyImported)
	}
	next := append(slices.Clone(l.refs), ref)
	if err := l.saveLocked(ctx, next); err != nil {
		l.mu.Unlock()
		return err
	}
	snapshot := slices.Clone(next)
	l.mu.Unlock()

	l.logger.Info("library: imported", slog.String("book", string(ref)))
	l.changed(snapshot)
	return nil
}

// Remove drops ref from the imported list.
func (l *Library) Remove(ctx context.Context, ref catalog.Ref) error {
	l.mu.Lock()
	if err := l.ensureLocked(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	i := slices.Index(l.refs, ref)
	if i < 0 {
		l.mu.Unlock()
		return fmt.Errorf("library: %s: %w", ref, apperr.ErrNotImported)
	}
	next := slices.Delete(slices.Clone(l.refs), i, i+1)
	if err := l.saveLocked(ctx, next); err != nil {
		l.mu.Unlock()
		return err
	}
	snapshot := slices.Clone(next)
	l.mu.Unlock()

	l.logger.Info("library: removed", slog.String("book", string(ref)))
	l.changed(snapshot)
	return nil
}

// Bookmarks returns the persisted bookmark list.
func (l *Library) Bookmarks(ctx context.Context) ([]models.SongReference, error) {
	var out []models.SongReference
	if _, err := prefs.GetJSON(ctx, l.store, prefs.KeyBookmarks, &out); err != nil {
		return nil, fmt.Errorf("library: bookmarks: %w", err)
	}
	if out == nil {
		out = []models.SongReference{}
	}
	return out, nil
}

func (l *Library) ensureLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	return l.loadLocked(ctx)
}

func (l *Library) loadLocked(ctx context.Context) error {
	var raw []string
	if _, err := prefs.GetJSON(ctx, l.store, prefs.KeyExternalBooks, &raw); err != nil {
		return fmt.Errorf("library: load: %w", err)
	}
	refs := make([]catalog.Ref, 0, len(raw))
	for _, s := range raw {
		ref, err := catalog.Parse(s)
		if err != nil {
			// Entries that survived an interrupted URL migration.
			l.logger.Warn("library: skipping malformed entry", slog.String("entry", s))
			continue
		}
		if !slices.Contains(refs, ref) {
			refs = append(refs, ref)
		}
	}
	l.refs = refs
	l.loaded = true
	return nil
}

func (l *Library) saveLocked(ctx context.Context, refs []catalog.Ref) error {
	if err := prefs.SetJSON(ctx, l.store, prefs.KeyExternalBooks, catalog.Strings(refs)); err != nil {
		// The cached copy may no longer match the store.
		l.loaded = false
		return fmt.Errorf("library: save: %w", err)
	}
	l.refs = refs
	return nil
}

func (l *Library) changed(refs []catalog.Ref) {
	if l.onChange != nil {
		l.onChange(refs)
	}
}

// SummaryLoader loads the locally bundled summary of a book.
type SummaryLoader interface {
	LocalSummary(ctx context.Context, ref catalog.Ref) (models.BookSummary, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, title, message string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, title, message string) (bool, error) {
	return f(ctx, title, message)
}

// OfferImport handles a reference to a book the user has not imported: it
// loads the local summary and, if the user agrees, imports the book. It
// reports whether the book was imported. Already imported books and books
// without a local summary are left alone.
func (l *Library) OfferImport(ctx context.Context, ref catalog.Ref, loader SummaryLoader, c Confirmer) (bool, error) {
	summary, err := loader.LocalSummary(ctx, ref)
	if err != nil {
		l.logger.Debug("library: no local summary", slog.String("book", string(ref)), slog.String("error", err.Error()))
		return false, nil
	}

	imported, err := l.Contains(ctx, ref)
	if err != nil || imported {
		return false, err
	}

	ok, err := c.Confirm(ctx, "Import Missing Book?", fmt.Sprintf("Would you like to import %s?", summary.Name.Long))
	if err != nil || !ok {
		return false, err
	}
	if err := l.Import(ctx, ref); err != nil {
		if errors.Is(err, apperr.ErrAlreadyImported) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
