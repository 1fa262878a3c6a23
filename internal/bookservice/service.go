// Package bookservice loads songbook documents from their resolved source,
// falling back to the bundled copy, and caches the results.
package bookservice

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/songbook/internal/apperr"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/fetch"
	"github.com/starford/songbook/internal/library"
	"github.com/starford/songbook/internal/models"
	"github.com/starford/songbook/internal/source"
)

// StatusEvent is one status transition of one document load.
type StatusEvent struct {
	SessionID string       `json:"sessionId"`
	Book      catalog.Ref  `json:"book"`
	Document  string       `json:"document"`
	Status    fetch.Status `json:"status"`
}

// Observer receives every StatusEvent. It is called synchronously from the
// fetching goroutine and must not block.
type Observer func(StatusEvent)

// BookEntry is one row of the catalog.
type BookEntry struct {
	Ref      catalog.Ref         `json:"ref"`
	Class    catalog.Class       `json:"class"`
	Imported bool                `json:"imported"`
	Summary  *models.BookSummary `json:"summary,omitempty"`
}

type cacheEntry struct {
	ref   catalog.Ref
	value any
}

// Service coordinates resolver, fetcher and cache.
type Service struct {
	fetcher  *fetch.Fetcher
	resolver *source.Resolver
	library  *library.Library
	request  fetch.Request
	logger   *slog.Logger
	observer Observer

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Option configures a Service.
type Option func(*Service)

// WithRequest sets the request template (timeout, slow threshold) used
// for every document load.
func WithRequest(r fetch.Request) Option {
	return func(s *Service) { s.request = r }
}

// WithObserver registers the status observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(f *fetch.Fetcher, r *source.Resolver, lib *library.Library, opts ...Option) *Service {
	s := &Service{
		fetcher:  f,
		resolver: r,
		library:  lib,
		logger:   slog.Default(),
		cache:    make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summary returns summary.json of ref.
func (s *Service) Summary(ctx context.Context, ref catalog.Ref, forceFallback bool) (models.BookSummary, error) {
	return load[models.BookSummary](ctx, s, ref, source.DocSummary, forceFallback)
}

// Songs returns songs.json of ref.
func (s *Service) Songs(ctx context.Context, ref catalog.Ref, forceFallback bool) (models.SongList, error) {
	return load[models.SongList](ctx, s, ref, source.DocSongs, forceFallback)
}

// Index returns index.json of ref.
func (s *Service) Index(ctx context.Context, ref catalog.Ref, forceFallback bool) (models.BookIndex, error) {
	return load[models.BookIndex](ctx, s, ref, source.DocIndex, forceFallback)
}

// LocalSummary reads the bundled summary of ref, bypassing the remote
// mirror and the cache.
func (s *Service) LocalSummary(ctx context.Context, ref catalog.Ref) (models.BookSummary, error) {
	url := s.resolver.LocalURL(ref) + "/" + source.DocSummary
	out := fetch.JSON[models.BookSummary](ctx, s.fetcher, s.request.WithURL(url))
	if !out.OK() {
		return models.BookSummary{}, fmt.Errorf("bookservice: local summary %s: %w", ref, out.Err)
	}
	return out.Data, nil
}

// Catalog lists the prepackaged books, the public catalog and any other
// imported books, each with its bundled summary when one loads.
func (s *Service) Catalog(ctx context.Context) ([]BookEntry, error) {
	imported, err := s.library.Imported(ctx)
	if err != nil {
		return nil, err
	}

	refs := append(append([]catalog.Ref{}, catalog.Prepackaged...), catalog.Public...)
	for _, r := range imported {
		if !catalog.IsPublic(r) {
			refs = append(refs, r)
		}
	}

	out := make([]BookEntry, 0, len(refs))
	for _, r := range refs {
		e := BookEntry{Ref: r, Class: catalog.Classify(r), Imported: slices.Contains(imported, r)}
		if sum, err := s.LocalSummary(ctx, r); err == nil {
			e.Summary = &sum
		} else {
			s.logger.Debug("bookservice: no bundled summary", slog.String("book", string(r)), slog.String("error", err.Error()))
		}
		out = append(out, e)
	}
	return out, nil
}

// Invalidate drops every cached document of ref.
func (s *Service) Invalidate(ref catalog.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.cache {
		if e.ref == ref {
			delete(s.cache, k)
		}
	}
}

func (s *Service) cached(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[key]
	return e.value, ok
}

func (s *Service) store(key string, ref catalog.Ref, v any) {
	s.mu.Lock()
	s.cache[key] = cacheEntry{ref: ref, value: v}
	s.mu.Unlock()
}

// session is the part of Session and FallbackSession a load needs.
type session[T any] interface {
	Execute(ctx context.Context) fetch.Outcome[T]
	Subscribe(fn fetch.Observer) func()
	Stop()
}

func load[T any](ctx context.Context, s *Service, ref catalog.Ref, doc string, forceFallback bool) (T, error) {
	var zero T
	if catalog.Classify(ref) == catalog.ClassUnknown {
		return zero, fmt.Errorf("bookservice: %s: %w", ref, apperr.ErrUnknownBook)
	}

	primary, fallback := s.resolver.DocumentURLs(ref, doc, forceFallback)
	if v, ok := s.cached(primary); ok {
		return v.(T), nil
	}

	// Concurrent loads of one document share a single session.
	v, err, _ := s.group.Do(primary, func() (any, error) {
		if v, ok := s.cached(primary); ok {
			return v, nil
		}

		var sess session[T]
		req := s.request.WithURL(primary)
		if primary == fallback {
			sess = fetch.NewSession[T](s.fetcher, req)
		} else {
			sess = fetch.NewFallbackSession[T](s.fetcher, req, fallback)
		}
		defer sess.Stop()

		if s.observer != nil {
			id := uuid.NewString()
			unsubscribe := sess.Subscribe(func(st fetch.Status) {
				s.observer(StatusEvent{SessionID: id, Book: ref, Document: doc, Status: st})
			})
			defer unsubscribe()
		}

		out := sess.Execute(ctx)
		switch out.Kind {
		case fetch.KindSuccess:
			s.store(primary, ref, out.Data)
			return out.Data, nil
		case fetch.KindCancelled:
			return nil, fmt.Errorf("bookservice: %s/%s: %w", ref, doc, out.Err)
		default:
			return nil, fmt.Errorf("bookservice: %s/%s: %w: %w", ref, doc, apperr.ErrUnavailable, out.Err)
		}
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
