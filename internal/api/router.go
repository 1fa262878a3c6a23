package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/library"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *bookservice.Service, lib *library.Library, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, lib)

	r := chi.NewRouter()

	// Catalog and documents.
	r.Get("/books", h.ListBooks)
	r.Route("/books/{book}", func(r chi.Router) {
		r.Use(BookRef)
		r.Get("/summary", document(svc.Summary))
		r.Get("/songs", document(svc.Songs))
		r.Get("/index", document(svc.Index))
	})

	// Imported books.
	r.Get("/library", h.GetLibrary)
	r.With(BookRef).Post("/library/{book}", h.ImportBook)
	r.With(BookRef).Delete("/library/{book}", h.RemoveBook)

	r.Get("/bookmarks", h.ListBookmarks)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
