package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/library"
)

// Handler holds API route handlers.
type Handler struct {
	svc *bookservice.Service
	lib *library.Library
}

// NewHandler creates a new Handler.
func NewHandler(svc *bookservice.Service, lib *library.Library) *Handler {
	return &Handler{svc: svc, lib: lib}
}

// forceFallback reads the ?fallback= query flag.
func forceFallback(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("fallback"))
	return v
}

// ListBooks handles GET /api/books.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Catalog(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookListResponse{Books: entries})
}

// document adapts one service loader to a handler for
// GET /api/books/{book}/<doc>.
func document[T any](load func(ctx context.Context, ref catalog.Ref, forceFallback bool) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := load(r.Context(), bookFrom(r), forceFallback(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GetLibrary handles GET /api/library.
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	refs, err := h.lib.Imported(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryResponse{Books: catalog.Strings(refs)})
}

// ImportBook handles POST /api/library/{book}.
func (h *Handler) ImportBook(w http.ResponseWriter, r *http.Request) {
	ref := bookFrom(r)
	if err := h.lib.Import(r.Context(), ref); err != nil {
		writeError(w, r, err)
		return
	}
	refs, err := h.lib.Imported(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, LibraryResponse{Books: catalog.Strings(refs)})
}

// RemoveBook handles DELETE /api/library/{book}.
func (h *Handler) RemoveBook(w http.ResponseWriter, r *http.Request) {
	ref := bookFrom(r)
	if err := h.lib.Remove(r.Context(), ref); err != nil {
		writeError(w, r, err)
		return
	}
	h.svc.Invalidate(ref)
	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarks handles GET /api/bookmarks.
func (h *Handler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	marks, err := h.lib.Bookmarks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BookmarksResponse{Bookmarks: marks})
}
