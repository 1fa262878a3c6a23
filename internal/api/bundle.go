package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/songbook/internal/bundle"
)

// BundleHandler serves bundled book documents at /{book}/{doc}. This is the
// local copy the resolver falls back to when base_url points at this server.
type BundleHandler struct {
	books bundle.Provider
}

// NewBundleHandler creates a handler over the bundle.
func NewBundleHandler(books bundle.Provider) *BundleHandler {
	return &BundleHandler{books: books}
}

// Routes returns the router to mount under /books.
func (h *BundleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(BookRef).Get("/{book}/{doc}", h.ServeDocument)
	return r
}

// ServeDocument handles GET /books/{book}/{doc}. The ETag is the SHA-256 of
// the content; a matching If-None-Match yields 304.
func (h *BundleHandler) ServeDocument(w http.ResponseWriter, r *http.Request) {
	ref := bookFrom(r)
	if string(ref) != chi.URLParam(r, "book") {
		// Bundle paths are case-sensitive.
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	data, err := h.books.Read(ref, chi.URLParam(r, "doc"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := `"` + bundle.Checksum(data) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			if c := strings.TrimSpace(candidate); c == etag || c == "*" {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
