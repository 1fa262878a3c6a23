// Package api implements the songbook REST API using chi.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/songbook/internal/catalog"
)

type ctxKey struct{}

// BookRef parses the {book} URL parameter and stores the normalised
// reference in the request context. Malformed references are rejected
// with 400.
func BookRef(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref, err := catalog.Parse(chi.URLParam(r, "book"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid book reference"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ref)))
	})
}

// bookFrom returns the reference stored by BookRef.
func bookFrom(r *http.Request) catalog.Ref {
	ref, _ := r.Context().Value(ctxKey{}).(catalog.Ref)
	return ref
}
