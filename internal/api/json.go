package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/songbook/internal/apperr"
	"github.com/starford/songbook/internal/fetch"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a service error onto a status code. Unexpected errors
// are logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrUnknownBook), errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrNotImported):
		writeJSON(w, http.StatusNotFound, errorBody("book not imported"))
	case errors.Is(err, apperr.ErrPrepackaged):
		writeJSON(w, http.StatusBadRequest, errorBody("book is prepackaged"))
	case errors.Is(err, apperr.ErrAlreadyImported):
		writeJSON(w, http.StatusConflict, errorBody("book already imported"))
	case errors.Is(err, apperr.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("book data unavailable"))
	case fetch.IsCancelled(err):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("request timed out"))
	default:
		slog.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
