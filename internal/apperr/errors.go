// Package apperr holds the sentinel errors shared across songbook packages.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownBook     = errors.New("unknown book")
	ErrPrepackaged     = errors.New("book is prepackaged")
	ErrAlreadyImported = errors.New("book already imported")
	ErrNotImported     = errors.New("book not imported")
	// ErrUnavailable means neither the primary nor the fallback source produced the document.
	ErrUnavailable = errors.New("book data unavailable")
)
