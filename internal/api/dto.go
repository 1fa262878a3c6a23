package api

import (
	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/models"
)

// BookEntry is one row of the catalog listing (aliased from the domain layer).
type BookEntry = bookservice.BookEntry

// BookListResponse wraps the catalog listing.
type BookListResponse struct {
	Books []BookEntry `json:"books"`
}

// LibraryResponse lists the imported book references.
type LibraryResponse struct {
	Books []string `json:"books"`
}

// BookmarksResponse lists the persisted bookmarks.
type BookmarksResponse struct {
	Bookmarks []models.SongReference `json:"bookmarks"`
}
