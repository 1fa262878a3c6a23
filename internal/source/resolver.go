// Package source decides where each songbook document is read from: the
// locally bundled copy or the remote mirror.
package source

import (
	"strings"

	"github.com/starford/songbook/internal/catalog"
)

// Platform is the execution platform the application runs on.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformDesktop Platform = "desktop"
)

// Documents published for every book.
const (
	DocSummary = "summary.json"
	DocSongs   = "songs.json"
	DocIndex   = "index.json"
)

// Documents lists every document name in serving order.
var Documents = []string{DocSummary, DocSongs, DocIndex}

// IsDocument reports whether name is a published book document.
func IsDocument(name string) bool {
	switch name {
	case DocSummary, DocSongs, DocIndex:
		return true
	}
	return false
}

// Config is the environment the resolver decides against.
type Config struct {
	Platform   Platform
	Production bool
	// LocalBase is the application base URL; books live under LocalBase + "books/".
	LocalBase string
	// RemoteBase is the raw content host, e.g. https://raw.githubusercontent.com.
	RemoteBase string
	Org        string
	Repo       string
	Branch     string
}

// Resolver builds book URLs. It is a pure function of its Config.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver for cfg.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// BookURL returns the base URL for ref. The first matching rule wins:
// web platform, prepackaged book, development build and forced fallback all
// select the local copy; everything else the remote mirror.
func (r *Resolver) BookURL(ref catalog.Ref, forceFallback bool) string {
	switch {
	case r.cfg.Platform == PlatformWeb:
		return r.LocalURL(ref)
	case catalog.IsPrepackaged(ref):
		return r.LocalURL(ref)
	case !r.cfg.Production:
		return r.LocalURL(ref)
	case forceFallback:
		return r.LocalURL(ref)
	}
	return r.RemoteURL(ref)
}

// LocalURL is the bundled copy of ref.
func (r *Resolver) LocalURL(ref catalog.Ref) string {
	return withSlash(r.cfg.LocalBase) + "books/" + string(ref)
}

// RemoteURL is the mirror copy of ref on the configured branch.
func (r *Resolver) RemoteURL(ref catalog.Ref) string {
	return withSlash(r.cfg.RemoteBase) + r.cfg.Org + "/" + r.cfg.Repo + "/" + r.cfg.Branch + "/books/" + string(ref)
}

// DocumentURLs returns the primary and fallback URL of one document. They
// are equal when the primary is already the local copy.
func (r *Resolver) DocumentURLs(ref catalog.Ref, doc string, forceFallback bool) (primary, fallback string) {
	return r.BookURL(ref, forceFallback) + "/" + doc, r.LocalURL(ref) + "/" + doc
}

func withSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
