// Package bundle reads the songbook documents shipped with the application.
//
// The bundle is a directory of books, one sub-directory per reference:
//
//	books/
//	  ZH/summary.json
//	  ZH/songs.json
//	  ZH/index.json
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/songbook/internal/apperr"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/source"
)

// Provider is the read side of the bundle.
type Provider interface {
	// Books lists every reference that has a summary document.
	Books() ([]catalog.Ref, error)
	// Read returns the raw bytes of doc for ref.
	Read(ref catalog.Ref, doc string) ([]byte, error)
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the books directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a bundle rooted at the given directory. The directory must
// already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("bundle: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute books directory.
func (f *FS) Root() string { return f.root }

// safePath resolves ref/doc against the root and rejects anything that
// escapes it or names an unpublished document.
func (f *FS) safePath(ref catalog.Ref, doc string) (string, error) {
	if !source.IsDocument(doc) {
		return "", fmt.Errorf("bundle: %s: unknown document %q: %w", ref, doc, apperr.ErrNotFound)
	}
	if err := catalog.RefRule.Validate(string(ref)); err != nil || ref == "" {
		return "", fmt.Errorf("bundle: invalid book %q: %w", ref, apperr.ErrUnknownBook)
	}
	abs := filepath.Join(f.root, string(ref), doc)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("bundle: path escapes root: %s/%s", ref, doc)
	}
	return abs, nil
}

// Books returns the bundled references in lexical order.
func (f *FS) Books() ([]catalog.Ref, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("bundle: list: %w", err)
	}
	var out []catalog.Ref
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ref, err := catalog.Parse(e.Name())
		if err != nil || string(ref) != e.Name() {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.root, e.Name(), source.DocSummary)); err != nil {
			continue
		}
		out = append(out, ref)
	}
	slices.Sort(out)
	return out, nil
}

// Read returns the raw bytes of a bundled document.
func (f *FS) Read(ref catalog.Ref, doc string) ([]byte, error) {
	abs, err := f.safePath(ref, doc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("bundle: %s/%s: %w", ref, doc, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s/%s: %w", ref, doc, err)
	}
	return data, nil
}

// Locate maps an absolute file path inside the bundle to its book and
// document. ok is false for anything that is not a published document.
func (f *FS) Locate(path string) (ref catalog.Ref, doc string, ok bool) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || !source.IsDocument(parts[1]) {
		return "", "", false
	}
	r, err := catalog.Parse(parts[0])
	if err != nil || string(r) != parts[0] {
		return "", "", false
	}
	return r, parts[1], true
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
