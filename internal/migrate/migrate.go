// Package migrate upgrades persisted preferences when the application
// version changes.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/starford/songbook/internal/models"
	"github.com/starford/songbook/internal/prefs"
)

// ReferenceThreshold is the first version that stores imported books as
// references instead of URLs.
const ReferenceThreshold = "2.0.3"

// Runner applies the ordered migration steps against a preference store.
type Runner struct {
	store   prefs.Store
	legacy  prefs.Store
	version string
	logger  *slog.Logger
}

// NewRunner creates a runner for the running application version. legacy is
// the pre-2.0 storage holding the flat bookmark list; it may be nil.
func NewRunner(store, legacy prefs.Store, version string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, legacy: legacy, version: version, logger: logger}
}

// Migrate brings persisted state up to the running version. It is a no-op
// when the persisted version already matches. Store errors are returned.
func (r *Runner) Migrate(ctx context.Context) error {
	previous, ok, err := r.store.Get(ctx, prefs.KeyAppVersion)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	if ok && previous == r.version {
		return nil
	}

	switch {
	case !ok:
		r.logger.Info("migrate: legacy bookmarks", slog.String("to", r.version))
		if err := r.migrateLegacyBookmarks(ctx); err != nil {
			return err
		}
	case Less(previous, ReferenceThreshold):
		r.logger.Info("migrate: external book references", slog.String("from", previous), slog.String("to", r.version))
		if err := r.migrateExternalBooks(ctx); err != nil {
			return err
		}
	}

	if err := r.store.Set(ctx, prefs.KeyAppVersion, r.version); err != nil {
		return fmt.Errorf("migrate: write version: %w", err)
	}
	return nil
}

// Less reports whether version a sorts before b. Unparsable versions sort
// below every valid one.
func Less(a, b string) bool {
	return semver.Compare(canonical(a), canonical(b)) < 0
}

func canonical(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// legacyBookmark is the pre-2.0 bookmark record. Entries written after a
// partial migration already carry Number.
type legacyBookmark struct {
	Book   string      `json:"book"`
	Song   looseString `json:"song"`
	Number looseString `json:"number"`
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = looseString(num.String())
	return nil
}

func (r *Runner) migrateLegacyBookmarks(ctx context.Context) error {
	var legacy []legacyBookmark
	if r.legacy != nil {
		if _, err := prefs.GetJSON(ctx, r.legacy, prefs.KeyBookmarks, &legacy); err != nil {
			return fmt.Errorf("migrate: read legacy bookmarks: %w", err)
		}
	}

	var current []models.SongReference
	if _, err := prefs.GetJSON(ctx, r.store, prefs.KeyBookmarks, &current); err != nil {
		return fmt.Errorf("migrate: read bookmarks: %w", err)
	}

	merged := current
	for _, b := range legacy {
		ref := models.SongReference{Book: b.Book, Number: string(b.Song)}
		if b.Song == "" {
			ref.Number = string(b.Number)
		}
		merged = append(merged, ref)
	}
	merged = dedupe(merged)
	if merged == nil {
		merged = []models.SongReference{}
	}

	if err := prefs.SetJSON(ctx, r.store, prefs.KeyBookmarks, merged); err != nil {
		return fmt.Errorf("migrate: write bookmarks: %w", err)
	}
	r.logger.Debug("migrate: bookmarks merged", slog.Int("legacy", len(legacy)), slog.Int("total", len(merged)))
	return nil
}

func (r *Runner) migrateExternalBooks(ctx context.Context) error {
	var entries []string
	ok, err := prefs.GetJSON(ctx, r.store, prefs.KeyExternalBooks, &entries)
	if err != nil {
		return fmt.Errorf("migrate: read external books: %w", err)
	}
	if !ok {
		return nil
	}

	seen := make(map[string]struct{}, len(entries))
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		ref := ReferenceFromURL(e)
		if ref == "" {
			r.logger.Warn("migrate: dropping unrecognised external book", slog.String("entry", e))
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	if err := prefs.SetJSON(ctx, r.store, prefs.KeyExternalBooks, refs); err != nil {
		return fmt.Errorf("migrate: write external books: %w", err)
	}
	return nil
}

// ReferenceFromURL extracts the book reference from an imported-book URL
// ("https://acchymns.app/books/CH" -> "CH"). Plain references pass through.
func ReferenceFromURL(entry string) string {
	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "/") {
		return entry
	}
	rest := entry
	if i := strings.LastIndex(entry, "books/"); i >= 0 {
		rest = entry[i+len("books/"):]
	} else {
		rest = strings.TrimRight(entry, "/")
		rest = rest[strings.LastIndex(rest, "/")+1:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func dedupe(in []models.SongReference) []models.SongReference {
	seen := make(map[models.SongReference]struct{}, len(in))
	out := in[:0:0]
	for _, b := range in {
		if b.Book == "" || b.Number == "" {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}
