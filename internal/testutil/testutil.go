// Package testutil provides shared test helpers for preference stores, book
// bundles and book servers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/models"
	"github.com/starford/songbook/internal/prefs"
	"github.com/starford/songbook/internal/source"
)

// Remote coordinates served by BookServer.
const (
	Org    = "ACC-Hymns"
	Repo   = "acchymns-web"
	Branch = "main"
)

// TestPrefs creates a temporary SQLite preference store that is
// automatically cleaned up.
func TestPrefs(t *testing.T) *prefs.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "songbook-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := prefs.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Summary returns a valid summary whose long name is long.
func Summary(ref catalog.Ref, long string) models.BookSummary {
	return models.BookSummary{
		Name:           models.BookName{Short: string(ref), Medium: long, Long: long},
		PrimaryColor:   "#1f4e79",
		SecondaryColor: "#ffffff",
		FileExtension:  "png",
		NumOfSongs:     2,
		IndexAvailable: true,
	}
}

// WriteBook writes a complete fixture book under dir/ref. The long name is
// used to tell copies apart.
func WriteBook(t *testing.T, dir string, ref catalog.Ref, long string) {
	t.Helper()
	docs := map[string]any{
		source.DocSummary: Summary(ref, long),
		source.DocSongs: models.SongList{
			"1":    {Title: long + " one"},
			"403a": {Title: long + " four hundred three a"},
		},
		source.DocIndex: models.BookIndex{"Praise": {"1", "403a"}},
	}
	bookDir := filepath.Join(dir, string(ref))
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, v := range docs {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(bookDir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// TestBundle creates a temporary books directory containing refs, each with
// the long name "<ref> local".
func TestBundle(t *testing.T, refs ...catalog.Ref) string {
	t.Helper()
	dir := t.TempDir()
	for _, r := range refs {
		WriteBook(t, dir, r, string(r)+" local")
	}
	return dir
}

// BookServer serves a local bundle under /books/ and a remote mirror under
// /<org>/<repo>/<branch>/books/, counting requests per path.
type BookServer struct {
	*httptest.Server
	LocalDir  string
	RemoteDir string

	failRemote atomic.Bool
	delay      atomic.Int64
	mu         sync.Mutex
	calls      map[string]int
}

// NewBookServer starts a server over localDir and remoteDir.
func NewBookServer(t *testing.T, localDir, remoteDir string) *BookServer {
	t.Helper()
	s := &BookServer{LocalDir: localDir, RemoteDir: remoteDir, calls: map[string]int{}}
	remotePrefix := "/" + Org + "/" + Repo + "/" + Branch + "/books/"

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()

		if d := time.Duration(s.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}

		switch {
		case strings.HasPrefix(r.URL.Path, remotePrefix):
			if s.failRemote.Load() {
				http.Error(w, "mirror down", http.StatusBadGateway)
				return
			}
			http.ServeFile(w, r, filepath.Join(s.RemoteDir, filepath.FromSlash(strings.TrimPrefix(r.URL.Path, remotePrefix))))
		case strings.HasPrefix(r.URL.Path, "/books/"):
			http.ServeFile(w, r, filepath.Join(s.LocalDir, filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/books/"))))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// FailRemote makes every mirror request answer 502.
func (s *BookServer) FailRemote(fail bool) { s.failRemote.Store(fail) }

// SetDelay delays every response by d.
func (s *BookServer) SetDelay(d time.Duration) { s.delay.Store(int64(d)) }

// Calls returns how many requests hit path.
func (s *BookServer) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// RemotePath is the server path of a mirror document.
func RemotePath(ref catalog.Ref, doc string) string {
	return "/" + Org + "/" + Repo + "/" + Branch + "/books/" + string(ref) + "/" + doc
}

// LocalPath is the server path of a bundled document.
func LocalPath(ref catalog.Ref, doc string) string {
	return "/books/" + string(ref) + "/" + doc
}

// Resolver returns a production, non-web resolver pointed at s.
func (s *BookServer) Resolver() *source.Resolver {
	return source.NewResolver(source.Config{
		Platform:   source.PlatformAndroid,
		Production: true,
		LocalBase:  s.URL + "/",
		RemoteBase: s.URL,
		Org:        Org,
		Repo:       Repo,
		Branch:     Branch,
	})
}
