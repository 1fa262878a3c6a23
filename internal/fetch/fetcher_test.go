package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/songbook/internal/models"
)

type doc struct {
	Name string `json:"name"`
}

func quietFetcher() *Fetcher {
	return NewFetcher(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// jsonServer serves body with status and counts requests.
func jsonServer(t *testing.T, status int, body string, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// hangingServer never answers until the client gives up.
func hangingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv, &calls
}

func TestJSON_Success(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = io.WriteString(w, `{"name":"ZH"}`)
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(WithUserAgent("songbook-test"), WithLogger(quietFetcher().Logger()))
	out := JSON[doc](context.Background(), f, Request{URL: srv.URL})

	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	assert.Equal(t, "ZH", out.Data.Name)
	assert.Equal(t, "songbook-test", gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestJSON_TimeoutIsCancelledNotFailed(t *testing.T) {
	srv, _ := hangingServer(t)
	const timeout = 100 * time.Millisecond

	start := time.Now()
	out := JSON[doc](context.Background(), quietFetcher(), Request{URL: srv.URL, Timeout: timeout})
	elapsed := time.Since(start)

	require.Equal(t, KindCancelled, out.Kind, "err: %v", out.Err)
	assert.True(t, IsCancelled(out.Err))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestJSON_CallerCancel(t *testing.T) {
	srv, _ := hangingServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	out := JSON[doc](ctx, quietFetcher(), Request{URL: srv.URL})
	assert.Equal(t, KindCancelled, out.Kind)
}

func TestJSON_StatusError(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusNotFound, `not found`, 0)
	out := JSON[doc](context.Background(), quietFetcher(), Request{URL: srv.URL})

	require.Equal(t, KindFailed, out.Kind)
	var se *StatusError
	require.True(t, errors.As(out.Err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, IsCancelled(out.Err))
}

func TestJSON_ParseError(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `<html>`, 0)
	out := JSON[doc](context.Background(), quietFetcher(), Request{URL: srv.URL})

	require.Equal(t, KindFailed, out.Kind)
	var pe *ParseError
	assert.True(t, errors.As(out.Err, &pe))
}

func TestJSON_TransportError(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `{}`, 0)
	url := srv.URL
	srv.Close()

	out := JSON[doc](context.Background(), quietFetcher(), Request{URL: url})
	assert.Equal(t, KindFailed, out.Kind)
}

// Schema validation is a strengthening over plain decoding: malformed
// documents are rejected at the parse boundary.
func TestJSON_SchemaErrorForInvalidDocument(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `{"name":{"short":"ZH"}}`, 0)
	out := JSON[models.BookSummary](context.Background(), quietFetcher(), Request{URL: srv.URL})

	require.Equal(t, KindFailed, out.Kind)
	var se *SchemaError
	assert.True(t, errors.As(out.Err, &se))
}

func TestJSON_BestAttemptAcceptsInvalidDocument(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `{"name":{"short":"ZH"}}`, 0)
	out := JSON[models.BookSummary](context.Background(), quietFetcher(), Request{URL: srv.URL, BestAttempt: true})

	require.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "ZH", out.Data.Name.Short)
}

func TestJSON_FileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"local"}`), 0o644))

	out := JSON[doc](context.Background(), quietFetcher(), Request{URL: "file://" + path})
	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	assert.Equal(t, "local", out.Data.Name)

	missing := JSON[doc](context.Background(), quietFetcher(), Request{URL: "file://" + filepath.Join(dir, "nope.json")})
	assert.Equal(t, KindFailed, missing.Kind)
}

func TestSlowThreshold(t *testing.T) {
	assert.Equal(t, DefaultSlowThreshold, SlowThreshold(Request{}))
	assert.Equal(t, DefaultSlowThreshold, SlowThreshold(Request{SlowThreshold: time.Second}))
	assert.Equal(t, 2*time.Second, SlowThreshold(Request{Timeout: 10 * time.Second}))
	assert.Equal(t, 700*time.Millisecond, SlowThreshold(Request{Timeout: 10 * time.Second, SlowThreshold: 700 * time.Millisecond}))
}
