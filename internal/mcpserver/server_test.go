package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/fetch"
	"github.com/starford/songbook/internal/library"
	"github.com/starford/songbook/internal/prefs"
	"github.com/starford/songbook/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.BookServer) {
	t.Helper()
	local := testutil.TestBundle(t, "ZH", "CH")
	remote := t.TempDir()
	testutil.WriteBook(t, remote, "CH", "CH remote")
	srv := testutil.NewBookServer(t, local, remote)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib := library.New(prefs.NewMemory(), library.WithLogger(logger))
	svc := bookservice.New(fetch.NewFetcher(fetch.WithLogger(logger)), srv.Resolver(), lib,
		bookservice.WithLogger(logger),
		bookservice.WithRequest(fetch.Request{Timeout: 2 * time.Second}))
	return New(svc, lib, "test"), srv
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_books":
		result, err = srv.listBooks(ctx, req)
	case "get_book_summary":
		result, err = srv.getSummary(ctx, req)
	case "get_song_list":
		result, err = srv.getSongs(ctx, req)
	case "get_book_index":
		result, err = srv.getIndex(ctx, req)
	case "import_book":
		result, err = srv.importBook(ctx, req)
	case "remove_book":
		result, err = srv.removeBook(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetBookSummary(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_book_summary", map[string]any{"book": "ch"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "CH remote") {
		t.Errorf("summary = %s", resultText(r))
	}

	r = callTool(t, srv, "get_book_summary", map[string]any{"book": "CH", "fallback": true})
	if !strings.Contains(resultText(r), "CH local") {
		t.Errorf("fallback summary = %s", resultText(r))
	}
}

func TestGetSongListAndIndex(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_song_list", map[string]any{"book": "ZH"})
	if !strings.Contains(resultText(r), "ZH local one") {
		t.Errorf("songs = %s", resultText(r))
	}

	r = callTool(t, srv, "get_book_index", map[string]any{"book": "ZH"})
	if !strings.Contains(resultText(r), "Praise") {
		t.Errorf("index = %s", resultText(r))
	}
}

func TestGetSummary_Unavailable(t *testing.T) {
	srv, books := testServer(t)
	books.FailRemote(true)

	r := callTool(t, srv, "get_book_summary", map[string]any{"book": "HZ"})
	if !r.IsError {
		t.Error("expected error when both sources fail")
	}
}

func TestMissingBookArgument(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_song_list", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing book")
	}
}

func TestImportAndRemoveBook(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "import_book", map[string]any{"book": "HZ"})
	if text := resultText(r); text != "imported: HZ" {
		t.Errorf("import result = %q", text)
	}

	r = callTool(t, srv, "import_book", map[string]any{"book": "ZH"})
	if !r.IsError {
		t.Error("expected error importing a prepackaged book")
	}

	r = callTool(t, srv, "remove_book", map[string]any{"book": "HZ"})
	if text := resultText(r); text != "removed: HZ (imported: )" {
		t.Errorf("remove result = %q", text)
	}

	r = callTool(t, srv, "remove_book", map[string]any{"book": "HZ"})
	if !r.IsError {
		t.Error("expected error removing a book that is not imported")
	}
}

func TestListBooks(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_books", map[string]any{})
	text := resultText(r)
	if !strings.Contains(text, `"ref": "ZH"`) || !strings.Contains(text, `"ref": "CH"`) {
		t.Errorf("list_books = %s", text)
	}
}

func TestDocumentShapesResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readShapesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "index.json") {
		t.Errorf("unexpected resource contents %+v", contents)
	}
}
