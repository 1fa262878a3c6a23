// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes songbook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/songbook/internal/bookservice"
	"github.com/starford/songbook/internal/catalog"
	"github.com/starford/songbook/internal/library"
)

const shapesURI = "songbook://document-shapes"

// Server wraps the MCP server with songbook tools.
type Server struct {
	mcp *server.MCPServer
	svc *bookservice.Service
	lib *library.Library
}

// New creates a new MCP server with all songbook tools registered.
func New(svc *bookservice.Service, lib *library.Library, version string) *Server {
	s := &Server{svc: svc, lib: lib}

	s.mcp = server.NewMCPServer(
		"Songbook",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List prepackaged, public and imported songbooks with their bundled summaries."),
	), s.listBooks)

	s.mcp.AddTool(mcp.NewTool("get_book_summary",
		mcp.WithDescription("Fetch the summary document of a songbook (names, colors, song count)."),
		bookArg(),
		fallbackArg(),
	), s.getSummary)

	s.mcp.AddTool(mcp.NewTool("get_song_list",
		mcp.WithDescription("Fetch the song list of a songbook, keyed by song number."),
		bookArg(),
		fallbackArg(),
	), s.getSongs)

	s.mcp.AddTool(mcp.NewTool("get_book_index",
		mcp.WithDescription("Fetch the topical index of a songbook: section label to song numbers."),
		bookArg(),
		fallbackArg(),
	), s.getIndex)

	s.mcp.AddTool(mcp.NewTool("import_book",
		mcp.WithDescription("Add a known songbook to the user's imported books. Prepackaged books cannot be imported."),
		bookArg(),
	), s.importBook)

	s.mcp.AddTool(mcp.NewTool("remove_book",
		mcp.WithDescription("Remove a songbook from the user's imported books."),
		bookArg(),
	), s.removeBook)

	s.mcp.AddResource(
		mcp.NewResource(shapesURI, "Songbook Document Shapes",
			mcp.WithResourceDescription("JSON shapes of summary.json, songs.json and index.json."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readShapesResource,
	)

	return s
}

func bookArg() mcp.ToolOption {
	return mcp.WithString("book", mcp.Required(), mcp.Description("Book reference, e.g. ZH or CH"))
}

func fallbackArg() mcp.ToolOption {
	return mcp.WithBoolean("fallback", mcp.Description("Read the bundled copy instead of the remote mirror"))
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func requireBook(req mcp.CallToolRequest) (catalog.Ref, error) {
	raw, err := req.RequireString("book")
	if err != nil {
		return "", err
	}
	return catalog.Parse(raw)
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listBooks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.Catalog(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries), nil
}

// documentTool adapts a service loader to a tool handler.
func documentTool[T any](load func(context.Context, catalog.Ref, bool) (T, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := requireBook(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		v, err := load(ctx, ref, req.GetBool("fallback", false))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v), nil
	}
}

func (s *Server) getSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return documentTool(s.svc.Summary)(ctx, req)
}

func (s *Server) getSongs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return documentTool(s.svc.Songs)(ctx, req)
}

func (s *Server) getIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return documentTool(s.svc.Index)(ctx, req)
}

func (s *Server) importBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireBook(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.lib.Import(ctx, ref); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported: %s", ref)), nil
}

func (s *Server) removeBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := requireBook(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.lib.Remove(ctx, ref); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.svc.Invalidate(ref)
	refs, err := s.lib.Imported(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s (imported: %s)", ref, strings.Join(catalog.Strings(refs), ", "))), nil
}

func (s *Server) readShapesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      shapesURI,
			MIMEType: "text/markdown",
			Text:     DocumentShapes,
		},
	}, nil
}
