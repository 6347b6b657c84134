package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/remi/internal/bookmarks"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/testutil"
	"github.com/starford/remi/internal/transport"
)

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, loc location.Location) (*transport.Response, error) {
	body, ok := f[loc.String()]
	if !ok {
		return &transport.Response{Header: "51 Not found"}, nil
	}
	return &transport.Response{Header: "20 text/gemini", Body: []byte(body)}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()

	_, fs := testutil.TestDataDir(t)
	db := testutil.TestDB(t)

	engine := session.New(fakeFetcher{
		"gemini://example.org/":      "# Welcome\n=> docs Documentation\n",
		"gemini://example.org/docs":  "# Docs\nHow to run a capsule.\n",
		"gemini://example.org/quiet": "no heading here\n",
	},
		session.WithHome(location.MustParse("gemini://example.org/")),
		session.WithRecorder(db),
	)
	marks, err := bookmarks.NewService(fs, nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(engine, marks, db)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "navigate":
		result, err = srv.navigate(ctx, req)
	case "submit_input":
		result, err = srv.submitInput(ctx, req)
	case "back":
		result, err = srv.back(ctx, req)
	case "forward":
		result, err = srv.forward(ctx, req)
	case "current_page":
		result, err = srv.currentPage(ctx, req)
	case "list_bookmarks":
		result, err = srv.listBookmarks(ctx, req)
	case "add_bookmark":
		result, err = srv.addBookmark(ctx, req)
	case "search_history":
		result, err = srv.searchHistory(ctx, req)
	case "read_console":
		result, err = srv.readConsole(ctx, req)
	case "get_gemtext_format":
		result, err = srv.getGemtextFormat(ctx, req)
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

func TestNavigateAndBack(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "navigate", map[string]interface{}{})
	if text := resultText(r); !strings.HasPrefix(text, "URL: gemini://example.org/\n") || !strings.Contains(text, "# Welcome") {
		t.Errorf("home = %q", text)
	}

	r = callTool(t, srv, "navigate", map[string]interface{}{"url": "docs"})
	if text := resultText(r); !strings.Contains(text, "How to run a capsule.") {
		t.Errorf("docs = %q", text)
	}

	r = callTool(t, srv, "back", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, "# Welcome") {
		t.Errorf("back = %q", text)
	}

	r = callTool(t, srv, "current_page", map[string]interface{}{})
	if text := resultText(r); !strings.HasPrefix(text, "URL: gemini://example.org/\n") {
		t.Errorf("current = %q", text)
	}
}

func TestNavigateFailureGoesToConsole(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "navigate", map[string]interface{}{"url": "gemini://example.org/missing"})
	if !r.IsError {
		t.Error("expected error for missing page")
	}

	r = callTool(t, srv, "read_console", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, "gemini://example.org/missing") {
		t.Errorf("console = %q", text)
	}
}

func TestBackWithoutHistory(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "back", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error with empty history")
	}
}

func TestAddBookmarkCurrentPage(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "add_bookmark", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without a current page")
	}

	_ = callTool(t, srv, "navigate", map[string]interface{}{"url": "gemini://example.org/docs"})
	r = callTool(t, srv, "add_bookmark", map[string]interface{}{})
	if text := resultText(r); text != "bookmarked: gemini://example.org/docs" {
		t.Errorf("add = %q", text)
	}

	r = callTool(t, srv, "list_bookmarks", map[string]interface{}{})
	if text := resultText(r); text != "=> gemini://example.org/docs Docs" {
		t.Errorf("list = %q", text)
	}
}

func TestSearchHistory(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "navigate", map[string]interface{}{"url": "gemini://example.org/docs"})

	r := callTool(t, srv, "search_history", map[string]interface{}{"query": "capsule"})
	if text := resultText(r); !strings.Contains(text, "gemini://example.org/docs") {
		t.Errorf("search = %q", text)
	}

	r = callTool(t, srv, "search_history", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without query")
	}
}

func TestSubmitInputBadURL(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "submit_input", map[string]interface{}{"url": "relative", "text": "x"})
	if !r.IsError {
		t.Error("expected error for a relative prompt URL")
	}
}

func TestGemtextFormat(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_gemtext_format", map[string]interface{}{})
	if resultText(r) != GemtextFormat {
		t.Error("format tool should return the reference text")
	}
}
