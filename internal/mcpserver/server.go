// Package mcpserver provides an MCP (Model Context Protocol) server
// that lets an LLM browse Gemini space through a remi session over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/remi/internal/bookmarks"
	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/store"
)

// Server wraps the MCP server with remi tools.
type Server struct {
	mcp       *server.MCPServer
	engine    *session.Engine
	bookmarks *bookmarks.Service
	pages     store.PageStore
}

// New creates a new MCP server with all remi tools registered.
func New(engine *session.Engine, marks *bookmarks.Service, pages store.PageStore) *Server {
	s := &Server{engine: engine, bookmarks: marks, pages: pages}

	s.mcp = server.NewMCPServer(
		"remi",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Open a gemini:// URL, or a reference relative to the current page. "+
			"Redirects are followed. Returns the page as gemtext; read the format via "+
			"get_gemtext_format or the remi://gemtext-format resource."),
		mcp.WithString("url", mcp.Description("Absolute or relative URL (empty for the current page, or home at start)")),
	), s.navigate)

	s.mcp.AddTool(mcp.NewTool("submit_input",
		mcp.WithDescription("Answer an input prompt returned by navigate."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL that issued the prompt")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Answer to send")),
	), s.submitInput)

	s.mcp.AddTool(mcp.NewTool("back",
		mcp.WithDescription("Go back to the previous page in history."),
	), s.back)

	s.mcp.AddTool(mcp.NewTool("forward",
		mcp.WithDescription("Go forward to the next page in history."),
	), s.forward)

	s.mcp.AddTool(mcp.NewTool("current_page",
		mcp.WithDescription("Return the page currently being viewed."),
	), s.currentPage)

	s.mcp.AddTool(mcp.NewTool("list_bookmarks",
		mcp.WithDescription("List bookmarked capsules."),
	), s.listBookmarks)

	s.mcp.AddTool(mcp.NewTool("add_bookmark",
		mcp.WithDescription("Bookmark a URL, or the current page when url is empty."),
		mcp.WithString("url", mcp.Description("Absolute gemini:// URL")),
		mcp.WithString("label", mcp.Description("Optional label")),
	), s.addBookmark)

	s.mcp.AddTool(mcp.NewTool("search_history",
		mcp.WithDescription("Full-text search through the titles and text of visited pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchHistory)

	s.mcp.AddTool(mcp.NewTool("read_console",
		mcp.WithDescription("Read the console: failed navigations with the URL that failed."),
	), s.readConsole)

	s.mcp.AddTool(mcp.NewTool("get_gemtext_format",
		mcp.WithDescription("Returns a short reference for the gemtext line types."),
	), s.getGemtextFormat)

	s.mcp.AddResource(
		mcp.NewResource(gemtextFormatURI, "Gemtext Format",
			mcp.WithResourceDescription("Line types of text/gemini documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGemtextFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) navigate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.Navigate(ctx, req.GetString("url", ""), false)
	return resultOf(res, err)
}

func (s *Server) submitInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prompt, err := location.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultOf(s.engine.SubmitInput(ctx, prompt, text))
}

func (s *Server) back(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultOf(s.engine.Back(ctx))
}

func (s *Server) forward(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultOf(s.engine.Forward(ctx))
}

func (s *Server) currentPage(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.engine.Snapshot()
	if snap.Current == nil {
		return mcp.NewToolResultText("nothing visited yet"), nil
	}
	return mcp.NewToolResultText(renderDocument(snap.Current.Location, snap.Current.Document)), nil
}

func (s *Server) listBookmarks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.bookmarks.List()
	if len(list) == 0 {
		return mcp.NewToolResultText("no bookmarks"), nil
	}
	lines := make([]string, len(list))
	for i, b := range list {
		lines[i] = "=> " + b.URL + " " + b.Label
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) addBookmark(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("url", "")
	label := req.GetString("label", "")
	if raw == "" {
		snap := s.engine.Snapshot()
		if snap.Current == nil {
			return mcp.NewToolResultError("no current page to bookmark"), nil
		}
		raw = snap.Current.Location.String()
		if label == "" && snap.Current.Document != nil {
			label = snap.Current.Document.Title()
		}
	}
	b, err := s.bookmarks.Add(raw, label)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("bookmarked: %s", b.URL)), nil
}

func (s *Server) searchHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.pages.Search(query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readConsole(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := s.engine.Console().Entries()
	if len(entries) == 0 {
		return mcp.NewToolResultText("console is empty"), nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s: %s\n", e.Time.Format("15:04:05"), e.Location, e.Message)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getGemtextFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(GemtextFormat), nil
}

func (s *Server) readGemtextFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      gemtextFormatURI,
			MIMEType: "text/markdown",
			Text:     GemtextFormat,
		},
	}, nil
}

// resultOf renders a navigation outcome. Navigation failures are tool
// errors, not protocol errors.
func resultOf(res *session.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch res.Outcome {
	case session.OutcomeInput:
		kind := "input"
		if res.Sensitive {
			kind = "sensitive input"
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s requests %s: %s\nAnswer with submit_input.", res.Location, kind, res.Prompt)), nil
	case session.OutcomeOpaque:
		return mcp.NewToolResultText(fmt.Sprintf("%s is %s (%d bytes), not shown", res.Location, res.MediaType, len(res.Body))), nil
	default:
		return mcp.NewToolResultText(renderDocument(res.Location, res.Document)), nil
	}
}

func renderDocument(loc location.Location, doc *gemtext.Document) string {
	var b strings.Builder
	b.WriteString("URL: " + loc.String() + "\n\n")
	if doc != nil {
		b.Write(gemtext.Encode(doc.Lines))
	}
	return b.String()
}
