package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Session.
	r.Get("/session", h.Session)
	r.Post("/navigate", h.Navigate)
	r.Post("/back", h.Back)
	r.Post("/forward", h.Forward)
	r.Post("/reload", h.Reload)
	r.Post("/cancel", h.Cancel)
	r.Post("/input", h.SubmitInput)

	// Console.
	r.Get("/console", h.Console)
	r.Delete("/console", h.ClearConsole)

	// Bookmarks.
	r.Get("/bookmarks", h.ListBookmarks)
	r.Post("/bookmarks", h.AddBookmark)
	r.Delete("/bookmarks/*", h.RemoveBookmark)

	// History search.
	r.Get("/search", h.Search)
	r.Get("/history", h.RecentPages)

	// Pinned certificates.
	r.Get("/hosts", h.ListHosts)
	r.Delete("/hosts/{host}", h.ForgetHost)

	// Saved opaque bodies.
	r.Get("/downloads", h.downloads.List)
	r.Get("/downloads/{filename}", h.downloads.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
