package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/remi/internal/apperr"
	"github.com/starford/remi/internal/bookmarks"
	"github.com/starford/remi/internal/history"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/response"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/store"
	"github.com/starford/remi/internal/transport"
)

// HostManager lists and forgets pinned certificates. *trust.Manager
// implements it.
type HostManager interface {
	Hosts() ([]models.KnownHost, error)
	Forget(host string) error
}

// Deps are the collaborators the API exposes.
type Deps struct {
	Engine    *session.Engine
	Bookmarks *bookmarks.Service
	Pages     store.PageStore
	Hosts     HostManager
	Downloads *Downloads
}

// Handler holds API route handlers.
type Handler struct {
	engine    *session.Engine
	bookmarks *bookmarks.Service
	pages     store.PageStore
	hosts     HostManager
	downloads *Downloads
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		engine:    d.Engine,
		bookmarks: d.Bookmarks,
		pages:     d.Pages,
		hosts:     d.Hosts,
		downloads: d.Downloads,
	}
}

// Session handles GET /api/session.
//
//	@Summary		Current page and back/forward state
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		Home:     h.engine.Home().String(),
		Snapshot: h.engine.Snapshot(),
	})
}

// Navigate handles POST /api/navigate.
//
//	@Summary		Navigate to a URL relative to the current page
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NavigateRequest	true	"Target"
//	@Success		200		{object}	NavigationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/navigate [post]
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.engine.Navigate(r.Context(), req.URL, req.Replay)
	if err != nil {
		writeNavigationError(w, err)
		return
	}
	out := newNavigationResponse(res)
	if req.Save && res.Outcome == session.OutcomeOpaque {
		name, err := h.downloads.Save(res.Location, res.Body)
		if err != nil {
			slog.Error("save download failed", slog.String("url", out.URL), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("failed to save download"))
			return
		}
		out.SavedAs = name
	}
	writeJSON(w, http.StatusOK, out)
}

// Back handles POST /api/back.
//
//	@Summary		Go back one page
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	NavigationResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/back [post]
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Back(r.Context())
	h.writeResult(w, res, err)
}

// Forward handles POST /api/forward.
func (h *Handler) Forward(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Forward(r.Context())
	h.writeResult(w, res, err)
}

// Reload handles POST /api/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Reload(r.Context())
	h.writeResult(w, res, err)
}

// Cancel handles POST /api/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.engine.Cancel()})
}

// SubmitInput handles POST /api/input.
//
//	@Summary		Answer an input prompt
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InputRequest	true	"Prompt URL and answer"
//	@Success		200		{object}	NavigationResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/input [post]
func (h *Handler) SubmitInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if !readJSON(w, r, &req) {
		return
	}
	prompt, err := location.Parse(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.engine.SubmitInput(r.Context(), prompt, req.Text)
	h.writeResult(w, res, err)
}

func (h *Handler) writeResult(w http.ResponseWriter, res *session.Result, err error) {
	if err != nil {
		writeNavigationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newNavigationResponse(res))
}

func writeNavigationError(w http.ResponseWriter, err error) {
	var se *response.StatusError
	switch {
	case errors.Is(err, history.ErrNoHistory):
		writeJSON(w, http.StatusConflict, errorBody(history.ErrNoHistory.Error()))
	case errors.Is(err, session.ErrCancelled):
		writeJSON(w, http.StatusConflict, errorBody(session.ErrCancelled.Error()))
	case errors.Is(err, location.ErrMalformed), errors.Is(err, location.ErrUnsupportedScheme),
		errors.Is(err, session.ErrReplayMismatch):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadGateway, errResponse{Error: err.Error(), Status: &se.Status})
	case errors.Is(err, transport.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	}
}

// Console handles GET /api/console.
func (h *Handler) Console(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ConsoleResponse{Entries: h.engine.Console().Entries()})
}

// ClearConsole handles DELETE /api/console.
func (h *Handler) ClearConsole(w http.ResponseWriter, _ *http.Request) {
	h.engine.Console().Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarks handles GET /api/bookmarks.
//
//	@Summary		List bookmarks
//	@Tags			bookmarks
//	@Produce		json
//	@Success		200	{object}	BookmarkListResponse
//	@Security		BearerAuth
//	@Router			/bookmarks [get]
func (h *Handler) ListBookmarks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BookmarkListResponse{Bookmarks: h.bookmarks.List()})
}

// AddBookmark handles POST /api/bookmarks.
//
//	@Summary		Bookmark a URL or the current page
//	@Tags			bookmarks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BookmarkRequest	false	"Bookmark"
//	@Success		201		{object}	models.Bookmark
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bookmarks [post]
func (h *Handler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	var req BookmarkRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		cur, ok := h.engine.CurrentLocation()
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody("no current page to bookmark"))
			return
		}
		req.URL = cur.String()
		if req.Label == "" {
			req.Label = h.currentTitle()
		}
	}
	b, err := h.bookmarks.Add(req.URL, req.Label)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("bookmark already exists"))
		case errors.Is(err, location.ErrMalformed), errors.Is(err, location.ErrUnsupportedScheme):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("add bookmark failed", slog.String("url", req.URL), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) currentTitle() string {
	snap := h.engine.Snapshot()
	if snap.Current == nil || snap.Current.Document == nil {
		return ""
	}
	return snap.Current.Document.Title()
}

// RemoveBookmark handles DELETE /api/bookmarks/*. The URL may be
// percent-encoded as a single path segment.
func (h *Handler) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return
	}
	if err := h.bookmarks.Remove(raw); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("remove bookmark failed", slog.String("url", raw), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across visited pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.pages.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// RecentPages handles GET /api/history.
func (h *Handler) RecentPages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pages, err := h.pages.RecentPages(limit)
	if err != nil {
		slog.Error("recent pages failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Pages: pages})
}

// ListHosts handles GET /api/hosts.
func (h *Handler) ListHosts(w http.ResponseWriter, _ *http.Request) {
	hosts, err := h.hosts.Hosts()
	if err != nil {
		slog.Error("list hosts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, HostListResponse{Hosts: hosts})
}

// ForgetHost handles DELETE /api/hosts/{host}.
func (h *Handler) ForgetHost(w http.ResponseWriter, r *http.Request) {
	host := strings.ToLower(chi.URLParam(r, "host"))
	if err := h.hosts.Forget(host); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("forget host failed", slog.String("host", host), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
