package api

import (
	"github.com/starford/remi/internal/console"
	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/response"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/storage"
)

// NavigateRequest is the request body for POST /navigate.
type NavigateRequest struct {
	// URL is absolute or relative to the current page. Empty means the
	// current page, or home when nothing has been visited.
	URL    string `json:"url" example:"gemini://geminiprotocol.net/"`
	Replay bool   `json:"replay,omitempty"`
	// Save stores an opaque body under downloads/.
	Save bool `json:"save,omitempty"`
}

// InputRequest answers an input prompt.
type InputRequest struct {
	URL  string `json:"url" example:"gemini://example.org/search" validate:"required"`
	Text string `json:"text" example:"gemini clients"`
}

// BookmarkRequest is the request body for POST /bookmarks. An empty URL
// bookmarks the current page.
type BookmarkRequest struct {
	URL   string `json:"url,omitempty" example:"gemini://example.org/"`
	Label string `json:"label,omitempty" example:"Example capsule"`
}

// NavigationResponse describes the outcome of a navigation.
type NavigationResponse struct {
	ID        string            `json:"id" validate:"required"`
	Outcome   session.Outcome   `json:"outcome" example:"document" validate:"required"`
	URL       string            `json:"url" validate:"required"`
	Status    response.Status   `json:"status"`
	Redirects []string          `json:"redirects"`
	Title     string            `json:"title,omitempty"`
	Document  *gemtext.Document `json:"document,omitempty"`
	MediaType string            `json:"media_type,omitempty" example:"image/png"`
	// Body is base64-encoded by encoding/json.
	Body      []byte `json:"body,omitempty"`
	Size      int    `json:"size,omitempty"`
	SavedAs   string `json:"saved_as,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

func newNavigationResponse(res *session.Result) NavigationResponse {
	out := NavigationResponse{
		ID:        res.ID,
		Outcome:   res.Outcome,
		URL:       res.Location.String(),
		Status:    res.Status,
		Redirects: locationStrings(res.Redirects),
		Document:  res.Document,
		MediaType: res.MediaType,
		Body:      res.Body,
		Size:      len(res.Body),
		Prompt:    res.Prompt,
		Sensitive: res.Sensitive,
	}
	if res.Document != nil {
		out.Title = res.Document.Title()
	}
	return out
}

// SessionResponse is the read-only view of the session.
type SessionResponse struct {
	Home string `json:"home"`
	session.Snapshot
}

// ConsoleResponse wraps console entries.
type ConsoleResponse struct {
	Entries []console.Entry `json:"entries" validate:"required"`
}

// BookmarkListResponse wraps bookmarks.
type BookmarkListResponse struct {
	Bookmarks []models.Bookmark `json:"bookmarks" validate:"required"`
}

// SearchResponse wraps history search results.
type SearchResponse struct {
	Results []models.SearchHit `json:"results" validate:"required"`
}

// HistoryResponse wraps recently visited pages.
type HistoryResponse struct {
	Pages []models.PageVisit `json:"pages" validate:"required"`
}

// HostListResponse wraps pinned certificates.
type HostListResponse struct {
	Hosts []models.KnownHost `json:"hosts" validate:"required"`
}

// DownloadListResponse wraps saved files.
type DownloadListResponse struct {
	Files []storage.FileInfo `json:"files" validate:"required"`
}

func locationStrings(locs []location.Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}
