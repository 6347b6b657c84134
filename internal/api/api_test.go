package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/remi/internal/bookmarks"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/session"
	"github.com/starford/remi/internal/store"
	"github.com/starford/remi/internal/testutil"
	"github.com/starford/remi/internal/transport"
	"github.com/starford/remi/internal/trust"
)

const home = "gemini://example.org/"

// fakeFetcher answers from a fixed table; unknown URLs get "51 Not found".
type fakeFetcher map[string]*transport.Response

func (f fakeFetcher) Fetch(_ context.Context, loc location.Location) (*transport.Response, error) {
	if resp, ok := f[loc.String()]; ok {
		return resp, nil
	}
	return &transport.Response{Header: "51 Not found"}, nil
}

func gemini(body string) *transport.Response {
	return &transport.Response{Header: "20 text/gemini", Body: []byte(body)}
}

type env struct {
	router  http.Handler
	engine  *session.Engine
	db      *store.DB
	dataDir string
}

func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) *env {
	t.Helper()

	dir, fs := testutil.TestDataDir(t)
	db := testutil.TestDB(t)

	fetcher := fakeFetcher{
		home:                            gemini("# Example\n=> /about About\n"),
		"gemini://example.org/about":    gemini("# About\nWe host capsules.\n"),
		"gemini://example.org/search":   {Header: "10 Search terms"},
		"gemini://example.org/search?q": gemini("# Results\n"),
		"gemini://example.org/logo.png": {Header: "20 image/png", Body: []byte{0x89, 'P', 'N', 'G'}},
		"gemini://example.org/old":      {Header: "31 /about"},
		"gemini://example.org/gone":     {Header: "52 Gone for good"},
	}
	engine := session.New(fetcher,
		session.WithHome(location.MustParse(home)),
		session.WithRecorder(db),
	)
	marks, err := bookmarks.NewService(fs, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	router := NewRouter(Deps{
		Engine:    engine,
		Bookmarks: marks,
		Pages:     db,
		Hosts:     trust.NewManager(db),
		Downloads: NewDownloads(fs),
	}, authEnabled, authToken, sseHandler)
	return &env{router: router, engine: engine, db: db, dataDir: dir}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestNavigateAndSession(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: ""})
	if w.Code != http.StatusOK {
		t.Fatalf("navigate home = %d, body = %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "about"})
	if w.Code != http.StatusOK {
		t.Fatalf("navigate about = %d, body = %s", w.Code, w.Body.String())
	}
	nav := decode[NavigationResponse](t, w)
	if nav.URL != "gemini://example.org/about" || nav.Title != "About" || nav.Outcome != session.OutcomeDocument {
		t.Errorf("navigation = %+v", nav)
	}

	w = e.do(t, http.MethodGet, "/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session = %d", w.Code)
	}
	var snap struct {
		Home       string `json:"home"`
		CanGoBack  bool   `json:"can_go_back"`
		CanForward bool   `json:"can_go_forward"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Home != home || !snap.CanGoBack || snap.CanForward {
		t.Errorf("session = %s", w.Body.String())
	}
}

func TestBackForward(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodPost, "/back", nil); w.Code != http.StatusConflict {
		t.Errorf("back on empty history = %d, want 409", w.Code)
	}

	e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: home})
	e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "/about"})

	w := e.do(t, http.MethodPost, "/back", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("back = %d, body = %s", w.Code, w.Body.String())
	}
	if nav := decode[NavigationResponse](t, w); nav.URL != home {
		t.Errorf("back url = %q", nav.URL)
	}
	w = e.do(t, http.MethodPost, "/forward", nil)
	if nav := decode[NavigationResponse](t, w); nav.URL != "gemini://example.org/about" {
		t.Errorf("forward url = %q", nav.URL)
	}
	if w := e.do(t, http.MethodPost, "/forward", nil); w.Code != http.StatusConflict {
		t.Errorf("forward at end = %d, want 409", w.Code)
	}
}

func TestNavigate_Redirect(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/old"})
	nav := decode[NavigationResponse](t, w)
	if nav.URL != "gemini://example.org/about" {
		t.Errorf("url = %q", nav.URL)
	}
	if len(nav.Redirects) != 1 || nav.Redirects[0] != "gemini://example.org/old" {
		t.Errorf("redirects = %v", nav.Redirects)
	}
}

func TestNavigate_ServerFailure(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/gone"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("failure = %d, want 502", w.Code)
	}
	body := decode[errResponse](t, w)
	if body.Status == nil || body.Status.Code != 52 {
		t.Errorf("status = %+v", body.Status)
	}

	w = e.do(t, http.MethodGet, "/console", nil)
	console := decode[ConsoleResponse](t, w)
	if len(console.Entries) != 1 || console.Entries[0].Location != "gemini://example.org/gone" {
		t.Errorf("console = %+v", console.Entries)
	}

	if w := e.do(t, http.MethodDelete, "/console", nil); w.Code != http.StatusNoContent {
		t.Errorf("clear console = %d", w.Code)
	}
	if n := e.engine.Console().Len(); n != 0 {
		t.Errorf("console len after clear = %d", n)
	}
}

func TestNavigate_Malformed(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "https://example.org/"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unsupported scheme = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/navigate", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json = %d, want 400", rec.Code)
	}
}

func TestInputPrompt(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/search"})
	nav := decode[NavigationResponse](t, w)
	if nav.Outcome != session.OutcomeInput || nav.Prompt != "Search terms" {
		t.Fatalf("prompt = %+v", nav)
	}

	w = e.do(t, http.MethodPost, "/input", InputRequest{URL: nav.URL, Text: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("input = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[NavigationResponse](t, w); got.Title != "Results" {
		t.Errorf("input result = %+v", got)
	}

	if w := e.do(t, http.MethodPost, "/input", InputRequest{URL: "not a url", Text: "q"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad prompt url = %d, want 400", w.Code)
	}
}

func TestNavigate_SaveOpaque(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/logo.png", Save: true})
	nav := decode[NavigationResponse](t, w)
	if nav.Outcome != session.OutcomeOpaque || nav.MediaType != "image/png" || nav.SavedAs != "logo.png" {
		t.Fatalf("opaque = %+v", nav)
	}
	if _, err := os.Stat(filepath.Join(e.dataDir, "downloads", "logo.png")); err != nil {
		t.Errorf("saved file: %v", err)
	}

	w = e.do(t, http.MethodGet, "/downloads", nil)
	list := decode[DownloadListResponse](t, w)
	if len(list.Files) != 1 || list.Files[0].Path != "logo.png" {
		t.Errorf("downloads = %+v", list.Files)
	}

	w = e.do(t, http.MethodGet, "/downloads/logo.png", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("serve = %d %q", w.Code, w.Body.Bytes())
	}
	if w := e.do(t, http.MethodGet, "/downloads/missing.png", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing download = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/downloads/..", nil); w.Code == http.StatusOK {
		t.Error("traversal should not succeed")
	}
}

func TestBookmarks(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodPost, "/bookmarks", BookmarkRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("bookmark without current page = %d, want 400", w.Code)
	}

	e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/about"})
	w := e.do(t, http.MethodPost, "/bookmarks", BookmarkRequest{})
	if w.Code != http.StatusCreated {
		t.Fatalf("bookmark current = %d, body = %s", w.Code, w.Body.String())
	}
	b := decode[models.Bookmark](t, w)
	if b.URL != "gemini://example.org/about" || b.Label != "About" {
		t.Errorf("bookmark = %+v", b)
	}
	if w := e.do(t, http.MethodPost, "/bookmarks", BookmarkRequest{URL: b.URL}); w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}

	w = e.do(t, http.MethodGet, "/bookmarks", nil)
	if list := decode[BookmarkListResponse](t, w); len(list.Bookmarks) != 1 {
		t.Errorf("bookmarks = %+v", list.Bookmarks)
	}

	target := "/bookmarks/" + url.PathEscape(b.URL)
	if w := e.do(t, http.MethodDelete, target, nil); w.Code != http.StatusNoContent {
		t.Errorf("remove = %d, want 204", w.Code)
	}
	if w := e.do(t, http.MethodDelete, target, nil); w.Code != http.StatusNotFound {
		t.Errorf("remove again = %d, want 404", w.Code)
	}
}

func TestSearchAndHistory(t *testing.T) {
	e := testEnv(t, "")

	e.do(t, http.MethodPost, "/navigate", NavigateRequest{URL: "gemini://example.org/about"})

	w := e.do(t, http.MethodGet, "/search?q=capsules", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	res := decode[SearchResponse](t, w)
	if len(res.Results) != 1 || res.Results[0].URL != "gemini://example.org/about" {
		t.Errorf("results = %+v", res.Results)
	}

	w = e.do(t, http.MethodGet, "/history?limit=5", nil)
	hist := decode[HistoryResponse](t, w)
	if len(hist.Pages) != 1 || hist.Pages[0].Title != "About" {
		t.Errorf("history = %+v", hist.Pages)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestHosts(t *testing.T) {
	e := testEnv(t, "")

	err := e.db.SaveHost(models.KnownHost{
		Host:        "example.org",
		Fingerprint: "AA:BB",
		FirstSeen:   time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, "/hosts", nil)
	if list := decode[HostListResponse](t, w); len(list.Hosts) != 1 || list.Hosts[0].Host != "example.org" {
		t.Errorf("hosts = %+v", list.Hosts)
	}
	if w := e.do(t, http.MethodDelete, "/hosts/example.org", nil); w.Code != http.StatusNoContent {
		t.Errorf("forget = %d, want 204", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/hosts/example.org", nil); w.Code != http.StatusNotFound {
		t.Errorf("forget again = %d, want 404", w.Code)
	}
}

func TestCancelIdle(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/cancel", nil)
	if got := decode[map[string]bool](t, w); got["cancelled"] {
		t.Error("cancel with nothing in flight should report false")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed session = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	if w := e.do(t, http.MethodGet, "/session", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")

	if w := e.do(t, http.MethodGet, "/session", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvFull(t, true, "secret", sseStub)

	if w := e.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	e := testEnvFull(t, false, "", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvFull(t, true, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
