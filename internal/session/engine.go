// Package session drives navigations: resolve, fetch, follow redirects,
// parse and commit into history. Failures end up in the console, never in
// history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/remi/internal/console"
	"github.com/starford/remi/internal/history"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/transport"
)

// DefaultMaxRedirects is the number of redirects followed automatically.
const DefaultMaxRedirects = 5

var (
	ErrNavigationFailed = errors.New("navigation failed")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrCancelled        = errors.New("navigation cancelled")
	ErrReplayMismatch   = errors.New("replay target is not the current page")
)

// Fetcher performs one request/response exchange. *transport.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, loc location.Location) (*transport.Response, error)
}

// Recorder is told about every committed page. store.PageStore implements it.
type Recorder interface {
	RecordVisit(p models.PageVisit) error
}

// CommitFunc is called after a document has been committed to history.
type CommitFunc func(*Result)

// Engine owns one browsing session. All methods are safe for concurrent use;
// navigations are serialised and a new one cancels the one in flight.
type Engine struct {
	fetcher      Fetcher
	home         location.Location
	maxRedirects int
	refetch      bool
	historyCap   int
	recorder     Recorder
	logger       *slog.Logger
	console      *console.Log
	onCommit     []CommitFunc

	navMu sync.Mutex // held for the whole of a navigation

	stateMu sync.RWMutex // guards history
	history history.History

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	seq      uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithHome sets the location used to resolve references when nothing has
// been visited yet.
func WithHome(loc location.Location) Option {
	return func(e *Engine) { e.home = loc }
}

// WithMaxRedirects sets the redirect hop limit.
func WithMaxRedirects(n int) Option {
	return func(e *Engine) { e.maxRedirects = n }
}

// WithRefetchOnReplay makes Back and Forward fetch the page again instead of
// showing the stored document.
func WithRefetchOnReplay(on bool) Option {
	return func(e *Engine) { e.refetch = on }
}

// WithHistoryCap bounds the number of entries kept behind the current one.
func WithHistoryCap(n int) Option {
	return func(e *Engine) { e.historyCap = n }
}

// WithRecorder records committed pages, e.g. for history search.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithConsole uses an existing console log.
func WithConsole(c *console.Log) Option {
	return func(e *Engine) { e.console = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine that fetches through f.
func New(f Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:      f,
		maxRedirects: DefaultMaxRedirects,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.console == nil {
		e.console = console.New()
	}
	return e
}

// OnCommit registers fn. Callbacks run on the navigating goroutine after the
// history lock is released.
func (e *Engine) OnCommit(fn CommitFunc) {
	e.navMu.Lock()
	defer e.navMu.Unlock()
	e.onCommit = append(e.onCommit, fn)
}

// Console returns the log of failed navigations.
func (e *Engine) Console() *console.Log { return e.console }

// Home returns the configured home location.
func (e *Engine) Home() location.Location { return e.home }

// Navigate resolves reference against the current location (or home) and
// visits it. With asReplay the reference must resolve to the current page,
// and a committed document refreshes the current entry's document instead of
// becoming a new entry. An empty reference with nothing visited navigates
// home.
func (e *Engine) Navigate(ctx context.Context, reference string, asReplay bool) (*Result, error) {
	if asReplay {
		if cur, ok := e.currentEntry(); ok {
			target, err := location.Resolve(cur.Location, reference)
			if err == nil && !target.Equal(cur.Location) {
				return nil, fmt.Errorf("session: %w: %s", ErrReplayMismatch, target)
			}
		}
	}

	ctx, done := e.begin(ctx)
	defer done()

	e.navMu.Lock()
	defer e.navMu.Unlock()

	base := e.home
	if cur, ok := e.currentEntry(); ok {
		base = cur.Location
	}
	return e.navigate(ctx, base, reference, asReplay)
}

// SubmitInput answers an input prompt issued by prompt with text.
func (e *Engine) SubmitInput(ctx context.Context, prompt location.Location, text string) (*Result, error) {
	ctx, done := e.begin(ctx)
	defer done()

	e.navMu.Lock()
	defer e.navMu.Unlock()

	target, err := location.WithInput(prompt, text)
	if err != nil {
		return nil, e.fail(ctx, "", prompt.String(), err)
	}
	return e.navigate(ctx, target, "", false)
}

// Back moves one entry back. With refetch on replay the page is fetched
// again and its document replaced; a failed refetch leaves the stored one.
func (e *Engine) Back(ctx context.Context) (*Result, error) {
	return e.replay(ctx, (*history.History).CanGoBack, (*history.History).Back)
}

// Forward moves one entry forward; see Back.
func (e *Engine) Forward(ctx context.Context) (*Result, error) {
	return e.replay(ctx, (*history.History).CanGoForward, (*history.History).Forward)
}

// Reload fetches the current location again and replaces its document.
func (e *Engine) Reload(ctx context.Context) (*Result, error) {
	if _, ok := e.currentEntry(); !ok {
		return nil, fmt.Errorf("session: reload: %w", history.ErrNoHistory)
	}

	ctx, done := e.begin(ctx)
	defer done()

	e.navMu.Lock()
	defer e.navMu.Unlock()

	cur, ok := e.currentEntry()
	if !ok {
		return nil, fmt.Errorf("session: reload: %w", history.ErrNoHistory)
	}
	return e.navigate(ctx, cur.Location, "", true)
}

// replay moves through history. A move that cannot happen returns
// ErrNoHistory before anything in flight is cancelled.
func (e *Engine) replay(ctx context.Context, can func(*history.History) bool, move func(*history.History) error) (*Result, error) {
	e.stateMu.RLock()
	ok := can(&e.history)
	e.stateMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session: %w", history.ErrNoHistory)
	}

	ctx, done := e.begin(ctx)
	defer done()

	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.stateMu.Lock()
	err := move(&e.history)
	cur, _ := e.history.Current()
	e.stateMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	if e.refetch {
		return e.navigate(ctx, cur.Location, "", true)
	}
	res := &Result{
		ID:       newID(),
		Outcome:  OutcomeDocument,
		Location: cur.Location,
		Document: cur.Document,
	}
	e.notify(res)
	return res, nil
}

// Cancel abandons the navigation in flight, if any, closing its connection.
// It reports whether there was one.
func (e *Engine) Cancel() bool {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	e.cancel = nil
	return true
}

// CurrentLocation returns the location being viewed, for bookmarking.
func (e *Engine) CurrentLocation() (location.Location, bool) {
	cur, ok := e.currentEntry()
	return cur.Location, ok
}

// Snapshot returns the current entry and the back/forward state. It does not
// wait for a navigation in flight.
func (e *Engine) Snapshot() Snapshot {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		CanGoBack:    e.history.CanGoBack(),
		CanGoForward: e.history.CanGoForward(),
		Back:         []location.Location{},
		Forward:      []location.Location{},
	}
	if cur, ok := e.history.Current(); ok {
		s.Current = &cur
	}
	past := e.history.Past()
	for i := len(past) - 1; i >= 0; i-- {
		s.Back = append(s.Back, past[i].Location)
	}
	for _, f := range e.history.Future() {
		s.Forward = append(s.Forward, f.Location)
	}
	return s
}

func (e *Engine) currentEntry() (history.Entry, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.history.Current()
}

// begin cancels the navigation in flight and returns a context for the new
// one. done must be called when the navigation returns.
func (e *Engine) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	e.cancelMu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.seq++
	id := e.seq
	e.cancel = cancel
	e.cancelMu.Unlock()

	return ctx, func() {
		cancel()
		e.cancelMu.Lock()
		if e.seq == id {
			e.cancel = nil
		}
		e.cancelMu.Unlock()
	}
}

func (e *Engine) notify(res *Result) {
	for _, fn := range e.onCommit {
		fn(res)
	}
}
