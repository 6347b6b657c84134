package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/history"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/response"
)

func newID() string { return uuid.NewString() }

// navigate runs one navigation with navMu held.
func (e *Engine) navigate(ctx context.Context, base location.Location, reference string, replay bool) (*Result, error) {
	id := newID()
	start := time.Now()
	log := e.logger.With(slog.String("nav_id", id))

	target, err := location.Resolve(base, reference)
	if err != nil {
		return nil, e.fail(ctx, id, reference, err)
	}
	log.Debug("session: navigate", slog.String("url", target.String()), slog.Bool("replay", replay))

	res, err := e.follow(ctx, log, target)
	if err != nil {
		attempted := target.String()
		if res != nil {
			attempted = res.Location.String()
		}
		return nil, e.fail(ctx, id, attempted, err)
	}
	res.ID = id

	// Nothing is committed once the caller has given up.
	if err := ctx.Err(); err != nil {
		return nil, e.fail(ctx, id, res.Location.String(), err)
	}

	if res.Outcome == OutcomeDocument {
		e.commit(res, replay)
	}
	log.Info("session: navigation complete",
		slog.String("url", res.Location.String()),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("redirects", len(res.Redirects)),
		slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// follow fetches loc, following redirects up to the hop limit. On failure the
// returned Result, if any, carries the location that failed.
func (e *Engine) follow(ctx context.Context, log *slog.Logger, loc location.Location) (*Result, error) {
	var chain []location.Location
	for hops := 0; ; hops++ {
		raw, err := e.fetcher.Fetch(ctx, loc)
		if err != nil {
			return &Result{Location: loc}, err
		}
		status, err := response.ParseStatus(raw.Header)
		if err != nil {
			return &Result{Location: loc}, err
		}

		switch status.Class() {
		case response.ClassRedirect:
			if hops >= e.maxRedirects {
				return &Result{Location: loc}, fmt.Errorf("%w: more than %d", ErrTooManyRedirects, e.maxRedirects)
			}
			next, err := location.Resolve(loc, status.Meta)
			if err != nil {
				return &Result{Location: loc}, fmt.Errorf("redirect to %q: %w", status.Meta, err)
			}
			log.Debug("session: redirect",
				slog.String("from", loc.String()),
				slog.String("to", next.String()),
				slog.Bool("permanent", status.Permanent()))
			chain = append(chain, loc)
			loc = next
			continue

		case response.ClassInput:
			return &Result{
				Outcome:   OutcomeInput,
				Location:  loc,
				Status:    status,
				Redirects: chain,
				Prompt:    status.Meta,
				Sensitive: status.Sensitive(),
			}, nil

		case response.ClassSuccess:
			res := &Result{Location: loc, Status: status, Redirects: chain}
			switch response.Classify(status) {
			case response.NavigableDocument:
				res.Outcome = OutcomeDocument
				res.Document = gemtext.Parse(raw.Body, loc)
				if res.Document.Lossy {
					log.Warn("session: invalid UTF-8 replaced", slog.String("url", loc.String()))
				}
			case response.Opaque:
				res.Outcome = OutcomeOpaque
				res.MediaType, _ = response.MediaType(status)
				res.Body = raw.Body
			case response.None:
				return &Result{Location: loc}, fmt.Errorf("%w: success without a body kind", response.ErrMalformedHeader)
			}
			return res, nil

		default:
			return &Result{Location: loc}, response.Failure(status)
		}
	}
}

func (e *Engine) commit(res *Result, replay bool) {
	entry := history.Entry{Location: res.Location, Document: res.Document}

	e.stateMu.Lock()
	if cur, ok := e.history.Current(); replay && ok {
		// A replay refreshes the document only; the entry keeps its location
		// even when the refetch was redirected.
		entry.Location = cur.Location
		_ = e.history.Replace(entry)
	} else {
		e.history.Visit(entry)
	}
	if e.historyCap > 0 {
		e.history.Cap(e.historyCap)
	}
	e.stateMu.Unlock()

	if e.recorder != nil {
		err := e.recorder.RecordVisit(models.PageVisit{
			URL:   res.Location.String(),
			Title: res.Document.Title(),
			Body:  string(gemtext.Encode(res.Document.Lines)),
		})
		if err != nil {
			e.logger.Warn("session: record visit failed",
				slog.String("nav_id", res.ID),
				slog.String("error", err.Error()))
		}
	}
	e.notify(res)
}

// fail turns err into a console entry and the error returned to callers.
func (e *Engine) fail(ctx context.Context, id, attempted string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	msg := err.Error()
	if errors.Is(err, ErrCancelled) {
		msg = ErrCancelled.Error()
	}
	e.console.Append(attempted, msg)
	e.logger.Warn("session: navigation failed",
		slog.String("nav_id", id),
		slog.String("url", attempted),
		slog.String("error", err.Error()))
	return fmt.Errorf("session: %w: %w", ErrNavigationFailed, err)
}
