// Package history keeps the back/forward stacks of visited documents.
package history

import (
	"errors"

	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/location"
)

var ErrNoHistory = errors.New("no history in that direction")

// Entry is a visited location together with the document it produced.
type Entry struct {
	Location location.Location `json:"location"`
	Document *gemtext.Document `json:"document"`
}

// History holds the entries before and after the current one.
//
// past is ordered oldest to most recent. forward is kept as a stack whose top
// (last element) is the nearest entry, so both Back and Forward are O(1).
// The zero value is an empty history.
type History struct {
	past    []Entry
	current *Entry
	forward []Entry
}

// Visit makes e current, pushing the previous current onto the past and
// discarding everything ahead.
func (h *History) Visit(e Entry) {
	if h.current != nil {
		h.past = append(h.past, *h.current)
	}
	h.current = &e
	clear(h.forward)
	h.forward = h.forward[:0]
}

// Back moves one step into the past.
func (h *History) Back() error {
	if len(h.past) == 0 || h.current == nil {
		return ErrNoHistory
	}
	h.forward = append(h.forward, *h.current)
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.current = &prev
	return nil
}

// Forward moves one step towards the most recently visited entry.
func (h *History) Forward() error {
	if len(h.forward) == 0 || h.current == nil {
		return ErrNoHistory
	}
	h.past = append(h.past, *h.current)
	next := h.forward[len(h.forward)-1]
	h.forward = h.forward[:len(h.forward)-1]
	h.current = &next
	return nil
}

// Replace swaps the current entry without touching either stack. It is used
// when a replayed location is re-fetched.
func (h *History) Replace(e Entry) error {
	if h.current == nil {
		return ErrNoHistory
	}
	h.current = &e
	return nil
}

// Current returns the entry being viewed.
func (h *History) Current() (Entry, bool) {
	if h.current == nil {
		return Entry{}, false
	}
	return *h.current, true
}

func (h *History) CanGoBack() bool    { return h.current != nil && len(h.past) > 0 }
func (h *History) CanGoForward() bool { return h.current != nil && len(h.forward) > 0 }

// Past returns a copy of the past entries, oldest first.
func (h *History) Past() []Entry {
	return append([]Entry(nil), h.past...)
}

// Future returns a copy of the forward entries, nearest first.
func (h *History) Future() []Entry {
	out := make([]Entry, len(h.forward))
	for i, e := range h.forward {
		out[len(h.forward)-1-i] = e
	}
	return out
}

// Len returns the total number of entries.
func (h *History) Len() int {
	n := len(h.past) + len(h.forward)
	if h.current != nil {
		n++
	}
	return n
}

// Cap drops the oldest past entries so that at most n remain. n <= 0 means
// no bound.
func (h *History) Cap(n int) {
	if n <= 0 || len(h.past) <= n {
		return
	}
	drop := len(h.past) - n
	clear(h.past[:drop])
	h.past = append(h.past[:0], h.past[drop:]...)
}
