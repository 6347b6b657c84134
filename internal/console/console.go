// Package console holds the append-only log of failed navigations shown to
// the user.
package console

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one user-visible message about a navigation attempt.
type Entry struct {
	ID       string    `json:"id"`
	Location string    `json:"location"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Listener is notified after every append.
type Listener func(Entry)

// Log is safe for concurrent use. Entries are never modified once appended;
// consumers decide when to Trim or Clear.
type Log struct {
	mu        sync.RWMutex
	entries   []Entry
	listeners []Listener
	now       func() time.Time
}

// New creates an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// OnAppend registers a listener. Listeners run synchronously after the lock
// is released and must not call back into the log's mutating methods.
func (l *Log) OnAppend(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Append records a message about location and returns the stored entry.
func (l *Log) Append(location, message string) Entry {
	e := Entry{
		ID:       uuid.NewString(),
		Location: location,
		Message:  message,
		Time:     l.now(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// Entries returns a copy of all entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Trim keeps only the newest n entries.
func (l *Log) Trim(n int) {
	if n < 0 {
		n = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) <= n {
		return
	}
	l.entries = append([]Entry(nil), l.entries[len(l.entries)-n:]...)
}

// Clear removes every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
