// Package bookmarks keeps saved locations in a gemtext file inside the data
// directory, so the list stays readable and editable by hand.
package bookmarks

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/starford/remi/internal/apperr"
	"github.com/starford/remi/internal/checksum"
	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/storage"
)

// FileName is the bookmarks file relative to the data directory.
const FileName = "bookmarks.gmi"

const heading = "Bookmarks"

// ChangeFunc is called with the full list after every change.
type ChangeFunc func([]models.Bookmark)

// Service coordinates the bookmarks file and its in-memory copy.
type Service struct {
	fs     storage.Provider
	logger *slog.Logger

	mu       sync.RWMutex
	items    []models.Bookmark
	sum      string // checksum of the file content last read or written
	onChange []ChangeFunc
}

// NewService loads the bookmarks file (a missing file is an empty list).
func NewService(fs storage.Provider, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{fs: fs, logger: logger, items: []models.Bookmark{}}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnChange registers fn to be notified after Add, Remove and external edits.
func (s *Service) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// List returns a copy of the bookmarks in file order.
func (s *Service) List() []models.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Bookmark{}, s.items...)
}

// Add appends a bookmark for rawURL. The URL is canonicalized first. Runs of
// whitespace in the label, line breaks included, collapse to one space, and
// an empty label defaults to the URL.
func (s *Service) Add(rawURL, label string) (models.Bookmark, error) {
	loc, err := location.Parse(rawURL)
	if err != nil {
		return models.Bookmark{}, fmt.Errorf("bookmarks: %w", err)
	}
	b := models.Bookmark{URL: loc.String(), Label: strings.Join(strings.Fields(label), " ")}
	if b.Label == "" {
		b.Label = b.URL
	}

	s.mu.Lock()
	for _, existing := range s.items {
		if existing.URL == b.URL {
			s.mu.Unlock()
			return models.Bookmark{}, fmt.Errorf("bookmarks: %s: %w", b.URL, apperr.ErrAlreadyExists)
		}
	}
	items := append(append([]models.Bookmark{}, s.items...), b)
	if err := s.saveLocked(items); err != nil {
		s.mu.Unlock()
		return models.Bookmark{}, err
	}
	s.mu.Unlock()

	s.notify(items)
	return b, nil
}

// Remove deletes the bookmark whose URL matches rawURL after canonicalization.
func (s *Service) Remove(rawURL string) error {
	key := rawURL
	if loc, err := location.Parse(rawURL); err == nil {
		key = loc.String()
	}

	s.mu.Lock()
	idx := -1
	for i, b := range s.items {
		if b.URL == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("bookmarks: %s: %w", key, apperr.ErrNotFound)
	}
	items := append(append([]models.Bookmark{}, s.items[:idx]...), s.items[idx+1:]...)
	if err := s.saveLocked(items); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.notify(items)
	return nil
}

// Reload re-reads the file and reports whether its content differed from
// what the service last read or wrote.
func (s *Service) Reload() (bool, error) {
	data, err := s.fs.Read(FileName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("bookmarks: %w", err)
	}
	sum := checksum.Sum(data)

	s.mu.Lock()
	if sum == s.sum {
		s.mu.Unlock()
		return false, nil
	}
	s.items = parse(data)
	s.sum = sum
	items := append([]models.Bookmark{}, s.items...)
	s.mu.Unlock()

	s.logger.Debug("bookmarks: reloaded", slog.Int("count", len(items)))
	s.notify(items)
	return true, nil
}

func (s *Service) saveLocked(items []models.Bookmark) error {
	data := encode(items)
	if err := s.fs.Write(FileName, data); err != nil {
		return fmt.Errorf("bookmarks: %w", err)
	}
	s.items = items
	s.sum = checksum.Sum(data)
	return nil
}

func (s *Service) notify(items []models.Bookmark) {
	s.mu.RLock()
	fns := append([]ChangeFunc(nil), s.onChange...)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(items)
	}
}

// parse keeps every link line with a valid gemini target; headings and prose
// added by hand are ignored.
func parse(data []byte) []models.Bookmark {
	doc := gemtext.Parse(data, location.Location{})
	out := []models.Bookmark{}
	seen := make(map[string]struct{})
	for _, l := range doc.Links() {
		loc, err := location.Parse(l.Target)
		if err != nil {
			continue
		}
		u := loc.String()
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, models.Bookmark{URL: u, Label: l.Text})
	}
	return out
}

func encode(items []models.Bookmark) []byte {
	lines := make([]gemtext.Line, 0, len(items)+2)
	lines = append(lines, gemtext.Heading(1, heading), gemtext.Text(""))
	for _, b := range items {
		lines = append(lines, gemtext.Link(b.URL, b.Label))
	}
	return gemtext.Encode(lines)
}
