package bookmarks

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 100 * time.Millisecond

// Watch observes dir (the data directory holding the bookmarks file) and
// reloads the list when the file is changed by something other than this
// service, until ctx is cancelled. The directory is watched rather than the
// file because atomic writes replace the file's inode.
func (s *Service) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Info("bookmarks watcher: started", slog.String("dir", dir))

	// Editors often emit several events per save; coalesce them.
	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("bookmarks watcher: stopped")
			return nil

		case <-fire:
			changed, err := s.Reload()
			if err != nil {
				s.logger.Warn("bookmarks watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if changed {
				s.logger.Info("bookmarks watcher: external edit picked up", slog.Int("count", len(s.List())))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("bookmarks watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
