package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/storage"
)

const downloadDir = "downloads"

// Downloads stores opaque response bodies in the data directory.
type Downloads struct {
	fs storage.Provider
}

// NewDownloads creates a Downloads rooted at the provider's downloads/ dir.
func NewDownloads(fs storage.Provider) *Downloads {
	return &Downloads{fs: fs}
}

// safeName validates that the filename is a plain name (no path separators,
// no traversal) and returns its path relative to the data root.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	if name != path.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return path.Join(downloadDir, name), nil
}

// nameFor derives a file name from the last path segment of loc, falling
// back to the host for directory-like paths.
func nameFor(loc location.Location) string {
	base := path.Base(loc.Path())
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		base = loc.Host()
	}
	return base
}

// Save writes body under a name derived from loc and returns that name.
func (d *Downloads) Save(loc location.Location, body []byte) (string, error) {
	name := nameFor(loc)
	rel, err := safeName(name)
	if err != nil {
		return "", err
	}
	if err := d.fs.Write(rel, body); err != nil {
		return "", err
	}
	return name, nil
}

// List handles GET /api/downloads.
func (d *Downloads) List(w http.ResponseWriter, _ *http.Request) {
	files, err := d.fs.List(downloadDir, "")
	if err != nil {
		slog.Error("list downloads failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	for i := range files {
		files[i].Path = path.Base(files[i].Path)
	}
	writeJSON(w, http.StatusOK, DownloadListResponse{Files: files})
}

// ServeFile handles GET /api/downloads/{filename}.
func (d *Downloads) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rel, err := safeName(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := d.fs.Read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("read download failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
