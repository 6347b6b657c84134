// Package storage defines the data-directory file abstraction used for the
// bookmarks file and saved downloads.
package storage

import "time"

// FileInfo describes one stored file.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for data-directory file operations. All paths
// are relative to the provider root.
type Provider interface {
	// List returns every file under dir whose name ends in suffix; an empty
	// suffix matches all files.
	List(dir, suffix string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
