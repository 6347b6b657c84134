package store

import "github.com/starford/remi/internal/models"

// HostStore persists pinned server certificates.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type HostStore interface {
	SaveHost(h models.KnownHost) error
	LookupHost(host string) (*models.KnownHost, error)
	DeleteHost(host string) error
	ListHosts() ([]models.KnownHost, error)
}

// PageStore records visited pages for history search.
type PageStore interface {
	RecordVisit(p models.PageVisit) error
	Search(query string, limit int) ([]models.SearchHit, error)
	RecentPages(limit int) ([]models.PageVisit, error)
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ HostStore = (*DB)(nil)
	_ PageStore = (*DB)(nil)
)
