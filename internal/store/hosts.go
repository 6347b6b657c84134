package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/remi/internal/apperr"
	"github.com/starford/remi/internal/models"
)

// SaveHost pins a certificate for a host, replacing any previous pin. The
// original first_seen time survives a replacement.
func (db *DB) SaveHost(h models.KnownHost) error {
	if h.FirstSeen.IsZero() {
		h.FirstSeen = time.Now()
	}
	var notAfter any
	if !h.NotAfter.IsZero() {
		notAfter = h.NotAfter.UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO known_hosts (host, fingerprint, not_after, first_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			not_after   = excluded.not_after
	`, h.Host, h.Fingerprint, notAfter, h.FirstSeen.UTC())
	if err != nil {
		return fmt.Errorf("store: save host: %w", err)
	}
	return nil
}

// LookupHost returns the pin for host or apperr.ErrNotFound.
func (db *DB) LookupHost(host string) (*models.KnownHost, error) {
	var h models.KnownHost
	var notAfter sql.NullTime
	err := db.conn.QueryRow(`
		SELECT host, fingerprint, not_after, first_seen FROM known_hosts WHERE host = ?
	`, host).Scan(&h.Host, &h.Fingerprint, &notAfter, &h.FirstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: host %s: %w", host, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup host: %w", err)
	}
	if notAfter.Valid {
		h.NotAfter = notAfter.Time
	}
	return &h, nil
}

// DeleteHost forgets the pin for host.
func (db *DB) DeleteHost(host string) error {
	res, err := db.conn.Exec(`DELETE FROM known_hosts WHERE host = ?`, host)
	if err != nil {
		return fmt.Errorf("store: delete host: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: host %s: %w", host, apperr.ErrNotFound)
	}
	return nil
}

// ListHosts returns every pinned host ordered by name.
func (db *DB) ListHosts() ([]models.KnownHost, error) {
	rows, err := db.conn.Query(`SELECT host, fingerprint, not_after, first_seen FROM known_hosts ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("store: list hosts: %w", err)
	}
	defer rows.Close()

	out := []models.KnownHost{}
	for rows.Next() {
		var h models.KnownHost
		var notAfter sql.NullTime
		if err := rows.Scan(&h.Host, &h.Fingerprint, &notAfter, &h.FirstSeen); err != nil {
			return nil, err
		}
		if notAfter.Valid {
			h.NotAfter = notAfter.Time
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
