package store

import (
	"fmt"
	"time"

	"github.com/starford/remi/internal/models"
)

// RecordVisit inserts or refreshes a page and its FTS entry within a transaction.
func (db *DB) RecordVisit(p models.PageVisit) error {
	if p.VisitedAt.IsZero() {
		p.VisitedAt = time.Now()
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO pages (url, title, body, visited_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title      = excluded.title,
			body       = excluded.body,
			visited_at = excluded.visited_at
	`, p.URL, p.Title, p.Body, p.VisitedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: record visit: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, p.URL, p.Title, p.Body); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentPages returns the most recently visited pages, newest first.
func (db *DB) RecentPages(limit int) ([]models.PageVisit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT url, title, visited_at FROM pages ORDER BY visited_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent pages: %w", err)
	}
	defer rows.Close()

	out := []models.PageVisit{}
	for rows.Next() {
		var p models.PageVisit
		if err := rows.Scan(&p.URL, &p.Title, &p.VisitedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
