// Package models defines the domain types shared by remi's collaborators.
package models

import "time"

// Bookmark is one saved location.
type Bookmark struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// KnownHost is a pinned server certificate.
type KnownHost struct {
	// Host is the authority: the host name, plus ":port" off port 1965.
	Host        string    `json:"host"`
	Fingerprint string    `json:"fingerprint"`
	NotAfter    time.Time `json:"not_after"`
	FirstSeen   time.Time `json:"first_seen"`
}

// Expired reports whether the pinned certificate is past its validity at now.
func (h KnownHost) Expired(now time.Time) bool {
	return !h.NotAfter.IsZero() && now.After(h.NotAfter)
}

// PageVisit is a gemtext page recorded for history search.
type PageVisit struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Body      string    `json:"-"`
	VisitedAt time.Time `json:"visited_at"`
}

// SearchHit is one result of a history search.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
