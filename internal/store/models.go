package store

import (
	"time"

	"chronicle/anchors/internal/anchor"
)

type Document struct {
	ID        string
	Title     string
	HeadHash  string
	UpdatedBy string
	UpdatedAt time.Time
}

// AnchorRecord is a stored anchor with the outcome of its last recovery.
// Status and MatchQuality are empty once the anchor has been positioned by
// live tracking.
type AnchorRecord struct {
	DocumentID   string              `json:"documentId"`
	Anchor       anchor.Anchor       `json:"anchor"`
	Status       anchor.Status       `json:"status,omitempty"`
	MatchQuality anchor.MatchQuality `json:"matchQuality,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// CommitInfo describes one revision of a document. It is also the output of
// the import, edit and history commands.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
