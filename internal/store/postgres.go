package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chronicle/anchors/internal/anchor"
)

// ErrNotFound is returned when a document row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, head_hash, updated_by_name, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &item.HeadHash, &item.UpdatedBy, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("get document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, head_hash, updated_by_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET title=EXCLUDED.title, head_hash=EXCLUDED.head_hash, updated_by_name=EXCLUDED.updated_by_name, updated_at=NOW()
	`, item.ID, item.Title, item.HeadHash, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnchors(ctx context.Context, documentID string) ([]AnchorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, id, label, start_offset, end_offset, anchor_text, resolved, COALESCE(status, ''), COALESCE(match_quality, ''), updated_at
		FROM annotation_anchors
		WHERE document_id=$1
		ORDER BY start_offset ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	items := make([]AnchorRecord, 0)
	for rows.Next() {
		var item AnchorRecord
		var status, quality string
		if err := rows.Scan(
			&item.DocumentID,
			&item.Anchor.ID,
			&item.Anchor.Label,
			&item.Anchor.StartOffset,
			&item.Anchor.EndOffset,
			&item.Anchor.AnchorText,
			&item.Anchor.Resolved,
			&status,
			&quality,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		item.Status = anchor.Status(status)
		item.MatchQuality = anchor.MatchQuality(quality)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchors: %w", err)
	}
	return items, nil
}

// UpsertAnchor stores a newly created or edited anchor.
func (s *PostgresStore) UpsertAnchor(ctx context.Context, documentID string, a anchor.Anchor) error {
	if _, err := s.db.ExecContext(ctx, upsertAnchorSQL, documentID, a.ID, a.Label, a.StartOffset, a.EndOffset, a.AnchorText, a.Resolved); err != nil {
		return fmt.Errorf("upsert anchor %s: %w", a.ID, err)
	}
	return nil
}

const upsertAnchorSQL = `
	INSERT INTO annotation_anchors (document_id, id, label, start_offset, end_offset, anchor_text, resolved)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (document_id, id) DO UPDATE
	SET label=EXCLUDED.label,
		start_offset=EXCLUDED.start_offset,
		end_offset=EXCLUDED.end_offset,
		anchor_text=EXCLUDED.anchor_text,
		resolved=EXCLUDED.resolved,
		status=NULL,
		match_quality=NULL,
		updated_at=NOW()
`

// SaveTracked replaces the document's anchor set with the positions reported
// by live tracking. Anchors missing from the batch had their text deleted and
// are removed; an empty batch clears the document.
func (s *PostgresStore) SaveTracked(ctx context.Context, documentID string, anchors []anchor.Anchor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tracked: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(anchors))
	for _, a := range anchors {
		ids = append(ids, a.ID)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM annotation_anchors
		WHERE document_id=$1 AND id <> ALL($2::text[])
	`, documentID, ids); err != nil {
		return fmt.Errorf("remove untracked anchors: %w", err)
	}
	if err := upsertAnchors(ctx, tx, documentID, anchors); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tracked: %w", err)
	}
	return nil
}

// UpsertAnchors stores a batch of anchors in one transaction without touching
// anchors outside the batch.
func (s *PostgresStore) UpsertAnchors(ctx context.Context, documentID string, anchors []anchor.Anchor) error {
	if len(anchors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert anchors: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertAnchors(ctx, tx, documentID, anchors); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert anchors: %w", err)
	}
	return nil
}

func upsertAnchors(ctx context.Context, tx *sql.Tx, documentID string, anchors []anchor.Anchor) error {
	for _, a := range anchors {
		if _, err := tx.ExecContext(ctx, upsertAnchorSQL, documentID, a.ID, a.Label, a.StartOffset, a.EndOffset, a.AnchorText, a.Resolved); err != nil {
			return fmt.Errorf("save anchor %s: %w", a.ID, err)
		}
	}
	return nil
}

// SaveRecoveryResults records recovered offsets together with their status.
// The stored anchor text is kept so recovery can be repeated.
func (s *PostgresStore) SaveRecoveryResults(ctx context.Context, documentID string, results map[string]anchor.RecoveryResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save recovery: %w", err)
	}
	for id, result := range results {
		_, err := tx.ExecContext(ctx, `
			UPDATE annotation_anchors
			SET start_offset=$3, end_offset=$4, status=$5, match_quality=$6, updated_at=NOW()
			WHERE document_id=$1 AND id=$2
		`, documentID, id, result.NewStart, result.NewEnd, string(result.Status), string(result.MatchQuality))
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save recovery result %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save recovery: %w", err)
	}
	return nil
}

// CountByStatus reports how many anchors of a document last recovered with
// each status.
func (s *PostgresStore) CountByStatus(ctx context.Context, documentID string) (map[anchor.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM annotation_anchors
		WHERE document_id=$1 AND status IS NOT NULL
		GROUP BY status
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("count anchors by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[anchor.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[anchor.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
