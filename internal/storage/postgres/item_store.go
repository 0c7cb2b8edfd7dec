package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/truthscan/feedd/internal/ingest"
)

// ItemStore persists deduplicated items. The content_hash uniqueness
// constraint is the dedup primitive: a conflicting insert is reported as
// ErrDuplicateContent, never as a row.
type ItemStore struct {
	pool dbPool
}

// NewItemStore constructs an ItemStore over an existing pool.
func NewItemStore(pool dbPool) (*ItemStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ItemStore{pool: pool}, nil
}

// CreateItem inserts an item, absorbing content-hash conflicts.
func (s *ItemStore) CreateItem(ctx context.Context, item ingest.Item) error {
	if item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO items (
	id,
	source_id,
	canonical_url,
	content_hash,
	title,
	payload,
	published_at,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (content_hash) DO NOTHING`,
		item.ID,
		item.SourceID,
		item.CanonicalURL,
		item.ContentHash,
		item.Title,
		item.Payload,
		item.PublishedAt,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("content hash %s: %w", item.ContentHash, ingest.ErrDuplicateContent)
	}
	return nil
}

// GetItem loads one item by id.
func (s *ItemStore) GetItem(ctx context.Context, itemID string) (ingest.Item, error) {
	row := s.pool.QueryRow(ctx, `
SELECT
	id,
	source_id,
	canonical_url,
	content_hash,
	title,
	payload,
	published_at,
	created_at
FROM items WHERE id = $1`, itemID)

	var item ingest.Item
	err := row.Scan(
		&item.ID,
		&item.SourceID,
		&item.CanonicalURL,
		&item.ContentHash,
		&item.Title,
		&item.Payload,
		&item.PublishedAt,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Item{}, fmt.Errorf("item %s: %w", itemID, ingest.ErrNotFound)
		}
		return ingest.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}
