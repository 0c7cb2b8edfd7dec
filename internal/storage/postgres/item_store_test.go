package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/truthscan/feedd/internal/ingest"
)

func testStoredItem() ingest.Item {
	now := time.Unix(1700000000, 0).UTC()
	return ingest.Item{
		ID:           "item-1",
		SourceID:     "s1",
		CanonicalURL: "https://example.com/stories/1",
		ContentHash:  "abc123",
		Title:        "headline",
		Payload:      "body",
		PublishedAt:  now,
		CreatedAt:    now,
	}
}

func TestCreateItemInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	item := testStoredItem()

	mock.ExpectExec(`(?s)INSERT INTO items.*ON CONFLICT \(content_hash\) DO NOTHING`).
		WithArgs(
			item.ID,
			item.SourceID,
			item.CanonicalURL,
			item.ContentHash,
			item.Title,
			item.Payload,
			item.PublishedAt,
			item.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateItem(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItemAbsorbsDuplicateHash(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	item := testStoredItem()

	mock.ExpectExec(`(?s)INSERT INTO items`).
		WithArgs(
			item.ID,
			item.SourceID,
			item.CanonicalURL,
			item.ContentHash,
			item.Title,
			item.Payload,
			item.PublishedAt,
			item.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.CreateItem(context.Background(), item)
	require.ErrorIs(t, err, ingest.ErrDuplicateContent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItemRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	item := testStoredItem()
	item.ID = ""

	require.Error(t, store.CreateItem(context.Background(), item))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItem(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	item := testStoredItem()

	mock.ExpectQuery(`(?s)SELECT.*FROM items WHERE id = \$1`).
		WithArgs("item-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_id", "canonical_url", "content_hash", "title", "payload", "published_at", "created_at",
		}).AddRow(
			item.ID, item.SourceID, item.CanonicalURL, item.ContentHash, item.Title, item.Payload, item.PublishedAt, item.CreatedAt,
		))

	got, err := store.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	require.Equal(t, item, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewItemStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT.*FROM items WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetItem(context.Background(), "ghost")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
