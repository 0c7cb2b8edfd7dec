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

var sourceRowColumns = []string{
	"id",
	"url",
	"is_active",
	"last_fetched_at",
	"last_successful_fetch_at",
	"fetch_success_count",
	"fetch_failure_count",
	"consecutive_failures",
	"etag",
	"last_modified",
}

func TestGetSource(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	etag := `"v1"`

	mock.ExpectQuery(`(?s)SELECT.*FROM sources WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(sourceRowColumns).
			AddRow("s1", "https://example.com/feed", true, &now, &now, int64(10), int64(2), 0, &etag, (*string)(nil)))

	src, err := store.GetSource(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", src.ID)
	require.True(t, src.IsActive)
	require.Equal(t, int64(10), src.FetchSuccessCount)
	require.Equal(t, `"v1"`, src.ETag)
	require.Empty(t, src.LastModified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSourceNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT.*FROM sources WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetSource(context.Background(), "ghost")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveSources(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT.*FROM sources WHERE is_active ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(sourceRowColumns).
			AddRow("s1", "https://a.example.com/feed", true, (*time.Time)(nil), (*time.Time)(nil), int64(0), int64(0), 0, (*string)(nil), (*string)(nil)).
			AddRow("s2", "https://b.example.com/feed", true, (*time.Time)(nil), (*time.Time)(nil), int64(4), int64(1), 1, (*string)(nil), (*string)(nil)))

	sources, err := store.ListActiveSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "s1", sources[0].ID)
	require.Equal(t, 1, sources[1].ConsecutiveFailures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFetchSuccessIsAtomicIncrement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`(?s)UPDATE sources SET.*fetch_success_count = fetch_success_count \+ 1.*consecutive_failures = 0`).
		WithArgs("s1", now, `"v2"`, "Wed, 01 Jan 2025 00:00:00 GMT").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.RecordFetchSuccess(context.Background(), "s1", now, `"v2"`, "Wed, 01 Jan 2025 00:00:00 GMT")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFetchFailureIsAtomicIncrement(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`(?s)UPDATE sources SET.*fetch_failure_count = fetch_failure_count \+ 1.*consecutive_failures = consecutive_failures \+ 1`).
		WithArgs("s1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.RecordFetchFailure(context.Background(), "s1", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFetchFailureUnknownSource(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`(?s)UPDATE sources SET`).
		WithArgs("ghost", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.RecordFetchFailure(context.Background(), "ghost", now)
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchLastFetched(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSourceStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(`UPDATE sources SET last_fetched_at = \$2 WHERE id = \$1`).
		WithArgs("s1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.TouchLastFetched(context.Background(), "s1", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
