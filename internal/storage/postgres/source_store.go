package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/truthscan/feedd/internal/ingest"
)

// SourceStore reads and health-bookkeeps source rows. Counter updates are
// single atomic increment statements so overlapping fetches never lose an
// update.
type SourceStore struct {
	pool dbPool
}

// NewSourceStore constructs a SourceStore over an existing pool.
func NewSourceStore(pool dbPool) (*SourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SourceStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SourceStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const sourceColumns = `
	id,
	url,
	is_active,
	last_fetched_at,
	last_successful_fetch_at,
	fetch_success_count,
	fetch_failure_count,
	consecutive_failures,
	etag,
	last_modified`

// GetSource loads one source row by id.
func (s *SourceStore) GetSource(ctx context.Context, sourceID string) (ingest.Source, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+sourceColumns+` FROM sources WHERE id = $1`, sourceID)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Source{}, fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
		}
		return ingest.Source{}, fmt.Errorf("select source: %w", err)
	}
	return src, nil
}

// ListActiveSources returns all sources with is_active set, in stable order.
func (s *SourceStore) ListActiveSources(ctx context.Context) ([]ingest.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+sourceColumns+` FROM sources WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select active sources: %w", err)
	}
	defer rows.Close()

	var sources []ingest.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return sources, nil
}

// RecordFetchSuccess bumps the success counter, resets consecutive_failures,
// and stores the conditional-GET validators for the next fetch.
func (s *SourceStore) RecordFetchSuccess(ctx context.Context, sourceID string, at time.Time, etag, lastModified string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sources SET
	fetch_success_count = fetch_success_count + 1,
	consecutive_failures = 0,
	last_fetched_at = $2,
	last_successful_fetch_at = $2,
	etag = $3,
	last_modified = $4
WHERE id = $1`, sourceID, at, etag, lastModified)
	if err != nil {
		return fmt.Errorf("record fetch success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	return nil
}

// RecordFetchFailure bumps both failure counters atomically.
func (s *SourceStore) RecordFetchFailure(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sources SET
	fetch_failure_count = fetch_failure_count + 1,
	consecutive_failures = consecutive_failures + 1,
	last_fetched_at = $2
WHERE id = $1`, sourceID, at)
	if err != nil {
		return fmt.Errorf("record fetch failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	return nil
}

// TouchLastFetched records a fetch attempt without any health effect, for the
// not-modified short-circuit.
func (s *SourceStore) TouchLastFetched(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sources SET last_fetched_at = $2 WHERE id = $1`, sourceID, at)
	if err != nil {
		return fmt.Errorf("touch last_fetched_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", sourceID, ingest.ErrNotFound)
	}
	return nil
}

func scanSource(row pgx.Row) (ingest.Source, error) {
	var src ingest.Source
	var etag, lastModified *string
	err := row.Scan(
		&src.ID,
		&src.URL,
		&src.IsActive,
		&src.LastFetchedAt,
		&src.LastSuccessfulFetchAt,
		&src.FetchSuccessCount,
		&src.FetchFailureCount,
		&src.ConsecutiveFailures,
		&etag,
		&lastModified,
	)
	if err != nil {
		return ingest.Source{}, err
	}
	if etag != nil {
		src.ETag = *etag
	}
	if lastModified != nil {
		src.LastModified = *lastModified
	}
	return src, nil
}
