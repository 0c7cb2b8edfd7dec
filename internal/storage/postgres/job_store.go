package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/truthscan/feedd/internal/ingest"
)

const uniqueViolation = "23505"

// JobStore persists verification jobs. item_id is the primary key: a second
// insert for the same item hits the constraint and folds into
// ErrAlreadyProcessed, which closes the duplicate-submission race. Rows are
// never deleted and terminal rows are never updated.
type JobStore struct {
	pool dbPool
}

// NewJobStore constructs a JobStore over an existing pool.
func NewJobStore(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// CreateJob inserts a new job row, claiming the item for verification.
func (s *JobStore) CreateJob(ctx context.Context, job ingest.VerificationJob) error {
	if job.ItemID == "" {
		return fmt.Errorf("job item id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO verification_jobs (
	item_id,
	external_job_id,
	state,
	verdict,
	score,
	submitted_at,
	completed_at,
	attempt_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`,
		job.ItemID,
		job.ExternalJobID,
		string(job.State),
		job.Verdict,
		job.Score,
		job.SubmittedAt,
		job.CompletedAt,
		job.AttemptCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("item %s: %w", job.ItemID, ingest.ErrAlreadyProcessed)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads the job for an item.
func (s *JobStore) GetJob(ctx context.Context, itemID string) (ingest.VerificationJob, error) {
	row := s.pool.QueryRow(ctx, `
SELECT
	item_id,
	external_job_id,
	state,
	verdict,
	score,
	submitted_at,
	completed_at,
	attempt_count
FROM verification_jobs WHERE item_id = $1`, itemID)

	var job ingest.VerificationJob
	var state string
	err := row.Scan(
		&job.ItemID,
		&job.ExternalJobID,
		&state,
		&job.Verdict,
		&job.Score,
		&job.SubmittedAt,
		&job.CompletedAt,
		&job.AttemptCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.VerificationJob{}, fmt.Errorf("job for item %s: %w", itemID, ingest.ErrNotFound)
		}
		return ingest.VerificationJob{}, fmt.Errorf("select job: %w", err)
	}
	job.State = ingest.JobState(state)
	return job, nil
}

// UpdateJob mutates a non-terminal job row. The WHERE clause enforces
// terminal immutability at the store level.
func (s *JobStore) UpdateJob(ctx context.Context, job ingest.VerificationJob) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE verification_jobs SET
	external_job_id = $2,
	state = $3,
	verdict = $4,
	score = $5,
	completed_at = $6,
	attempt_count = $7
WHERE item_id = $1 AND state NOT IN ('completed','failed','expired')`,
		job.ItemID,
		job.ExternalJobID,
		string(job.State),
		job.Verdict,
		job.Score,
		job.CompletedAt,
		job.AttemptCount,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job for item %s is terminal or missing", job.ItemID)
	}
	return nil
}
