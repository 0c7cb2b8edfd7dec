package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/truthscan/feedd/internal/ingest"
)

// JobStore keeps verification jobs in memory with the same guarantees as the
// Postgres store: one job per item, terminal rows immutable, never deleted.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]ingest.VerificationJob
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]ingest.VerificationJob)}
}

// CreateJob claims the item for verification. A second insert for the same
// item reports ErrAlreadyProcessed.
func (s *JobStore) CreateJob(_ context.Context, job ingest.VerificationJob) error {
	if job.ItemID == "" {
		return fmt.Errorf("job item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ItemID]; ok {
		return fmt.Errorf("item %s: %w", job.ItemID, ingest.ErrAlreadyProcessed)
	}
	s.jobs[job.ItemID] = job
	return nil
}

// GetJob loads the job for an item.
func (s *JobStore) GetJob(_ context.Context, itemID string) (ingest.VerificationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[itemID]
	if !ok {
		return ingest.VerificationJob{}, fmt.Errorf("job for item %s: %w", itemID, ingest.ErrNotFound)
	}
	return job, nil
}

// UpdateJob mutates a non-terminal job row.
func (s *JobStore) UpdateJob(_ context.Context, job ingest.VerificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ItemID]
	if !ok {
		return fmt.Errorf("job for item %s: %w", job.ItemID, ingest.ErrNotFound)
	}
	if existing.State.Terminal() {
		return fmt.Errorf("job for item %s is terminal", job.ItemID)
	}
	s.jobs[job.ItemID] = job
	return nil
}
