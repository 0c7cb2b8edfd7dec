// Package ingest defines core types shared across subsystems.
package ingest

import (
	"time"
)

// JobState represents the lifecycle state of a verification job.
type JobState string

// Verification job states persisted in the job store.
const (
	JobStateNone      JobState = "none"
	JobStateSubmitted JobState = "submitted"
	JobStatePolling   JobState = "polling"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateExpired   JobState = "expired"
)

// Terminal reports whether the state admits no further transition.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateExpired:
		return true
	default:
		return false
	}
}

// Source is a configured external feed to be periodically fetched.
type Source struct {
	ID                    string     `json:"id"`
	URL                   string     `json:"url"`
	IsActive              bool       `json:"is_active"`
	LastFetchedAt         *time.Time `json:"last_fetched_at,omitempty"`
	LastSuccessfulFetchAt *time.Time `json:"last_successful_fetch_at,omitempty"`
	FetchSuccessCount     int64      `json:"fetch_success_count"`
	FetchFailureCount     int64      `json:"fetch_failure_count"`
	ConsecutiveFailures   int        `json:"consecutive_failures"`
	ETag                  string     `json:"etag,omitempty"`
	LastModified          string     `json:"last_modified,omitempty"`
}

// Item is one deduplicated unit of ingested content. content_hash is globally
// unique; the store's uniqueness constraint is the dedup primitive.
type Item struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	CanonicalURL string    `json:"canonical_url"`
	ContentHash  string    `json:"content_hash"`
	Title        string    `json:"title"`
	Payload      string    `json:"payload"`
	PublishedAt  time.Time `json:"published_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerificationJob tracks one external verification request for an item.
// Terminal rows are immutable and never deleted.
type VerificationJob struct {
	ItemID        string     `json:"item_id"`
	ExternalJobID string     `json:"external_job_id,omitempty"`
	State         JobState   `json:"state"`
	Verdict       string     `json:"verdict,omitempty"`
	Score         float64    `json:"score"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	AttemptCount  int        `json:"attempt_count"`
}

// FetchStatus labels the outcome of one fetch worker invocation.
type FetchStatus string

// Fetch outcome statuses surfaced to logs and metrics.
const (
	FetchStatusSuccess     FetchStatus = "success"
	FetchStatusNotModified FetchStatus = "not_modified"
	FetchStatusError       FetchStatus = "error"
)

// FetchOutcome is the structured result of one fetch worker invocation.
type FetchOutcome struct {
	SourceID     string      `json:"source_id"`
	Status       FetchStatus `json:"status"`
	CreatedCount int         `json:"created_count"`
	SkippedCount int         `json:"skipped_count"`
	Attempts     int         `json:"attempts"`
	Err          error       `json:"-"`
}

// FetchBatch is the ordered set of sources dispatched in one scheduler tick,
// split by the concurrency cap. Never persisted.
type FetchBatch struct {
	Immediate []Source
	Deferred  []Source
}

// Entry is one parsed feed entry before deduplication.
type Entry struct {
	URL         string
	Title       string
	Content     string
	PublishedAt time.Time
}

// FeedDocument is the result of fetching one source's remote resource.
type FeedDocument struct {
	NotModified  bool
	Entries      []Entry
	ETag         string
	LastModified string
	Raw          []byte
}

// VerificationStatus is the external service's view of a job.
type VerificationStatus struct {
	Done    bool
	Verdict string
	Score   float64
}

// Task is one unit of per-source work carried across the dispatch boundary.
type Task struct {
	SourceID   string
	EnqueuedAt time.Time
}
