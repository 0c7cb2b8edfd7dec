package ingest

import (
	"context"
	"time"
)

// SourceRegistry is the read/health-bookkeeping view over configured sources.
// Counter updates happen as atomic increments at the store level, never as
// read-modify-write in application memory.
type SourceRegistry interface {
	GetSource(ctx context.Context, sourceID string) (Source, error)
	ListActiveSources(ctx context.Context) ([]Source, error)
	RecordFetchSuccess(ctx context.Context, sourceID string, at time.Time, etag, lastModified string) error
	RecordFetchFailure(ctx context.Context, sourceID string, at time.Time) error
	TouchLastFetched(ctx context.Context, sourceID string, at time.Time) error
}

// VerificationIntake accepts newly created items for verification.
type VerificationIntake interface {
	EnqueueItem(ctx context.Context, itemID string) error
}

// ItemStore persists deduplicated items. CreateItem returns
// ErrDuplicateContent when the content hash already exists.
type ItemStore interface {
	CreateItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, itemID string) (Item, error)
}

// JobStore persists verification jobs. CreateJob returns ErrAlreadyProcessed
// when an active or completed job already exists for the item.
type JobStore interface {
	CreateJob(ctx context.Context, job VerificationJob) error
	GetJob(ctx context.Context, itemID string) (VerificationJob, error)
	UpdateJob(ctx context.Context, job VerificationJob) error
}

// FeedFetcher fetches and parses one source's remote document. A remote
// "not modified" signal yields a document with NotModified set, not an error.
type FeedFetcher interface {
	Fetch(ctx context.Context, src Source) (FeedDocument, error)
}

// Verifier is the external verification service boundary.
type Verifier interface {
	Submit(ctx context.Context, item Item) (externalJobID string, err error)
	Status(ctx context.Context, externalJobID string) (VerificationStatus, error)
}

// Publisher pushes ingestion/verification events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archive writes raw feed payloads and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for per-source fetch tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Hasher computes content-address digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces item IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
