// Package worker implements the per-source fetch pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	MaxAttempts   int
	TaskTimeout   time.Duration
	ArchivePrefix string
	ItemTopic     string
	// Backoff overrides the default fetch backoff when Base is set.
	Backoff ingest.BackoffPolicy
}

// Worker consumes queue tasks and executes the fetch pipeline for one source
// at a time. Re-running against the same source is safe: duplicate entries are
// absorbed by the content-hash uniqueness constraint.
type Worker struct {
	queue     ingest.Queue
	registry  ingest.SourceRegistry
	items     ingest.ItemStore
	fetcher   ingest.FeedFetcher
	archive   ingest.Archive
	publisher ingest.Publisher
	verify    ingest.VerificationIntake
	hasher    ingest.Hasher
	clock     ingest.Clock
	ids       ingest.IDGenerator
	backoff   ingest.BackoffPolicy
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. archive, publisher, and verify may be nil.
func New(
	queue ingest.Queue,
	registry ingest.SourceRegistry,
	items ingest.ItemStore,
	fetcher ingest.FeedFetcher,
	archive ingest.Archive,
	publisher ingest.Publisher,
	verify ingest.VerificationIntake,
	hasher ingest.Hasher,
	clock ingest.Clock,
	ids ingest.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}
	backoff := cfg.Backoff
	if backoff.Base == 0 {
		backoff = ingest.FetchBackoff(cfg.MaxAttempts)
	}
	backoff.MaxAttempts = cfg.MaxAttempts
	return &Worker{
		queue:     queue,
		registry:  registry,
		items:     items,
		fetcher:   fetcher,
		archive:   archive,
		publisher: publisher,
		verify:    verify,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		backoff:   backoff,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued fetch task", zap.String("source_id", task.SourceID))

		metrics.IncActiveFetches()
		start := w.clock.Now()
		outcome := w.Process(ctx, task.SourceID)
		metrics.DecActiveFetches()
		metrics.ObserveFetch(string(outcome.Status), outcome.CreatedCount, outcome.SkippedCount, w.clock.Now().Sub(start))

		switch outcome.Status {
		case ingest.FetchStatusError:
			w.logger.Error("fetch failed",
				zap.String("source_id", task.SourceID),
				zap.Int("attempts", outcome.Attempts),
				zap.Error(outcome.Err),
			)
		default:
			w.logger.Info("fetch finished",
				zap.String("source_id", task.SourceID),
				zap.String("status", string(outcome.Status)),
				zap.Int("created", outcome.CreatedCount),
				zap.Int("skipped", outcome.SkippedCount),
			)
		}
	}
}

// Process runs one fetch invocation under the task's hard wall-clock ceiling.
func (w *Worker) Process(ctx context.Context, sourceID string) ingest.FetchOutcome {
	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	outcome := ingest.FetchOutcome{SourceID: sourceID, Status: ingest.FetchStatusError}

	// Active flag is re-checked here, not trusted from scheduler time.
	src, err := w.registry.GetSource(taskCtx, sourceID)
	if err != nil {
		outcome.Err = fmt.Errorf("load source: %w", err)
		return outcome
	}
	if !src.IsActive {
		outcome.Err = fmt.Errorf("source %s deactivated since dispatch: %w", sourceID, ingest.ErrNotFound)
		return outcome
	}

	doc, attempts, err := w.fetchWithRetry(taskCtx, src)
	outcome.Attempts = attempts
	if err != nil {
		outcome.Err = err
		return outcome
	}

	now := w.clock.Now()
	if doc.NotModified {
		outcome.Status = ingest.FetchStatusNotModified
		if err := w.registry.TouchLastFetched(taskCtx, src.ID, now); err != nil {
			w.logger.Warn("touch last_fetched_at failed", zap.String("source_id", src.ID), zap.Error(err))
		}
		return outcome
	}

	created := w.persistEntries(taskCtx, src, doc.Entries, &outcome)
	w.archiveRaw(taskCtx, src, doc.Raw)

	if err := w.registry.RecordFetchSuccess(taskCtx, src.ID, now, doc.ETag, doc.LastModified); err != nil {
		w.logger.Error("record fetch success failed", zap.String("source_id", src.ID), zap.Error(err))
	}

	for _, item := range created {
		w.announceItem(taskCtx, item)
	}

	outcome.Status = ingest.FetchStatusSuccess
	return outcome
}

// fetchWithRetry retries the whole fetch on transient errors with exponential
// backoff, recording one health failure per failed attempt.
func (w *Worker) fetchWithRetry(ctx context.Context, src ingest.Source) (ingest.FeedDocument, int, error) {
	var lastErr error
	for attempt := 0; attempt < w.cfg.MaxAttempts; attempt++ {
		doc, err := w.fetcher.Fetch(ctx, src)
		if err == nil {
			return doc, attempt + 1, nil
		}
		lastErr = err
		// Every failed attempt counts against source health, transient or not:
		// a 404 or a broken URL degrades the source the same way a timeout does.
		if recErr := w.registry.RecordFetchFailure(ctx, src.ID, w.clock.Now()); recErr != nil {
			w.logger.Error("record fetch failure failed", zap.String("source_id", src.ID), zap.Error(recErr))
		}
		if !w.backoff.ShouldRetry(err, attempt) {
			return ingest.FeedDocument{}, attempt + 1, lastErr
		}
		w.logger.Warn("fetch attempt failed, backing off",
			zap.String("source_id", src.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", w.backoff.Delay(attempt)),
			zap.Error(err),
		)
		if !w.backoff.Sleep(ctx, attempt) {
			return ingest.FeedDocument{}, attempt + 1, ctx.Err()
		}
	}
	return ingest.FeedDocument{}, w.cfg.MaxAttempts, lastErr
}

// persistEntries deduplicates and stores entries sequentially. One entry's
// skip or failure never blocks the rest.
func (w *Worker) persistEntries(
	ctx context.Context,
	src ingest.Source,
	entries []ingest.Entry,
	outcome *ingest.FetchOutcome,
) []ingest.Item {
	created := make([]ingest.Item, 0, len(entries))
	for _, entry := range entries {
		item, err := w.buildItem(src, entry)
		if err != nil {
			outcome.SkippedCount++
			w.logger.Warn("entry rejected",
				zap.String("source_id", src.ID),
				zap.String("url", entry.URL),
				zap.Error(err),
			)
			continue
		}
		if err := w.items.CreateItem(ctx, item); err != nil {
			if errors.Is(err, ingest.ErrDuplicateContent) {
				outcome.SkippedCount++
				continue
			}
			w.logger.Error("persist item failed",
				zap.String("source_id", src.ID),
				zap.String("content_hash", item.ContentHash),
				zap.Error(err),
			)
			continue
		}
		outcome.CreatedCount++
		created = append(created, item)
	}
	return created
}

func (w *Worker) buildItem(src ingest.Source, entry ingest.Entry) (ingest.Item, error) {
	canonical, err := ingest.CanonicalURL(entry.URL)
	if err != nil {
		return ingest.Item{}, err
	}
	hash, err := w.hasher.Hash([]byte(canonical))
	if err != nil {
		return ingest.Item{}, fmt.Errorf("hash canonical url: %w", err)
	}
	id, err := w.ids.NewID()
	if err != nil {
		return ingest.Item{}, fmt.Errorf("generate item id: %w", err)
	}
	publishedAt := entry.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = w.clock.Now()
	}
	return ingest.Item{
		ID:           id,
		SourceID:     src.ID,
		CanonicalURL: canonical,
		ContentHash:  hash,
		Title:        entry.Title,
		Payload:      entry.Content,
		PublishedAt:  publishedAt,
		CreatedAt:    w.clock.Now(),
	}, nil
}

// archiveRaw stores the raw payload for audit. Failures are logged, never fatal.
func (w *Worker) archiveRaw(ctx context.Context, src ingest.Source, raw []byte) {
	if w.archive == nil || len(raw) == 0 {
		return
	}
	hash, err := w.hasher.Hash(raw)
	if err != nil {
		w.logger.Warn("hash raw payload failed", zap.String("source_id", src.ID), zap.Error(err))
		return
	}
	path := w.buildArchivePath(src.ID, hash)
	if _, err := w.archive.PutObject(ctx, path, "application/rss+xml", raw); err != nil {
		w.logger.Warn("archive raw payload failed",
			zap.String("source_id", src.ID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (w *Worker) buildArchivePath(sourceID, hash string) string {
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.xml", sourceID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.xml", prefix, sourceID, hash)
}

// announceItem publishes the item-ingested event and hands the item to the
// verification intake. Both are best-effort.
func (w *Worker) announceItem(ctx context.Context, item ingest.Item) {
	if w.publisher != nil && w.cfg.ItemTopic != "" {
		payload := map[string]any{
			"item_id":       item.ID,
			"source_id":     item.SourceID,
			"canonical_url": item.CanonicalURL,
			"content_hash":  item.ContentHash,
			"created_at":    item.CreatedAt.Format(time.RFC3339),
		}
		if _, err := w.publisher.Publish(ctx, w.cfg.ItemTopic, payload); err != nil {
			w.logger.Warn("publish item event failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	if w.verify != nil {
		if err := w.verify.EnqueueItem(ctx, item.ID); err != nil {
			w.logger.Warn("enqueue verification failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
}
