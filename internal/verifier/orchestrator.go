package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/metrics"
)

// Config controls Orchestrator behavior.
type Config struct {
	PollInterval time.Duration
	PollBudget   time.Duration
	MaxRetries   int
	Workers      int
	QueueDepth   int
	VerdictTopic string
	// Backoff overrides the default verification backoff when Base is set.
	Backoff ingest.BackoffPolicy
}

// Orchestrator owns the verification job state machine. Each accepted item is
// driven through submitted → polling → completed | failed | expired exactly
// once; terminal rows are never touched again.
type Orchestrator struct {
	jobs      ingest.JobStore
	items     ingest.ItemStore
	verifier  ingest.Verifier
	publisher ingest.Publisher
	clock     ingest.Clock
	backoff   ingest.BackoffPolicy
	cfg       Config
	logger    *zap.Logger
	intake    chan string
}

// New constructs an Orchestrator. publisher may be nil.
func New(
	jobs ingest.JobStore,
	items ingest.ItemStore,
	verifier ingest.Verifier,
	publisher ingest.Publisher,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	backoff := cfg.Backoff
	if backoff.Base == 0 {
		backoff = ingest.VerifyBackoff(cfg.MaxRetries)
	}
	backoff.MaxAttempts = cfg.MaxRetries
	return &Orchestrator{
		jobs:      jobs,
		items:     items,
		verifier:  verifier,
		publisher: publisher,
		clock:     clock,
		backoff:   backoff,
		cfg:       cfg,
		logger:    logger,
		intake:    make(chan string, cfg.QueueDepth),
	}
}

// EnqueueItem hands an item to the verification intake. It fails fast when
// the intake buffer is full rather than blocking the fetch pipeline.
func (o *Orchestrator) EnqueueItem(ctx context.Context, itemID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("verification intake canceled: %w", ctx.Err())
	case o.intake <- itemID:
		return nil
	default:
		return fmt.Errorf("verification intake full, dropping item %s", itemID)
	}
}

// Run blocks, consuming the intake with a fixed pool of workers until the
// context finishes.
func (o *Orchestrator) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < o.cfg.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			o.runWorker(ctx)
		}()
	}
	for i := 0; i < o.cfg.Workers; i++ {
		<-done
	}
}

func (o *Orchestrator) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case itemID := <-o.intake:
			if err := o.VerifyItem(ctx, itemID); err != nil {
				if errors.Is(err, ingest.ErrAlreadyProcessed) {
					o.logger.Debug("item already verified", zap.String("item_id", itemID))
					continue
				}
				o.logger.Error("verification failed", zap.String("item_id", itemID), zap.Error(err))
			}
		}
	}
}

// VerifyItem drives one item through the whole state machine. Returns
// ErrAlreadyProcessed (wrapped) when a job already exists for the item.
func (o *Orchestrator) VerifyItem(ctx context.Context, itemID string) error {
	item, err := o.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", itemID, err)
	}

	// Guard before submitting. The store's uniqueness constraint below is the
	// authoritative check; this read just avoids a wasted external call.
	if _, err := o.jobs.GetJob(ctx, itemID); err == nil {
		return fmt.Errorf("item %s: %w", itemID, ingest.ErrAlreadyProcessed)
	} else if !errors.Is(err, ingest.ErrNotFound) {
		return fmt.Errorf("check existing job: %w", err)
	}

	job := ingest.VerificationJob{
		ItemID:      itemID,
		State:       ingest.JobStateSubmitted,
		SubmittedAt: o.clock.Now(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, ingest.ErrAlreadyProcessed) {
			return fmt.Errorf("item %s: %w", itemID, ingest.ErrAlreadyProcessed)
		}
		return fmt.Errorf("create job: %w", err)
	}
	o.logger.Info("verification submitted", zap.String("item_id", itemID))

	externalJobID, err := o.submit(ctx, item, &job)
	if err != nil {
		return o.fail(ctx, &job, fmt.Errorf("submit item %s: %w", itemID, err))
	}

	job.ExternalJobID = externalJobID
	job.State = ingest.JobStatePolling
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return o.fail(ctx, &job, fmt.Errorf("record polling state: %w", err))
	}

	return o.poll(ctx, item, &job)
}

// submit calls the external service, retrying transient errors with backoff
// up to the attempt bound.
func (o *Orchestrator) submit(ctx context.Context, item ingest.Item, job *ingest.VerificationJob) (string, error) {
	for {
		externalJobID, err := o.verifier.Submit(ctx, item)
		if err == nil {
			return externalJobID, nil
		}
		if !o.retryTransient(ctx, job, err) {
			return "", err
		}
	}
}

// poll queries the external job until it completes, expires, or the poll
// budget is spent. Polling a still-running job never touches attempt_count.
func (o *Orchestrator) poll(ctx context.Context, item ingest.Item, job *ingest.VerificationJob) error {
	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollBudget)
	defer cancel()

	for {
		if pollCtx.Err() != nil {
			return o.fail(ctx, job, fmt.Errorf("poll budget %s spent on job %s: %w",
				o.cfg.PollBudget, job.ExternalJobID, ingest.ErrBudgetExhausted))
		}

		status, err := o.verifier.Status(pollCtx, job.ExternalJobID)
		metrics.ObservePoll()

		switch {
		case err == nil && status.Done:
			return o.complete(ctx, item, job, status)
		case err == nil:
			if !sleep(pollCtx, o.cfg.PollInterval) {
				return o.fail(ctx, job, fmt.Errorf("poll budget %s spent on job %s: %w",
					o.cfg.PollBudget, job.ExternalJobID, ingest.ErrBudgetExhausted))
			}
		case errors.Is(err, ingest.ErrNotFound):
			return o.expire(ctx, job, err)
		case ingest.IsTransient(err):
			if !o.retryTransient(pollCtx, job, err) {
				if pollCtx.Err() != nil {
					return o.fail(ctx, job, fmt.Errorf("poll budget %s spent on job %s: %w",
						o.cfg.PollBudget, job.ExternalJobID, ingest.ErrBudgetExhausted))
				}
				return o.fail(ctx, job, fmt.Errorf("transient retries exhausted: %w", err))
			}
		default:
			return o.fail(ctx, job, err)
		}
	}
}

// retryTransient increments attempt_count, persists it, and sleeps out the
// backoff. Returns false when no further attempt is allowed.
func (o *Orchestrator) retryTransient(ctx context.Context, job *ingest.VerificationJob, err error) bool {
	if !ingest.IsTransient(err) {
		return false
	}
	if job.AttemptCount >= o.backoff.MaxAttempts {
		return false
	}
	job.AttemptCount++
	if updErr := o.jobs.UpdateJob(ctx, *job); updErr != nil {
		o.logger.Warn("persist attempt count failed", zap.String("item_id", job.ItemID), zap.Error(updErr))
	}
	metrics.ObserveVerificationRetry()
	o.logger.Warn("transient verification error, backing off",
		zap.String("item_id", job.ItemID),
		zap.Int("attempt", job.AttemptCount),
		zap.Duration("delay", o.backoff.Delay(job.AttemptCount-1)),
		zap.Error(err),
	)
	return o.backoff.Sleep(ctx, job.AttemptCount-1)
}

func (o *Orchestrator) complete(ctx context.Context, item ingest.Item, job *ingest.VerificationJob, status ingest.VerificationStatus) error {
	now := o.clock.Now()
	job.State = ingest.JobStateCompleted
	job.Verdict = status.Verdict
	job.Score = status.Score
	job.CompletedAt = &now
	if err := o.jobs.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("persist completed job: %w", err)
	}
	metrics.ObserveJobTerminal(string(ingest.JobStateCompleted))
	o.logger.Info("verification completed",
		zap.String("item_id", job.ItemID),
		zap.String("verdict", job.Verdict),
		zap.Float64("score", job.Score),
	)
	o.publishVerdict(ctx, item, *job)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, job *ingest.VerificationJob, cause error) error {
	job.State = ingest.JobStateFailed
	if err := o.jobs.UpdateJob(ctx, *job); err != nil {
		o.logger.Error("persist failed job", zap.String("item_id", job.ItemID), zap.Error(err))
	}
	metrics.ObserveJobTerminal(string(ingest.JobStateFailed))
	return cause
}

func (o *Orchestrator) expire(ctx context.Context, job *ingest.VerificationJob, cause error) error {
	job.State = ingest.JobStateExpired
	if err := o.jobs.UpdateJob(ctx, *job); err != nil {
		o.logger.Error("persist expired job", zap.String("item_id", job.ItemID), zap.Error(err))
	}
	metrics.ObserveJobTerminal(string(ingest.JobStateExpired))
	o.logger.Warn("external job no longer retrievable",
		zap.String("item_id", job.ItemID),
		zap.String("external_job_id", job.ExternalJobID),
		zap.Error(cause),
	)
	return nil
}

// publishVerdict emits the verification-completed event. Best-effort.
func (o *Orchestrator) publishVerdict(ctx context.Context, item ingest.Item, job ingest.VerificationJob) {
	if o.publisher == nil || o.cfg.VerdictTopic == "" {
		return
	}
	payload := map[string]any{
		"item_id":         job.ItemID,
		"source_id":       item.SourceID,
		"external_job_id": job.ExternalJobID,
		"verdict":         job.Verdict,
		"score":           job.Score,
		"completed_at":    job.CompletedAt.Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.VerdictTopic, payload); err != nil {
		o.logger.Warn("publish verdict event failed", zap.String("item_id", job.ItemID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
