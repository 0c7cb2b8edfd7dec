// Package scheduler fires the periodic fan-out tick over active sources.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/metrics"
)

// Dispatch is the boundary the scheduler hands work to.
type Dispatch interface {
	Enqueue(ctx context.Context, task ingest.Task) error
}

// Config controls tick cadence and fan-out shape.
type Config struct {
	// Interval is the fixed tick period.
	Interval time.Duration
	// Expiry bounds one tick's work. Must be shorter than Interval so a tick
	// is never still pending when the next one fires.
	Expiry time.Duration
	// MaxConcurrentFetches caps the immediate batch size.
	MaxConcurrentFetches int
	// Cooldown is the delay before the deferred batch is dispatched.
	Cooldown time.Duration
}

// Scheduler lists active sources on every tick and dispatches one fetch task
// per source, the first MaxConcurrentFetches immediately and the remainder
// after the cool-down. It never retries a tick: a failed registry read
// abandons the tick and the next one starts fresh.
type Scheduler struct {
	registry ingest.SourceRegistry
	dispatch Dispatch
	clock    ingest.Clock
	cfg      Config
	logger   *zap.Logger

	inFlight atomic.Bool
}

// New constructs a Scheduler.
func New(registry ingest.SourceRegistry, dispatch Dispatch, clock ingest.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.Expiry <= 0 || cfg.Expiry >= cfg.Interval {
		cfg.Expiry = cfg.Interval - cfg.Interval/10
	}
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 8
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	return &Scheduler{
		registry: registry,
		dispatch: dispatch,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, ticking on the configured interval until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("expiry", s.cfg.Expiry),
		zap.Int("max_concurrent_fetches", s.cfg.MaxConcurrentFetches),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. An overlapping call while a previous tick is
// still running is dropped, never queued.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still in flight, dropping")
		metrics.ObserveTick("overlap_dropped")
		return
	}
	defer s.inFlight.Store(false)

	tickCtx, cancel := context.WithTimeout(ctx, s.cfg.Expiry)
	defer cancel()

	sources, err := s.registry.ListActiveSources(tickCtx)
	if err != nil {
		s.logger.Error("listing active sources failed, abandoning tick", zap.Error(err))
		metrics.ObserveTick("error")
		return
	}
	if len(sources) == 0 {
		s.logger.Info("no active sources")
		metrics.ObserveTick("no_sources")
		return
	}

	batch := Partition(sources, s.cfg.MaxConcurrentFetches)
	now := s.clock.Now()

	dispatched := s.dispatchBatch(tickCtx, batch.Immediate, now)

	if len(batch.Deferred) > 0 {
		s.logger.Info("deferring remainder past concurrency cap",
			zap.Int("deferred", len(batch.Deferred)),
			zap.Duration("cooldown", s.cfg.Cooldown),
		)
		select {
		case <-tickCtx.Done():
			s.logger.Warn("tick expired before deferred batch", zap.Int("dropped", len(batch.Deferred)))
			metrics.ObserveTick("expired")
			return
		case <-time.After(s.cfg.Cooldown):
		}
		dispatched += s.dispatchBatch(tickCtx, batch.Deferred, s.clock.Now())
	}

	s.logger.Info("tick dispatched",
		zap.Int("sources", len(sources)),
		zap.Int("dispatched", dispatched),
	)
	metrics.ObserveTick("dispatched")
}

func (s *Scheduler) dispatchBatch(ctx context.Context, sources []ingest.Source, at time.Time) int {
	dispatched := 0
	for _, src := range sources {
		task := ingest.Task{SourceID: src.ID, EnqueuedAt: at}
		if err := s.dispatch.Enqueue(ctx, task); err != nil {
			s.logger.Error("dispatch failed", zap.String("source_id", src.ID), zap.Error(err))
			continue
		}
		dispatched++
	}
	return dispatched
}

// Partition splits sources into an immediate batch bounded by limit and the
// deferred remainder. Input order is preserved.
func Partition(sources []ingest.Source, limit int) ingest.FetchBatch {
	if limit <= 0 || len(sources) <= limit {
		return ingest.FetchBatch{Immediate: sources}
	}
	return ingest.FetchBatch{
		Immediate: sources[:limit],
		Deferred:  sources[limit:],
	}
}
