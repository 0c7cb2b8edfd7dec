// Package main wires together the feed ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsubclient "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/truthscan/feedd/internal/api"
	gcsarchive "github.com/truthscan/feedd/internal/archive/gcs"
	memoryarchive "github.com/truthscan/feedd/internal/archive/memory"
	"github.com/truthscan/feedd/internal/clock/system"
	"github.com/truthscan/feedd/internal/config"
	"github.com/truthscan/feedd/internal/dispatcher"
	"github.com/truthscan/feedd/internal/feed"
	"github.com/truthscan/feedd/internal/hash/sha256"
	"github.com/truthscan/feedd/internal/id/uuid"
	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/logging"
	"github.com/truthscan/feedd/internal/metrics"
	memorypublisher "github.com/truthscan/feedd/internal/publisher/memory"
	pubsubpublisher "github.com/truthscan/feedd/internal/publisher/pubsub"
	queuememory "github.com/truthscan/feedd/internal/queue/memory"
	"github.com/truthscan/feedd/internal/scheduler"
	memorystorage "github.com/truthscan/feedd/internal/storage/memory"
	"github.com/truthscan/feedd/internal/storage/postgres"
	"github.com/truthscan/feedd/internal/verifier"
	"github.com/truthscan/feedd/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, items, jobs, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, stopPublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer stopPublisher()

	queue := queuememory.NewQueue(cfg.Scheduler.QueueDepth)
	hasher := sha256.New()
	clock := system.New()
	idGen := uuid.NewGenerator()
	fetcher := feed.New(feed.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var orch *verifier.Orchestrator
	var intake ingest.VerificationIntake
	if cfg.Verify.Endpoint != "" {
		client := verifier.NewClient(verifier.ClientConfig{
			Endpoint: cfg.Verify.Endpoint,
			Mode:     cfg.Verify.Mode,
			Timeout:  cfg.FetchTimeout(),
		})
		orch = verifier.New(jobs, items, client, publisher, clock, verifier.Config{
			PollInterval: cfg.PollInterval(),
			PollBudget:   cfg.PollBudget(),
			MaxRetries:   cfg.Verify.MaxRetries,
			Workers:      cfg.Verify.Workers,
			QueueDepth:   cfg.Verify.QueueDepth,
			VerdictTopic: cfg.PubSub.VerdictTopic,
		}, logger.Named("verifier"))
		intake = orch
	} else {
		logger.Warn("verify.endpoint not set, verification disabled")
	}

	workerCfg := worker.Config{
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		TaskTimeout:   cfg.TaskTimeout(),
		ArchivePrefix: cfg.Archive.Prefix,
		ItemTopic:     cfg.PubSub.ItemTopic,
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Scheduler.MaxConcurrentFetches; i++ {
		workers = append(workers, worker.New(
			queue,
			registry,
			items,
			fetcher,
			archive,
			publisher,
			intake,
			hasher,
			clock,
			idGen,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	sched := scheduler.New(registry, dispatch, clock, scheduler.Config{
		Interval:             cfg.TickInterval(),
		Expiry:               cfg.TickExpiry(),
		MaxConcurrentFetches: cfg.Scheduler.MaxConcurrentFetches,
		Cooldown:             cfg.Cooldown(),
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(registry, jobs, items, dispatch, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	if orch != nil {
		go func() {
			logger.Info("verification orchestrator started", zap.Int("workers", cfg.Verify.Workers))
			orch.Run(ctx)
		}()
	}

	go sched.Run(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.SourceRegistry, ingest.ItemStore, ingest.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory stores")
		var seed []ingest.Source
		for _, s := range cfg.Sources {
			seed = append(seed, ingest.Source{ID: s.ID, URL: s.URL, IsActive: true})
		}
		return memorystorage.NewSourceStore(seed...), memorystorage.NewItemStore(), memorystorage.NewJobStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifeMins) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	sources, err := postgres.NewSourceStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	items, err := postgres.NewItemStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	jobs, err := postgres.NewJobStore(pool)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return sources, items, jobs, pool.Close, nil
}

func buildArchive(ctx context.Context, cfg config.Config) (ingest.Archive, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcsarchive.New(client, gcsarchive.Config{Bucket: cfg.Archive.GCSBucket})
	case "memory":
		return memoryarchive.New(), nil
	default:
		return nil, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (ingest.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsubclient.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub.Stop, nil
}
