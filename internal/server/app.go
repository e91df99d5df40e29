// Package server builds the ingestion service's dependencies and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/api"
	"github.com/JakeFAU/award-ingestor/internal/clock/system"
	"github.com/JakeFAU/award-ingestor/internal/columnar"
	"github.com/JakeFAU/award-ingestor/internal/config"
	"github.com/JakeFAU/award-ingestor/internal/grants"
	"github.com/JakeFAU/award-ingestor/internal/hash/sha256"
	"github.com/JakeFAU/award-ingestor/internal/id/uuid"
	"github.com/JakeFAU/award-ingestor/internal/ingest"
	"github.com/JakeFAU/award-ingestor/internal/metrics"
	"github.com/JakeFAU/award-ingestor/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/award-ingestor/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/award-ingestor/internal/publisher/pubsub"
	"github.com/JakeFAU/award-ingestor/internal/runlog"
	"github.com/JakeFAU/award-ingestor/internal/storage"
	gcsstorage "github.com/JakeFAU/award-ingestor/internal/storage/gcs"
	localstorage "github.com/JakeFAU/award-ingestor/internal/storage/local"
	memorystorage "github.com/JakeFAU/award-ingestor/internal/storage/memory"
	pgstore "github.com/JakeFAU/award-ingestor/internal/storage/postgres"
	"github.com/JakeFAU/award-ingestor/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobStore storage.BlobStore
	pipeline  *ingest.Pipeline
	apiServer *api.Server

	gcs            *gcsstorage.BlobStore
	publisher      interface{ Close() error }
	runLogStore    *pgstore.RunLogStore
	tracerShutdown telemetry.Shutdown
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Int("workers", cfg.Ingest.Workers),
	)
	metrics.Init()

	tp, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.ServiceVersion,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	if err := app.setupStorage(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	recorder, err := app.setupRunLog(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	fetcher, err := app.setupFetcher()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	aggregator := ingest.NewAggregator(fetcher, ingest.AggregatorConfig{
		Workers:  cfg.Ingest.Workers,
		DayDelay: cfg.DayDelay(),
	}, logger.Named("aggregator"))
	persister := ingest.NewPersister(
		app.blobStore,
		columnar.NewParquetEncoder(),
		sha256.New(),
		ingest.Layout{StagingPrefix: cfg.Storage.StagingPrefix, BronzePrefix: cfg.Storage.BronzePrefix},
		logger.Named("persister"),
	)
	app.pipeline, err = ingest.NewPipeline(
		aggregator,
		persister,
		recorder,
		publisher,
		system.New(),
		uuid.New(),
		ingest.Config{
			DefaultStartDate: cfg.Ingest.DefaultStartDate,
			DefaultEndDate:   cfg.Ingest.DefaultEndDate,
			Topic:            cfg.PubSub.TopicName,
		},
		logger.Named("pipeline"),
	)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	opts := api.Options{RequestTimeout: cfg.RequestTimeout(), Ready: app.ready}
	if cfg.Auth.Enabled {
		opts.FunctionKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(app.pipeline, opts, logger.Named("api"))
	return app, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket}, a.logger)
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.blobStore = store
	case config.ProviderLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobStore = store
	default:
		a.logger.Warn("using in-memory storage backend; artifacts are lost on exit")
		a.blobStore = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupRunLog(ctx context.Context) (runlog.Recorder, error) {
	blobLog := runlog.NewBlobLog(a.blobStore, a.cfg.Storage.LogPath, a.logger.Named("runlog"))
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no db.dsn configured, run log mirror disabled")
		return blobLog, nil
	}
	if a.cfg.DB.Migrate {
		if err := pgstore.Migrate(a.cfg.DB.DSN); err != nil {
			return nil, fmt.Errorf("run log migrations failed: %w", err)
		}
		a.logger.Info("run log schema migrated")
	}
	store, err := pgstore.NewRunLogStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("run log store init failed: %w", err)
	}
	a.runLogStore = store
	a.logger.Info("run log mirror initialized", zap.String("table", a.cfg.DB.Table))
	return runlog.Multi{blobLog, store}, nil
}

func (a *App) setupPublisher(ctx context.Context) (ingest.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		pub := memorypublisher.New()
		a.publisher = pub
		return pub, nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupFetcher() (*grants.Client, error) {
	httpClient := grants.NewHTTPClient(a.cfg.GrantsTimeout())
	httpClient.Transport = telemetry.Transport(httpClient.Transport)

	limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.Grants.MaxRPS, Burst: a.cfg.Grants.Burst})
	if a.cfg.Grants.MaxRPS > 0 {
		a.logger.Info("grants rate limit enabled",
			zap.Float64("rps", a.cfg.Grants.MaxRPS),
			zap.Int("burst", a.cfg.Grants.Burst),
		)
	}
	client, err := grants.NewClient(grants.Config{
		BaseURL:   a.cfg.Grants.BaseURL,
		APIKey:    a.cfg.Grants.APIKey,
		UserAgent: a.cfg.Grants.UserAgent,
		PageSize:  a.cfg.Grants.PageSize,
		PageDelay: a.cfg.PageDelay(),
		Timeout:   a.cfg.GrantsTimeout(),
	}, httpClient, limiter, a.logger.Named("grants"))
	if err != nil {
		return nil, fmt.Errorf("grants client init failed: %w", err)
	}
	return client, nil
}

// ready probes the blob store by reading the run log; a missing log is fine.
func (a *App) ready(ctx context.Context) error {
	path := a.cfg.Storage.LogPath
	if path == "" {
		path = runlog.DefaultPath
	}
	if _, err := a.blobStore.GetObject(ctx, path); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("blob store not ready: %w", err)
	}
	return nil
}

// Pipeline exposes the ingestion pipeline for one-shot runs.
func (a *App) Pipeline() *ingest.Pipeline {
	return a.pipeline
}

// Handler returns the traced HTTP handler.
func (a *App) Handler() http.Handler {
	return telemetry.Handler(a.apiServer.Handler(), "award-ingestor")
}

// Serve runs the HTTP server until ctx is canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close(shutdownCtx)
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases clients and flushes telemetry. It is safe to call on a
// partially built App.
func (a *App) Close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.runLogStore != nil {
		a.runLogStore.Close()
		a.runLogStore = nil
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	a.logger.Info("shutdown complete")
}
