// Package server builds the harvester's dependency graph from configuration
// and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/api"
	"github.com/JakeFAU/contact-harvester/internal/cache"
	badgercache "github.com/JakeFAU/contact-harvester/internal/cache/badger"
	memorycache "github.com/JakeFAU/contact-harvester/internal/cache/memory"
	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/collector"
	"github.com/JakeFAU/contact-harvester/internal/config"
	"github.com/JakeFAU/contact-harvester/internal/coordinator"
	"github.com/JakeFAU/contact-harvester/internal/extract"
	"github.com/JakeFAU/contact-harvester/internal/id/uuid"
	"github.com/JakeFAU/contact-harvester/internal/logging"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/contact-harvester/internal/progress"
	"github.com/JakeFAU/contact-harvester/internal/progress/feed"
	progresssinks "github.com/JakeFAU/contact-harvester/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/contact-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/contact-harvester/internal/registry"
	"github.com/JakeFAU/contact-harvester/internal/runner"
	gcsstorage "github.com/JakeFAU/contact-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/contact-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/contact-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/contact-harvester/internal/storage/postgres"
	"github.com/JakeFAU/contact-harvester/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *registry.Registry
	coord    *coordinator.Coordinator
	hub      *progress.Hub
	feed     *feed.Feed
	repo     store.SessionRepository
	api      *api.Server

	baseCancel context.CancelFunc
	// closers release infrastructure in reverse order of construction.
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithLogger supplies a logger instead of building one from config.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithRegisterer registers the progress metrics against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) { o.registerer = reg }
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	metrics.Init()

	baseCtx, baseCancel := context.WithCancel(context.WithoutCancel(ctx))
	app := &App{cfg: cfg, logger: logger, baseCancel: baseCancel}
	defer func() {
		if err != nil {
			app.release()
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.Enabled()),
	)

	app.registry = registry.New()
	closeCollectors, err := collector.RegisterAll(app.registry, cfg.Collectors, logger.Named("collector"))
	if err != nil {
		return nil, fmt.Errorf("collector init failed: %w", err)
	}
	app.addCloser("collectors", closeCollectors)
	logger.Info("collectors registered", zap.Strings("platforms", app.registry.IDs()))

	resultCache, err := app.setupCache()
	if err != nil {
		return nil, err
	}

	var limiter extract.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RateLimit.RPS, DefaultBurst: cfg.RateLimit.Burst})
		logger.Info("rate limiter enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}

	run := runner.New(app.registry, resultCache, limiter, system.New(), runner.Config{
		Retry:    cfg.RetryPolicy(),
		CacheTTL: cfg.CacheTTL(),
	}, logger.Named("runner"))

	if err = app.setupRepository(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupProgress(baseCtx, o.registerer, blobs, publisher); err != nil {
		return nil, err
	}

	app.coord = coordinator.New(run, app.registry, uuid.New(), coordinator.Config{
		Concurrency: cfg.Extraction.Concurrency,
		QueueDepth:  cfg.Extraction.QueueDepth,
		BaseContext: baseCtx,
	},
		coordinator.WithEmitter(app.hub),
		coordinator.WithLogger(logger.Named("coordinator")),
	)

	app.api = api.NewServer(api.Options{
		Controller:     app.coord,
		Platforms:      app.registry,
		Repo:           app.repo,
		Feed:           app.feed,
		Ready:          app.ready,
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		Logger:         logger.Named("api"),
	})
	return app, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

func (a *App) setupCache() (extract.ResultCache, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheNone:
		a.logger.Info("result cache disabled")
		return cache.Noop{}, nil
	case config.CacheBadger:
		st, err := badgercache.Open(badgercache.Config{
			Path:   a.cfg.Cache.BadgerPath,
			Logger: a.logger.Named("cache"),
		})
		if err != nil {
			return nil, fmt.Errorf("badger cache init failed: %w", err)
		}
		a.addCloser("badger cache", st.Close)
		a.logger.Info("using badger result cache", zap.String("path", a.cfg.Cache.BadgerPath))
		return st, nil
	default:
		a.logger.Info("using in-memory result cache")
		return memorycache.New(), nil
	}
}

func (a *App) setupRepository(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, session history is kept in memory")
		a.repo = memorystorage.NewSessionStore()
		return nil
	}
	pg, err := pgstore.NewSessionStore(ctx, pgstore.Config{
		DSN:      a.cfg.Database.DSN,
		MaxConns: a.cfg.Database.MaxConns,
		MinConns: a.cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("session store init failed: %w", err)
	}
	a.addCloser("postgres", func() error {
		pg.Close()
		return nil
	})
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("session store migrate failed: %w", err)
	}
	a.repo = pg
	a.logger.Info("postgres session store initialized")
	return nil
}

func (a *App) setupStorage(ctx context.Context) (extract.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.addCloser("gcs client", client.Close)
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS archive backend", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local archive backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory archive backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (extract.Publisher, error) {
	if !a.cfg.PubSub.Enabled() {
		a.logger.Info("no Pub/Sub topic configured, session notifications disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.addCloser("pubsub client", client.Close)
	pub := gcppublisher.New(client, a.cfg.PubSub.TopicName)
	a.addCloser("pubsub publisher", func() error {
		pub.Close()
		return nil
	})
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupProgress(
	ctx context.Context,
	reg prometheus.Registerer,
	blobs extract.BlobStore,
	publisher extract.Publisher,
) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.feed = feed.New(feed.DefaultBuffer, a.logger.Named("progress_feed"))

	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewStoreSink(a.repo, a.logger.Named("progress_store")),
		progresssinks.NewArchiveSink(blobs, a.cfg.Storage.Prefix, a.logger.Named("progress_archive")),
		a.feed,
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if publisher != nil {
		sinkList = append(sinkList,
			progresssinks.NewPublisherSink(publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_publisher")))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    ctx,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := a.repo.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("session store: %w", err)
		}
	}
	return nil
}

// Coordinator exposes the session coordinator for one-shot commands.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Handler returns the HTTP handler tree.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Run serves HTTP until ctx ends or SIGINT/SIGTERM arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close stops the running session, drains progress sinks and releases
// infrastructure. The session gets until ctx ends to finish. Sinks flush on
// the base context, so it is canceled only once the hub is closed.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.coord != nil {
		if err := a.coord.Shutdown(ctx); err != nil {
			a.logger.Warn("session drain incomplete", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.release())
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) release() error {
	a.baseCancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
