package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/outbound-request-tracker/config"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/repositories"
	"github.com/upb/outbound-request-tracker/repositories/postgres"
	"github.com/upb/outbound-request-tracker/repositories/sqs"
	"github.com/upb/outbound-request-tracker/services/dispatch"
	"github.com/upb/outbound-request-tracker/services/publisher"
	"github.com/upb/outbound-request-tracker/services/tracking"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Queue backend
	Queue repositories.QueueRepository

	// Tracking settings
	Properties *config.Properties
	Resolver   *config.Resolver

	// Tracking pipeline
	Publisher   *publisher.Publisher
	Dispatcher  *dispatch.Service
	Interceptor *tracking.Interceptor
	HTTPClient  *http.Client
}

// NewDependencies creates and wires up all application dependencies.
// The queue is provisioned before returning, so a provisioning failure
// surfaces here.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initQueue(ctx, cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := deps.initTracking(ctx, cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize tracking: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithQueue wires the tracking pipeline on top of an existing
// queue backend
func NewDependenciesWithQueue(ctx context.Context, cfg *config.Config, logger *zap.Logger, queue repositories.QueueRepository) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Queue:  queue,
	}

	if err := deps.initTracking(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracking: %w", err)
	}

	return deps, nil
}

// initQueue connects the configured queue backend
func (d *Dependencies) initQueue(ctx context.Context, cfg *config.Config) error {
	switch cfg.Queue.Backend {
	case config.QueueBackendPostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		d.DB = db
		d.Queue = postgres.NewQueueRepository(db, d.Logger)

	case config.QueueBackendSQS:
		client, err := sqs.NewClient(ctx, cfg.Queue.SQS)
		if err != nil {
			return err
		}
		d.Queue = sqs.NewQueueRepository(client, d.Logger)

	default:
		return fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}

	d.Logger.Info("queue backend initialized", zap.String("backend", cfg.Queue.Backend))
	return nil
}

// initTracking builds the publisher, optional dispatcher and interceptor
func (d *Dependencies) initTracking(ctx context.Context, cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics(nil)
	}

	props, err := config.LoadProperties(cfg.Tracking.PropertiesFile)
	if err != nil {
		return err
	}
	d.Properties = props
	d.Resolver = config.NewResolver(props)

	d.Publisher = publisher.New(d.Queue, d.Resolver, d.Logger, d.Metrics)
	if _, err := d.Publisher.Provision(ctx); err != nil {
		return err
	}

	var pub tracking.Publisher = d.Publisher
	if cfg.Tracking.IsAsync() {
		d.Dispatcher = dispatch.NewService(d.Publisher, d.Logger, d.Metrics, dispatch.Config{
			BufferSize:     cfg.Tracking.DispatchBuffer,
			WorkerCount:    cfg.Tracking.DispatchWorkers,
			PublishTimeout: cfg.Tracking.PublishTimeout,
		})
		if err := d.Dispatcher.Start(); err != nil {
			return err
		}
		pub = d.Dispatcher
	}

	d.Interceptor = tracking.NewInterceptor(pub, d.Logger,
		tracking.WithLogIDHeader(cfg.Tracking.LogIDHeader),
		tracking.WithMetrics(d.Metrics))
	d.HTTPClient = tracking.WrapClient(&http.Client{Timeout: 30 * time.Second}, d.Interceptor)

	d.Logger.Info("tracking initialized",
		zap.String("publish_mode", cfg.Tracking.PublishMode),
		zap.String("log_id_header", cfg.Tracking.LogIDHeader))

	return nil
}

func (d *Dependencies) closeDatabase() {
	if d.DB != nil {
		_ = d.DB.Close()
		d.DB = nil
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain pending records before the queue goes away
	if d.Dispatcher != nil {
		timeout := d.Config.Tracking.PublishTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Dispatcher.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop dispatcher: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
