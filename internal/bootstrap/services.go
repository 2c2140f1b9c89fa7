package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/adapters/jobrunner"
	"github.com/target/namescreen/internal/adapters/reaper"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/screening"
	"github.com/target/namescreen/internal/observability/statsd"
	"github.com/target/namescreen/internal/service"
	"github.com/target/namescreen/internal/service/failurenotifier"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all application services and the adapters they share.
type ServiceContainer struct {
	Jobs      *service.JobService
	Screening *service.ScreeningService
	Results   core.RecordResultRepository
	Objects   core.ObjectStore
	Queue     core.WorkQueue
	Stores    Stores
	Metrics   *statsd.Client
	Notifier  *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// sink converts an optional client to a Sink that is nil when metrics are off.
//
//nolint:ireturn // statsd.Sink is the interface every emitter accepts.
func (c *ServiceContainer) sink() statsd.Sink {
	if c == nil || c.Metrics == nil {
		return nil
	}
	return c.Metrics
}

// failureNotifier returns the notifier as an interface that is nil when alerting is off.
//
//nolint:ireturn // service.FailureNotifier is the interface ScreeningService accepts.
func (c *ServiceContainer) failureNotifier() service.FailureNotifier {
	if c.Notifier == nil {
		return nil
	}
	return c.Notifier
}

// NewServices builds the adapters selected by configuration and the services on top of them.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	adapterDeps := AdapterDeps{Config: cfg, DB: deps.DB, RedisClient: deps.RedisClient, Logger: logger}

	c := &ServiceContainer{
		Metrics:  BuildMetrics(logger, cfg.Observability.Metrics),
		Notifier: BuildFailureNotifier(logger, cfg.Observability.Notifications),
	}

	stores, err := BuildStores(ctx, adapterDeps)
	if err != nil {
		return nil, fmt.Errorf("build stores: %w", err)
	}
	c.Stores = stores
	c.Results = stores.Results

	if c.Objects, err = BuildObjectStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	if c.Queue, err = BuildQueue(adapterDeps); err != nil {
		return nil, fmt.Errorf("build queue: %w", err)
	}

	if c.Jobs, err = service.NewJobService(service.JobServiceOptions{
		Repo:      stores.Jobs,
		Retention: cfg.Screening.Retention(),
		Logger:    logger,
		Metrics:   c.sink(),
	}); err != nil {
		return nil, err
	}

	scorer, err := screening.NewScorer(screening.Strategy(cfg.Screening.MatchStrategy))
	if err != nil {
		return nil, err
	}
	watchlist, err := service.NewWatchlistProvider(service.WatchlistOptions{
		Store:    c.Objects,
		Bucket:   cfg.Screening.WatchlistBucket,
		Key:      cfg.Screening.WatchlistKey,
		NamePath: cfg.Screening.WatchlistNamePath,
		Logger:   logger,
		Metrics:  c.sink(),
	})
	if err != nil {
		return nil, err
	}
	processor, err := service.NewRecordProcessor(service.RecordProcessorOptions{
		Results: stores.Results,
		Scorer:  scorer,
		MaxRows: cfg.Screening.MaxRows,
		Logger:  logger,
		Metrics: c.sink(),
	})
	if err != nil {
		return nil, err
	}
	if c.Screening, err = service.NewScreeningService(service.ScreeningServiceOptions{
		Jobs:           c.Jobs,
		Watchlist:      watchlist,
		Objects:        c.Objects,
		Processor:      processor,
		DefaultCountry: cfg.Screening.DefaultCountry,
		Notifier:       c.failureNotifier(),
		Logger:         logger,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases adapters owned by the container.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Queue != nil {
		errs = append(errs, c.Queue.Close())
	}
	errs = append(errs, c.Metrics.Close())
	return errors.Join(errs...)
}

// WorkerConfig contains configuration for the screening worker.
type WorkerConfig struct {
	Services    *ServiceContainer
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Config      config.WorkerConfig
}

// RunWorker starts the queue consumer pool.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	lock, err := BuildJobLock(AdapterDeps{RedisClient: cfg.RedisClient})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Queue:             cfg.Services.Queue,
		Lock:              lock,
		Processor:         cfg.Services.Screening,
		Logger:            cfg.Logger,
		Metrics:           cfg.Services.sink(),
		Concurrency:       cfg.Config.Concurrency,
		LockTTL:           cfg.Config.LockTTL,
		HeartbeatInterval: cfg.Config.HeartbeatInterval,
		RetryDelay:        cfg.Config.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run worker: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Repo    core.ReaperRepository
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Repo:    cfg.Repo,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}
	return runner.Run(ctx)
}

// ServiceOrchestrationConfig contains everything needed to run the enabled services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    *ServiceContainer
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(ctx context.Context) error
}

type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		{
			mode: config.ServiceModeWorker,
			name: "worker",
			start: func(ctx context.Context) error {
				return RunWorker(ctx, WorkerConfig{
					Services:    cfg.Services,
					RedisClient: cfg.RedisClient,
					Logger:      logger,
					Config:      cfg.Config.Worker,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				if cfg.Services.Stores.Reaper == nil {
					logger.InfoContext(ctx, "reaper not needed, store expires items natively",
						"store", cfg.Config.Store.Backend)
					return nil
				}
				return RunReaper(ctx, ReaperConfig{
					Repo:    cfg.Services.Stores.Reaper,
					Logger:  logger,
					Config:  cfg.Config.Reaper,
					Metrics: cfg.Services.sink(),
				})
			},
		},
	}
}

func startBackgroundServices(
	ctx context.Context,
	services []backgroundService,
	enabled map[config.ServiceMode]bool,
	errCh chan<- error,
	logger *slog.Logger,
) []backgroundServiceHandle {
	handles := make([]backgroundServiceHandle, 0, len(services))
	for _, svc := range services {
		if !enabled[svc.mode] {
			continue
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			logger.InfoContext(ctx, "starting "+svc.name)
			if err := svc.start(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("%s: %w", svc.name, err)
			}
		}()
		handles = append(handles, backgroundServiceHandle{name: svc.name, done: done})
	}
	return handles
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config missing AppConfig or services")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	handles := startBackgroundServices(serviceCtx, buildBackgroundServices(cfg, logger), enabledServices, errCh, logger)

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
	signals     <-chan os.Signal
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := cfg.signals
	if quit == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		quit = ch
	}

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	t := time.NewTimer(shutdownWaitTimeout)
	defer t.Stop()
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-t.C:
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
