package config

import (
	"errors"
	"fmt"

	"github.com/target/namescreen/internal/domain/screening"
)

// AppConfig is the screener configuration, composed from the domain-specific
// structs in this package and loaded from environment variables with
// github.com/caarlos0/env:
//   - screening.go: row ceiling, retention, scorer and watchlist location
//   - backends.go: store, queue, object store and AWS selection
//   - database.go: Postgres and Redis connections
//   - services.go: enabled services, worker pool and reaper
//   - observability.go: StatsD metrics and log level
type AppConfig struct {
	// Services is a comma-delimited list of enabled services (worker, reaper).
	Services string `env:"SERVICES" envDefault:"worker"`

	Screening   ScreeningConfig
	Store       StoreConfig
	Queue       QueueConfig
	ObjectStore ObjectStoreConfig
	AWS         AWSConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Worker WorkerConfig
	Reaper ReaperConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.Screening.Sanitize()
	c.Store.Sanitize()
	c.Queue.Sanitize()
	c.ObjectStore.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration that Sanitize cannot repair.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.GetEnabledServices(); err != nil {
		errs = append(errs, err)
	}
	if _, err := screening.NewScorer(screening.Strategy(c.Screening.MatchStrategy)); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Store.Validate(), c.Queue.Validate(), c.ObjectStore.Validate())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsWorkerEnabled returns true if the screening worker is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReaperEnabled returns true if the retention reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}

// NeedsPostgres reports whether any enabled component talks to Postgres.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Store.Backend == StoreBackendPostgres
}

// NeedsRedis reports whether any enabled component talks to Redis. The job
// lock always does when the worker runs.
func (c *AppConfig) NeedsRedis() bool {
	return c.IsWorkerEnabled() || c.Queue.Backend == QueueBackendRedis
}
