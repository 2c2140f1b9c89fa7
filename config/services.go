package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker consumes work items and screens their records.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper deletes jobs whose retention has expired.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}
		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: worker, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// WorkerConfig controls the screening worker pool.
type WorkerConfig struct {
	// Concurrency is the number of work items processed in parallel.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// LockTTL bounds how long one worker holds a job before another may take it.
	LockTTL time.Duration `env:"JOB_LOCK_TTL" envDefault:"15m"`

	// HeartbeatInterval is how often a running job refreshes its lock and queue
	// deadline. Zero or anything not below LockTTL means a third of LockTTL.
	HeartbeatInterval time.Duration `env:"WORKER_HEARTBEAT_INTERVAL"`

	// RetryDelay is the pause before an item that could not be handled is released.
	RetryDelay time.Duration `env:"WORKER_RETRY_DELAY" envDefault:"5s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Concurrency > 64 {
		w.Concurrency = 64
	}
	if w.LockTTL < time.Minute {
		w.LockTTL = time.Minute
	}
	if w.RetryDelay <= 0 {
		w.RetryDelay = 5 * time.Second
	}
	if w.HeartbeatInterval <= 0 || w.HeartbeatInterval >= w.LockTTL {
		w.HeartbeatInterval = w.LockTTL / 3
	}
}

// ReaperConfig contains retention reaper configuration.
type ReaperConfig struct {
	// Interval is how often expired jobs are deleted.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`

	// BatchSize is the maximum number of jobs deleted per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
