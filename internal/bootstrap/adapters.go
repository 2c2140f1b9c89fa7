package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/adapters/kafka"
	"github.com/target/namescreen/internal/adapters/objectstore"
	redisadapter "github.com/target/namescreen/internal/adapters/redis"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/data"
	"github.com/target/namescreen/internal/data/dynamo"
	"github.com/target/namescreen/internal/observability/notify/pagerduty"
	"github.com/target/namescreen/internal/observability/notify/slack"
	"github.com/target/namescreen/internal/observability/statsd"
	"github.com/target/namescreen/internal/service/failurenotifier"
)

// AdapterDeps groups the shared clients adapters are built from.
type AdapterDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Required for the postgres store
	RedisClient redis.UniversalClient // Required for the redis queue and the job lock
	Logger      *slog.Logger
}

// Stores bundles the job and record result repositories of one backend.
type Stores struct {
	Jobs    core.JobRepository
	Results core.RecordResultRepository
	// Reaper is nil for stores that expire items natively.
	Reaper core.ReaperRepository
}

// awsConfigLoader caches the AWS SDK config across adapters built in one process.
type awsConfigLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsConfigLoader) load(ctx context.Context, region string) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = objectstore.LoadAWSConfig(ctx, region)
	})
	return l.cfg, l.err
}

var sharedAWSConfig awsConfigLoader

// BuildStores wires the configured job and result store.
func BuildStores(ctx context.Context, deps AdapterDeps) (Stores, error) {
	cfg := deps.Config
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		if deps.DB == nil {
			return Stores{}, errors.New("postgres store requires a database connection")
		}
		return Stores{
			Jobs:    data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
			Results: data.NewRecordResultRepo(deps.DB),
			Reaper:  data.NewReaperRepo(deps.DB),
		}, nil

	case config.StoreBackendDynamoDB:
		awsCfg, err := sharedAWSConfig.load(ctx, cfg.AWS.Region)
		if err != nil {
			return Stores{}, err
		}
		client := newDynamoClient(awsCfg, cfg.AWS.EndpointURL)
		jobs, err := dynamo.NewJobRepo(dynamo.JobRepoOptions{
			Client: client,
			Table:  cfg.Store.JobsTable,
			Logger: deps.Logger,
		})
		if err != nil {
			return Stores{}, fmt.Errorf("dynamodb job repo: %w", err)
		}
		results, err := dynamo.NewRecordResultRepo(client, cfg.Store.ResultsTable)
		if err != nil {
			return Stores{}, fmt.Errorf("dynamodb result repo: %w", err)
		}
		return Stores{Jobs: jobs, Results: results}, nil
	}
	return Stores{}, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
}

func newDynamoClient(awsCfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// BuildObjectStore wires the configured object store.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildObjectStore(ctx context.Context, cfg *config.AppConfig) (core.ObjectStore, error) {
	switch cfg.ObjectStore.Backend {
	case config.ObjectStoreS3:
		awsCfg, err := sharedAWSConfig.load(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3Store(objectstore.NewS3Client(awsCfg, cfg.AWS.EndpointURL)), nil
	case config.ObjectStoreFilesystem:
		return objectstore.NewFSStore(cfg.ObjectStore.Root)
	}
	return nil, fmt.Errorf("unsupported object store %q", cfg.ObjectStore.Backend)
}

// BuildQueue wires the configured work queue.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildQueue(deps AdapterDeps) (core.WorkQueue, error) {
	cfg := deps.Config.Queue
	switch cfg.Backend {
	case config.QueueBackendRedis:
		if deps.RedisClient == nil {
			return nil, errors.New("redis queue requires a redis client")
		}
		return redisadapter.NewQueue(redisadapter.QueueOptions{
			Client:            deps.RedisClient,
			Name:              cfg.Name,
			VisibilityTimeout: cfg.VisibilityTimeout,
			Logger:            deps.Logger,
		})
	case config.QueueBackendKafka:
		return kafka.NewQueue(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
			Logger:  deps.Logger,
		})
	}
	return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
}

// BuildJobLock wires the Redis job lock.
func BuildJobLock(deps AdapterDeps) (*redisadapter.JobLock, error) {
	if deps.RedisClient == nil {
		return nil, errors.New("job lock requires a redis client")
	}
	return redisadapter.NewJobLock(deps.RedisClient), nil
}

// BuildMetrics returns a StatsD client when metrics are enabled, or nil.
func BuildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// BuildFailureNotifier returns a notifier fanning out to the enabled sinks,
// or nil when none is enabled. Sinks that fail to initialise are logged and skipped.
func BuildFailureNotifier(logger *slog.Logger, cfg config.NotificationsConfig) *failurenotifier.Service {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return nil
	}

	var sinks []failurenotifier.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return failurenotifier.NewService(failurenotifier.Options{Logger: logger, Sinks: sinks})
}
