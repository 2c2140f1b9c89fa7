package config

import (
	"fmt"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendDynamoDB = "dynamodb"
)

// Queue backends accepted by QUEUE_BACKEND.
const (
	QueueBackendRedis = "redis"
	QueueBackendKafka = "kafka"
)

// Object store backends accepted by OBJECT_STORE.
const (
	ObjectStoreS3         = "s3"
	ObjectStoreFilesystem = "filesystem"
)

// StoreConfig selects where jobs and record results are persisted.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" envDefault:"postgres"`

	// JobsTable and ResultsTable name the DynamoDB tables.
	JobsTable    string `env:"JOBS_TABLE" envDefault:"ComplianceJobs"`
	ResultsTable string `env:"DDB_TABLE"  envDefault:"ComplianceResults"`
}

// Sanitize normalises the backend name.
func (c *StoreConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.JobsTable = strings.TrimSpace(c.JobsTable)
	c.ResultsTable = strings.TrimSpace(c.ResultsTable)
}

// Validate checks the backend name and its required fields.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case StoreBackendPostgres:
		return nil
	case StoreBackendDynamoDB:
		if c.JobsTable == "" || c.ResultsTable == "" {
			return fmt.Errorf("JOBS_TABLE and DDB_TABLE are required for the dynamodb store")
		}
		return nil
	default:
		return fmt.Errorf("invalid store backend: %q (valid options: postgres, dynamodb)", c.Backend)
	}
}

// QueueConfig selects how work items are delivered.
type QueueConfig struct {
	Backend string `env:"QUEUE_BACKEND" envDefault:"redis"`

	// Name is the Redis list holding pending work items.
	Name string `env:"QUEUE_NAME" envDefault:"screening:work"`

	// VisibilityTimeout is how long a received Redis item may stay unacknowledged
	// before it is returned to the pending list.
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" envDefault:"30m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS"  envDefault:"localhost:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC"    envDefault:"screening-work"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"namescreen-worker"`
}

// Sanitize normalises queue settings.
func (c *QueueConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = "screening:work"
	}
	if c.VisibilityTimeout < time.Minute {
		c.VisibilityTimeout = time.Minute
	}
	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate checks the backend name and its required fields.
func (c *QueueConfig) Validate() error {
	switch c.Backend {
	case QueueBackendRedis:
		return nil
	case QueueBackendKafka:
		if len(c.KafkaBrokers) == 0 || strings.TrimSpace(c.KafkaTopic) == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka queue")
		}
		return nil
	default:
		return fmt.Errorf("invalid queue backend: %q (valid options: redis, kafka)", c.Backend)
	}
}

// ObjectStoreConfig selects where input files and watchlist snapshots are read.
type ObjectStoreConfig struct {
	Backend string `env:"OBJECT_STORE" envDefault:"s3"`

	// Root is the base directory of the filesystem store; buckets are subdirectories.
	Root string `env:"OBJECT_STORE_ROOT" envDefault:"./data/objects"`
}

// Sanitize normalises the backend name.
func (c *ObjectStoreConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.Root = strings.TrimSpace(c.Root)
}

// Validate checks the backend name and its required fields.
func (c *ObjectStoreConfig) Validate() error {
	switch c.Backend {
	case ObjectStoreS3:
		return nil
	case ObjectStoreFilesystem:
		if c.Root == "" {
			return fmt.Errorf("OBJECT_STORE_ROOT is required for the filesystem object store")
		}
		return nil
	default:
		return fmt.Errorf("invalid object store: %q (valid options: s3, filesystem)", c.Backend)
	}
}

// AWSConfig configures the S3 and DynamoDB clients.
type AWSConfig struct {
	Region string `env:"AWS_REGION"`
	// EndpointURL points both clients at a local emulator such as LocalStack.
	EndpointURL string `env:"AWS_ENDPOINT_URL"`
}
