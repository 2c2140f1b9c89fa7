// Package kafka provides a Kafka-backed work queue.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
)

// MessageReader is the subset of *kafka.Reader used by Queue.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by Queue.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures a Queue backed by real brokers.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	Logger  *slog.Logger
}

// Queue consumes work items from a topic with a consumer group. Offsets are
// committed on Ack; Nack republishes the message to the tail of the topic and
// then commits the original.
type Queue struct {
	reader MessageReader
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

var _ core.WorkQueue = (*Queue)(nil)

// NewQueue connects a reader and writer for cfg.Topic.
func NewQueue(cfg Config) (*Queue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group ID is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewQueueWithClients(reader, writer, cfg.Topic, cfg.Logger), nil
}

// NewQueueWithClients builds a Queue over existing reader and writer clients.
func NewQueueWithClients(reader MessageReader, writer MessageWriter, topic string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		reader: reader,
		writer: writer,
		topic:  topic,
		logger: logger.With("component", "kafka_queue", "topic", topic),
	}
}

// Publish writes a work item keyed by job ID.
func (q *Queue) Publish(ctx context.Context, item model.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(item.JobID), Value: body}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Receive fetches the next message without committing it.
func (q *Queue) Receive(ctx context.Context) (core.Delivery, error) {
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("kafka fetch: %w", err)
	}
	return &delivery{queue: q, msg: msg}, nil
}

// Close closes the reader and writer.
func (q *Queue) Close() error {
	return errors.Join(q.reader.Close(), q.writer.Close())
}

type delivery struct {
	queue *Queue
	msg   kafka.Message
}

func (d *delivery) Body() []byte { return d.msg.Value }

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.queue.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("kafka commit offset %d: %w", d.msg.Offset, err)
	}
	return nil
}

func (d *delivery) Nack(ctx context.Context) error {
	retry := kafka.Message{Key: d.msg.Key, Value: d.msg.Value, Headers: d.msg.Headers}
	if err := d.queue.writer.WriteMessages(ctx, retry); err != nil {
		return fmt.Errorf("kafka republish offset %d: %w", d.msg.Offset, err)
	}
	d.queue.logger.DebugContext(ctx, "republished work item",
		"partition", d.msg.Partition, "offset", d.msg.Offset)
	return d.Ack(ctx)
}

// Extend is a no-op: an uncommitted message is only redelivered after a
// rebalance, so there is no deadline to move.
func (d *delivery) Extend(context.Context) error { return nil }
