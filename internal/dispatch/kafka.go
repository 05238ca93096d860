package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes message ids to a topic so delivery workers on any host can
// pick them up. The broker gives at-least-once semantics; duplicate consumes
// are harmless because deliver is idempotent per enqueue.
type Kafka struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafka creates a kafka-backed trigger.
func NewKafka(cfg Config) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka dispatch requires at least one broker")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "mailroom.deliveries"
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &Kafka{
		writer: writer,
		logger: slog.Default().With("component", "kafka-dispatch", "topic", topic),
	}, nil
}

// Schedule publishes the id. Keying by id keeps submissions for the same
// message on one partition, so one consumer sees them in order.
func (k *Kafka) Schedule(ctx context.Context, id string) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(id),
		Value: []byte(id),
	})
	if err != nil {
		return fmt.Errorf("failed to publish delivery for %s: %w", id, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Consumer reads delivery submissions from the topic and invokes the engine.
// Run one or more per worker process; the consumer group balances partitions.
type Consumer struct {
	reader    *kafka.Reader
	deliverer Deliverer
	logger    *slog.Logger
}

// NewConsumer creates a consumer for the configured topic and group.
func NewConsumer(cfg Config, deliverer Deliverer) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "mailroom.deliveries"
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "mailroom-workers"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{
		reader:    reader,
		deliverer: deliverer,
		logger:    slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
	}, nil
}

// Run consumes until ctx is canceled. A delivery invocation error is logged
// and the offset still commits: the invocation-level retry belongs to the
// retry coordinator sweep, not to broker redelivery of a poisoned offset.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read delivery submission: %w", err)
		}

		id := string(m.Value)
		if _, err := c.deliverer.Deliver(ctx, id); err != nil {
			c.logger.Error("delivery invocation failed", "message_id", id, "error", err)
		}
	}
}

// Close stops the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
