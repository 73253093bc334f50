// Package events publishes document and review lifecycle events to Kafka so
// downstream services can react to ingestion and synthesis outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/scholarsynth/research-assistant-service/internal/domain"
)

// Publisher emits lifecycle events for other services to consume.
type Publisher interface {
	// Publish emits a single lifecycle event. It must never block the caller's
	// business flow on broker unavailability beyond the writer's timeout.
	Publish(ctx context.Context, event *domain.LifecycleEvent) error
	// Close flushes and releases the underlying writer.
	Close() error
}

// messageWriter is the subset of kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for lifecycle events.
	Topic string
	// BatchTimeout bounds how long messages wait for batching before being sent.
	BatchTimeout time.Duration
}

// Compile-time interface verification.
var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*NoopPublisher)(nil)
)

// KafkaPublisher publishes lifecycle events to a Kafka topic. Events are keyed
// by aggregate ID so all events for one document or review land on the same
// partition in order.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured topic.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish serializes the event to JSON and writes it keyed by aggregate ID.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	if event == nil {
		return fmt.Errorf("events: event cannot be nil")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: failed to marshal event %s: %w", event.EventID, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: failed to publish %s for %s: %w", event.EventType, event.AggregateID, err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID).
		Msg("published lifecycle event")

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards all events. Used when Kafka is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards all events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish discards the event.
func (p *NoopPublisher) Publish(_ context.Context, _ *domain.LifecycleEvent) error {
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
