// Package kafka publishes session lifecycle events for other marketplace
// services (audit, notifications). Publishing is strictly best-effort: the
// session core never fails an operation because an event could not be sent.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types emitted by the session manager.
const (
	EventSessionCreated         = "session.created"
	EventSessionRefreshed       = "session.refreshed"
	EventSessionInvalidated     = "session.invalidated"
	EventAllSessionsInvalidated = "sessions.all_invalidated"
)

// SessionEvent is the wire envelope for every session lifecycle event.
type SessionEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Producer writes session events to a single Kafka topic keyed by session id.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a Kafka producer for session events.
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger,
	}
}

// PublishSessionEvent serializes and writes one event. A nil producer is a
// configured-off publisher and silently succeeds.
func (p *Producer) PublishSessionEvent(ctx context.Context, eventType string, key string, payload interface{}) error {
	if p == nil {
		return nil
	}

	event := SessionEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		p.logger.Error("Failed to publish session event",
			zap.Error(err),
			zap.String("event_type", eventType),
		)
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
