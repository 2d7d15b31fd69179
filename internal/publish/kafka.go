// Package publish forwards alert intents to systems outside the engine:
// a Kafka topic for downstream consumers and an HTTP webhook for responders.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes intents as JSON messages keyed by entity_id, so all
// intents of one entity land on the same partition in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaSink(w, topic, logger), nil
}

func newKafkaSink(w messageWriter, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		writer: w,
		topic:  topic,
		logger: logger.With(zap.String("component", "kafka-sink"), zap.String("topic", topic)),
	}
}

// Name identifies the sink in metrics.
func (k *KafkaSink) Name() string { return "kafka" }

// Publish writes all intents in one batch.
func (k *KafkaSink) Publish(ctx context.Context, intents []domain.AlertIntent) error {
	if len(intents) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(intents))
	for _, in := range intents {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal intent %s: %w", in.IntentID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(in.EntityID),
			Value: b,
			Time:  time.UnixMilli(in.CreatedAtMs),
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(in.Type)},
				{Key: "severity", Value: []byte(in.Severity)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d intents to %s: %w", len(msgs), k.topic, err)
	}
	k.logger.Debug("intents published", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes pending writes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
