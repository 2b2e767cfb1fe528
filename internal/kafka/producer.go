package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

// Producer publishes messages to Kafka topics.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type producer struct {
	writer messageWriter
	now    func() time.Time
}

// NewProducer creates a producer for the given brokers. Messages are hashed
// by key, so events for one user stay ordered on one partition.
func NewProducer(brokers []string) Producer {
	return &producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            3,
			WriteTimeout:           10 * time.Second,
			ReadTimeout:            10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

// Publish writes one message with the caller's trace context in its headers.
func (p *producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "kafka.publish "+topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.kafka.message.key", key),
		),
	)
	defer span.End()

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: injectTrace(ctx),
		Time:    p.now(),
	})
	if err != nil {
		telemetry.KafkaMessagesTotal.WithLabelValues(topic, "publish_failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	telemetry.KafkaMessagesTotal.WithLabelValues(topic, "published").Inc()
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}

// PublishJSON marshals v and publishes it under key.
func PublishJSON(ctx context.Context, p Producer, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return p.Publish(ctx, topic, key, data)
}
