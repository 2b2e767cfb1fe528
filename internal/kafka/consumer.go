package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"

	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

// Message is a consumed Kafka message.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Offset  int64
	Headers []kafka.Header
}

// HandlerFunc processes one message. A nil return commits the offset. Any
// other error leaves it uncommitted for redelivery, except errors wrapping
// ErrMalformedEvent, which are committed and dropped.
type HandlerFunc func(ctx context.Context, msg Message) error

// Consumer reads one topic as a member of a consumer group.
type Consumer interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type consumer struct {
	reader messageReader
	logger *slog.Logger
}

// NewConsumer joins groupID on topic. New groups start from the latest
// offset: old task events carry no analytics value once a scheduled refresh
// has run.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // commits are explicit
		StartOffset:    kafka.LastOffset,
	})
	return &consumer{reader: r, logger: logger.With(slog.String("topic", topic))}
}

// Subscribe hands messages to handler until ctx is cancelled, which is a clean
// return. Delivery is at least once.
func (c *consumer) Subscribe(ctx context.Context, handler HandlerFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if !c.handle(ctx, m, handler) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("kafka commit failed",
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// handle runs handler under a consumer span and reports whether the offset
// should be committed.
func (c *consumer) handle(ctx context.Context, m kafka.Message, handler HandlerFunc) bool {
	ctx, span := consumeSpan(ctx, m)
	defer span.End()

	err := handler(ctx, Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Value,
		Offset:  m.Offset,
		Headers: m.Headers,
	})
	switch {
	case err == nil:
		telemetry.KafkaMessagesTotal.WithLabelValues(m.Topic, "committed").Inc()
		return true
	case errors.Is(err, ErrMalformedEvent):
		telemetry.KafkaMessagesTotal.WithLabelValues(m.Topic, "dropped").Inc()
		c.logger.Warn("dropping malformed message",
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
		return true
	default:
		telemetry.KafkaMessagesTotal.WithLabelValues(m.Topic, "redelivered").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("message handler failed, offset left uncommitted",
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()),
		)
		return false
	}
}

func (c *consumer) Close() error {
	return c.reader.Close()
}
