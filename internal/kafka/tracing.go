package kafka

import (
	"context"

	segkafka "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

var tracer = telemetry.Tracer("kafka")

// headers lets the global propagator read and write Kafka message headers.
type headers []segkafka.Header

var _ propagation.TextMapCarrier = (*headers)(nil)

func (h headers) Get(key string) string {
	for _, hd := range h {
		if hd.Key == key {
			return string(hd.Value)
		}
	}
	return ""
}

// Set replaces any header already stored under key.
func (h *headers) Set(key, value string) {
	kept := (*h)[:0]
	for _, hd := range *h {
		if hd.Key != key {
			kept = append(kept, hd)
		}
	}
	*h = append(kept, segkafka.Header{Key: key, Value: []byte(value)})
}

func (h headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for _, hd := range h {
		keys = append(keys, hd.Key)
	}
	return keys
}

// injectTrace returns headers carrying the trace context of ctx.
func injectTrace(ctx context.Context) []segkafka.Header {
	h := headers{}
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

// consumeSpan continues the producer's trace for one consumed message.
func consumeSpan(ctx context.Context, m segkafka.Message) (context.Context, trace.Span) {
	h := headers(m.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, &h)
	return tracer.Start(ctx, "kafka.consume "+m.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", m.Topic),
			attribute.Int64("messaging.kafka.offset", m.Offset),
			attribute.String("messaging.kafka.message.key", string(m.Key)),
		),
	)
}
