package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects where spans go.
type TracingConfig struct {
	Service string
	Version string
	// Endpoint is the OTLP/HTTP collector, host:port. Empty disables export.
	Endpoint string
	// SampleRatio in (0,1) samples root spans; anything else samples all.
	SampleRatio float64
}

// InitTracer installs the global propagator and, when an endpoint is set, a
// batching OTLP tracer provider. The propagator is installed either way so
// trace context still crosses Kafka headers and upstream HTTP calls.
//
// The returned shutdown flushes pending spans and must run on exit.
func InitTracer(ctx context.Context, cfg TracingConfig) (shutdown func(), err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		return func() {}, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(serviceResource(ctx, cfg)),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func serviceResource(ctx context.Context, cfg TracingConfig) *resource.Resource {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.Service)),
		resource.WithProcess(),
		resource.WithOS(),
	}
	if cfg.Version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.Version)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil || res == nil {
		return resource.Default()
	}
	return res
}

// Sampler honours the parent's decision and samples new roots at ratio.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("lvl.ai/" + name)
}
