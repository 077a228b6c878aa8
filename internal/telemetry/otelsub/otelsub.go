// Package otelsub subscribes the telemetry bus to an OpenTelemetry tracer,
// adapted from the teacher's internal/otel package: one span per
// RootQueryStart/Finish pair and one per InterpreterBatchStart/Finish pair,
// each keyed by request id (for batches, the most recent batch of the
// request). Batch spans are started from the event's context, not under the
// root span. CompletionStage events are not traced.
package otelsub

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/hanpama/compositegraph/internal/reqid"
	"github.com/hanpama/compositegraph/internal/telemetry"
)

// Setup configures OpenTelemetry and attaches telemetry bus subscribers. If
// endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("compositegraph")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer     trace.Tracer
	rootSpans  sync.Map // rid -> trace.Span
	batchSpans sync.Map // rid -> trace.Span (most recent batch)
}

func (s *subscriber) register() {
	telemetry.Subscribe(func(ctx context.Context, e telemetry.RootQueryStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "root_query")
		span.SetAttributes(attribute.String("graphql.operation_name", e.OperationName))
		s.rootSpans.Store(rid, span)
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.RootQueryFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.rootSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.error_count", e.ErrorCount),
			attribute.Int64("graphql.duration_ms", e.Duration.Milliseconds()),
		)
		span.End()
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.InterpreterBatchStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "interpreter_batch")
		span.SetAttributes(
			attribute.String("compositegraph.interpreter", e.Interpreter),
			attribute.Int("compositegraph.batch_size", e.BatchSize),
		)
		s.batchSpans.Store(rid, span)
	})

	telemetry.Subscribe(func(ctx context.Context, e telemetry.InterpreterBatchFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.batchSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("compositegraph.error_count", e.ErrorCount))
		span.End()
	})
}
