package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig holds configuration for tracing.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Tracing provides OpenTelemetry tracing for routing operations.
type Tracing struct {
	config TracingConfig
	logger *zap.Logger
	tracer trace.Tracer
}

// NewTracing creates a new tracing instance. Without an exporter configured
// the global provider falls back to no-op spans.
func NewTracing(config TracingConfig, logger *zap.Logger) *Tracing {
	if config.ServiceName == "" {
		config.ServiceName = "mindroute"
	}
	return &Tracing{
		config: config,
		logger: logger,
		tracer: otel.Tracer(config.ServiceName),
	}
}

// StartSpan starts a new span for the given operation.
func (t *Tracing) StartSpan(ctx context.Context, operationName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, operationName, opts...)
}

// StartRouteSpan starts a span for one routing attempt, annotated with the
// request and backend identity.
func (t *Tracing) StartRouteSpan(ctx context.Context, requestID, backend string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("backend", backend),
		))
}

// AddEvent adds an event to the current span.
func (t *Tracing) AddEvent(ctx context.Context, name string, attributes map[string]string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(stringAttrs(attributes)...))
}

// RecordError records an error on the current span.
func (t *Tracing) RecordError(ctx context.Context, err error, attributes map[string]string) {
	span := trace.SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(stringAttrs(attributes)...))
}

// IsEnabled returns true if tracing is enabled.
func (t *Tracing) IsEnabled() bool {
	return t.config.Enabled
}

// TraceFunction traces the execution of a function.
func (t *Tracing) TraceFunction(ctx context.Context, functionName string, fn func(context.Context) error) error {
	if !t.IsEnabled() {
		return fn(ctx)
	}

	ctx, span := t.StartSpan(ctx, functionName)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(
		attribute.String("function.name", functionName),
		attribute.Int64("function.duration_ms", time.Since(start).Milliseconds()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func stringAttrs(attributes map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
