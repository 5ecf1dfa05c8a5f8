// Package tracer wires OpenTelemetry tracing and offers the span helpers the
// router, agents, tools and adapters share.
package tracer

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"concierge-ai/internal/domain"
	"concierge-ai/internal/infra/config"
)

const instrumentationName = "concierge-ai"

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup installs the global tracer provider described by cfg. Disabled
// tracing and the noop exporter install a noop provider.
func Setup(ctx context.Context, cfg config.TracerConfig) (Shutdown, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	service := cfg.ServiceName
	if service == "" {
		service = instrumentationName
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", service)))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter returns nil when no spans should be exported. Spans go to
// stderr so they never mix with command output.
func newExporter(cfg config.TracerConfig) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "", "noop":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
}

// sampler follows the parent's decision and samples root spans by ratio.
func sampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.AlwaysSample()
	if ratio > 0 && ratio < 1 {
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// StartSpan starts name on the global provider, tagging it with the caller
// identity and request id found in ctx.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if attrs := requestAttrs(ctx); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

func requestAttrs(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id, ok := domain.IdentityFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("concierge.identity", id.String()))
	}
	if reqID := domain.RequestIDFromContext(ctx); reqID != "" {
		attrs = append(attrs, attribute.String("concierge.request_id", reqID))
	}
	return attrs
}

// RecordError marks span failed with err.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) { span.SetStatus(codes.Ok, "") }

func StringAttr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func BoolAttr(key string, value bool) attribute.KeyValue { return attribute.Bool(key, value) }

func IntAttr(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }
