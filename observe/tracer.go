package observe

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// RequestMeta describes one outgoing API call for telemetry purposes.
type RequestMeta struct {
	Method string // HTTP verb
	Path   string // request path relative to the base URL, without query
	Host   string // backend host (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: http.client.<METHOD>
func (m RequestMeta) SpanName() string {
	return "http.client." + strings.ToUpper(m.Method)
}

func (m RequestMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", strings.ToUpper(m.Method)),
		attribute.String("url.path", m.Path),
	}
	if m.Host != "" {
		attrs = append(attrs, attribute.String("server.address", m.Host))
	}
	return attrs
}

// Result is what the wrapped call reports back to telemetry.
type Result struct {
	// Status is the final HTTP status; 0 when no response was obtained.
	Status int
	// Attempts is the number of network attempts made, retries included.
	Attempts int
}

// Tracer wraps OpenTelemetry tracing with request span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a client span for an outgoing call.
	StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the result and any error.
	EndSpan(span trace.Span, res Result, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, res Result, err error) {
	span.SetAttributes(attribute.Int("http.request.attempts", res.Attempts))
	if res.Status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", res.Status))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta RequestMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ Result, _ error) {
	span.End()
}
