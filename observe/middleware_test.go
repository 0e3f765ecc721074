package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	tracer, rec := newRecordedTracer()
	reader, mp := newManualMeter(t)
	metrics, _ := NewMetrics(mp.Meter("test"))

	mw := NewMiddleware(tracer, metrics, NopLogger())

	var innerSpan trace.SpanContext
	wrapped := mw.Wrap(func(ctx context.Context, meta RequestMeta) (Result, error) {
		innerSpan = trace.SpanContextFromContext(ctx)
		return Result{Status: 201, Attempts: 3}, nil
	})

	res, err := wrapped(context.Background(), RequestMeta{Method: "POST", Path: "/items"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if res.Status != 201 || res.Attempts != 3 {
		t.Errorf("result = %+v, want status 201 attempts 3", res)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "http.client.POST" {
		t.Errorf("span name = %q, want http.client.POST", spans[0].Name())
	}
	if innerSpan.SpanID() != spans[0].SpanContext().SpanID() {
		t.Error("wrapped call did not receive the span context")
	}

	rm := collect(t, reader)
	if got := sumValue(t, findMetric(rm, "apisession.request.total")); got != 1 {
		t.Errorf("total = %d, want 1", got)
	}
}

func TestMiddleware_ErrorPropagatedUnchanged(t *testing.T) {
	var buf bytes.Buffer
	mw := NewMiddleware(nil, nil, NewLoggerWithWriter("debug", &buf))

	sentinel := errors.New("server error")
	wrapped := mw.Wrap(func(ctx context.Context, meta RequestMeta) (Result, error) {
		return Result{Status: 500, Attempts: 2}, sentinel
	})

	_, err := wrapped(context.Background(), RequestMeta{Method: "GET", Path: "/items"})
	if err != sentinel {
		t.Errorf("error = %v, want sentinel", err)
	}
	out := buf.String()
	if !strings.Contains(out, "api call failed") || !strings.Contains(out, `"status":500`) {
		t.Errorf("expected failure log with status, got %q", out)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "svc"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	res, err := mw.Wrap(func(ctx context.Context, meta RequestMeta) (Result, error) {
		return Result{Status: 200, Attempts: 1}, nil
	})(context.Background(), RequestMeta{Method: "GET"})
	if err != nil || res.Status != 200 {
		t.Errorf("res = %+v, err = %v", res, err)
	}
}
