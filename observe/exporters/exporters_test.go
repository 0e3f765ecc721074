package exporters

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingExporter_InvalidName(t *testing.T) {
	_, err := NewTracingExporter(context.Background(), "invalid", nil)
	if err == nil {
		t.Fatal("expected error for invalid exporter name")
	}
	if !strings.Contains(err.Error(), "unknown exporter") {
		t.Errorf("expected error to contain 'unknown exporter', got: %v", err)
	}
}

func TestTracingExporter_StdoutWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewTracingExporter(context.Background(), "stdout", &buf)
	if err != nil {
		t.Fatalf("failed to create stdout tracing exporter: %v", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "http.client.GET")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if !strings.Contains(buf.String(), "http.client.GET") {
		t.Errorf("expected span in writer output, got %q", buf.String())
	}
}

func TestTracingExporter_OtlpMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	_, err := NewTracingExporter(context.Background(), "otlp", nil)
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("expected ErrEndpointNotConfigured, got: %v", err)
	}
}

func TestTracingExporter_OtlpWithEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")

	exp, err := NewTracingExporter(context.Background(), "otlp", nil)
	if err != nil {
		t.Fatalf("failed to create OTLP exporter with endpoint: %v", err)
	}
	if exp == nil {
		t.Fatal("expected non-nil exporter")
	}
	_ = exp.Shutdown(context.Background())
}

func TestTracingExporter_JaegerMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")

	_, err := NewTracingExporter(context.Background(), "jaeger", nil)
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("expected ErrEndpointNotConfigured, got: %v", err)
	}
}

func TestTracingExporter_NoneDiscards(t *testing.T) {
	exp, err := NewTracingExporter(context.Background(), "none", nil)
	if err != nil {
		t.Fatalf("failed to create none exporter: %v", err)
	}
	if err := exp.ExportSpans(context.Background(), tracetest.SpanStubs{{Name: "x"}}.Snapshots()); err != nil {
		t.Errorf("none exporter returned error: %v", err)
	}
}

func TestMetricsReader_Stdout(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "stdout", &bytes.Buffer{})
	if err != nil {
		t.Fatalf("failed to create stdout metrics reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

func TestMetricsReader_OtlpMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	_, err := NewMetricsReader(context.Background(), "otlp", nil)
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("expected ErrEndpointNotConfigured, got: %v", err)
	}
}

func TestMetricsReader_Prometheus(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "prometheus", nil)
	if err != nil {
		t.Fatalf("failed to create Prometheus reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

func TestMetricsReader_None(t *testing.T) {
	reader, err := NewMetricsReader(context.Background(), "none", nil)
	if err != nil {
		t.Fatalf("failed to create none metrics reader: %v", err)
	}
	if reader == nil {
		t.Fatal("expected non-nil reader")
	}
}

func TestMetricsReader_InvalidName(t *testing.T) {
	_, err := NewMetricsReader(context.Background(), "badvalue", nil)
	if err == nil {
		t.Fatal("expected error for invalid metrics exporter name")
	}
	if !strings.Contains(err.Error(), "unknown") {
		t.Errorf("expected error to contain 'unknown', got: %v", err)
	}
}
