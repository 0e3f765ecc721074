package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records per-request client metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records one logical call (all of its attempts).
	RecordRequest(ctx context.Context, meta RequestMeta, res Result, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	retryCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates request metrics on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"apisession.request.total",
		metric.WithDescription("Total number of API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"apisession.request.errors",
		metric.WithDescription("Total number of API calls that ended in a fault"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"apisession.request.retries",
		metric.WithDescription("Total number of repeated attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"apisession.request.duration_ms",
		metric.WithDescription("API call duration in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		retryCount:   retryCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordRequest(ctx context.Context, meta RequestMeta, res Result, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", meta.Method),
		attribute.String("http.response.status_class", statusClass(res.Status)),
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	if res.Attempts > 1 {
		m.retryCount.Add(ctx, int64(res.Attempts-1), opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// statusClass buckets a status into "2xx".."5xx", or "none" when no response
// was obtained. Raw status codes would blow up attribute cardinality.
func statusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

// SessionMetrics records session lifecycle operations.
type SessionMetrics interface {
	// RecordSession records one lifecycle operation (login, logout,
	// refresh, rehydrate) and whether it succeeded.
	RecordSession(ctx context.Context, op string, err error)
}

type sessionMetricsImpl struct {
	ops metric.Int64Counter
}

// NewSessionMetrics creates session lifecycle metrics on the given meter.
func NewSessionMetrics(meter metric.Meter) (SessionMetrics, error) {
	ops, err := meter.Int64Counter(
		"apisession.session.operations",
		metric.WithDescription("Session lifecycle operations by result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	return &sessionMetricsImpl{ops: ops}, nil
}

func (m *sessionMetricsImpl) RecordSession(ctx context.Context, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("session.operation", op),
		attribute.String("session.result", result),
	))
}

// NopSessionMetrics returns SessionMetrics that records nothing.
func NopSessionMetrics() SessionMetrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(context.Context, RequestMeta, Result, time.Duration, error) {}
func (noopMetrics) RecordSession(context.Context, string, error)                            {}
