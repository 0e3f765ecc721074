package observe

import (
	"context"
	"time"
)

// CallFunc is one logical API call as seen by telemetry: it performs the call
// (all attempts) and reports the final status and attempt count.
type CallFunc func(ctx context.Context, meta RequestMeta) (Result, error)

// Middleware wraps API calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe CallFunc.
//   - Context: the span context is passed to the wrapped call, so transport
//     instrumentation nests under it.
//   - Errors: errors from the wrapped call are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability
// components. Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps a CallFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn CallFunc) CallFunc {
	return func(ctx context.Context, meta RequestMeta) (Result, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		res, err := fn(ctx, meta)

		duration := time.Since(start)
		m.tracer.EndSpan(span, res, err)
		m.metrics.RecordRequest(ctx, meta, res, duration, err)

		fields := []Field{
			{Key: "method", Value: meta.Method},
			{Key: "path", Value: meta.Path},
			{Key: "status", Value: res.Status},
			{Key: "attempts", Value: res.Attempts},
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Warn(ctx, "api call failed", fields...)
		} else {
			m.logger.Debug(ctx, "api call completed", fields...)
		}

		return res, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
