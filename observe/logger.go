package observe

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents a logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel parses a string log level.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// structuredLogger is a JSON structured logger implementation.
type structuredLogger struct {
	level     LogLevel
	out       *lockedWriter
	baseAttrs map[string]any
}

// lockedWriter serializes writes from a logger and everything derived from it.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLogger creates a new structured logger writing to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return &structuredLogger{
		level:     ParseLogLevel(level),
		out:       &lockedWriter{w: w},
		baseAttrs: make(map[string]any),
	}
}

// With returns a logger carrying fields on every entry. Sensitive keys are
// redacted here as well, so a scoped logger cannot leak a secret.
func (l *structuredLogger) With(fields ...Field) Logger {
	attrs := maps.Clone(l.baseAttrs)
	for _, f := range fields {
		attrs[f.Key] = redact(f)
	}

	return &structuredLogger{
		level:     l.level,
		out:       l.out,
		baseAttrs: attrs,
	}
}

func (l *structuredLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, fields)
}

func (l *structuredLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, fields)
}

func (l *structuredLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *structuredLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, fields)
}

func (l *structuredLogger) log(_ context.Context, level LogLevel, msg string, fields []Field) {
	if level < l.level {
		return
	}

	entry := make(map[string]any, len(l.baseAttrs)+len(fields)+3)
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	maps.Copy(entry, l.baseAttrs)
	for _, f := range fields {
		entry[f.Key] = redact(f)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return // Silently drop malformed log entries
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	_, _ = l.out.w.Write(append(data, '\n'))
}

// Redactor is implemented by values that carry secrets. The logger writes
// the result of Redacted in place of the value itself.
type Redactor interface {
	Redacted() any
}

func redact(f Field) any {
	if isRedactedField(f.Key) {
		return "[REDACTED]"
	}
	switch v := f.Value.(type) {
	case Redactor:
		return v.Redacted()
	case error:
		return v.Error()
	}
	return f.Value
}

// isRedactedField returns true if the field should be redacted. Keys are
// matched case-insensitively with '-' and '.' treated as '_'.
func isRedactedField(key string) bool {
	k := strings.ToLower(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	_, ok := redactedKeys[k]
	return ok
}

var redactedKeys = func() map[string]struct{} {
	m := make(map[string]struct{}, len(RedactedFields))
	for _, k := range RedactedFields {
		m[strings.ToLower(k)] = struct{}{}
	}
	return m
}()

var _ Logger = (*structuredLogger)(nil)
