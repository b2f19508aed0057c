package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	zapFieldTraceID = "trace_id"
	zapFieldSpanID  = "span_id"
)

// ZapLogger adapts a zap logger to the slog-style key/value calls of the circulation packages.
// The context variants add trace_id and span_id when the context carries a valid span.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// Debug logs a message at debug level with key/value pairs.
func (l *ZapLogger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info logs a message at info level with key/value pairs.
func (l *ZapLogger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn logs a message at warn level with key/value pairs.
func (l *ZapLogger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error logs a message at error level with key/value pairs.
func (l *ZapLogger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}

// DebugContext logs a message at debug level with the trace and span id of ctx.
func (l *ZapLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Debugw(msg, withTrace(ctx, args)...)
}

// InfoContext logs a message at info level with the trace and span id of ctx.
func (l *ZapLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Infow(msg, withTrace(ctx, args)...)
}

// WarnContext logs a message at warn level with the trace and span id of ctx.
func (l *ZapLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Warnw(msg, withTrace(ctx, args)...)
}

// ErrorContext logs a message at error level with the trace and span id of ctx.
func (l *ZapLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.sugar.Errorw(msg, withTrace(ctx, args)...)
}

func withTrace(ctx context.Context, args []any) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return args
	}

	return append(args[:len(args):len(args)], zapFieldTraceID, spanCtx.TraceID().String(), zapFieldSpanID, spanCtx.SpanID().String())
}

var _ Logger = (*ZapLogger)(nil)
