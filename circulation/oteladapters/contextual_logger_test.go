package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
)

type emitted struct {
	ctx    context.Context
	record log.Record
}

type recordingLogger struct {
	embedded.Logger

	mu      sync.Mutex
	records []emitted
}

func (l *recordingLogger) Emit(ctx context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, emitted{ctx: ctx, record: record})
}

func (l *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func (l *recordingLogger) all() []emitted {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]emitted(nil), l.records...)
}

type recordingProvider struct {
	embedded.LoggerProvider

	logger *recordingLogger
}

func (p *recordingProvider) Logger(string, ...log.LoggerOption) log.Logger {
	return p.logger
}

func attributesOf(record log.Record) map[string]string {
	attrs := make(map[string]string)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})

	return attrs
}

func Test_OTelLogger_EmitsSeverityBodyAndAttributes(t *testing.T) {
	// setup
	logger := &recordingLogger{}
	otelLogger := oteladapters.NewOTelLogger(logger)

	// act
	otelLogger.InfoContext(context.Background(), "circulation operation: borrow", "book_id", "book-1", "available_copies", 2)
	otelLogger.ErrorContext(context.Background(), "inventory corruption detected", "shortfall", int64(1), "dangling")

	// assert
	records := logger.all()
	require.Len(t, records, 2)

	assert.Equal(t, log.SeverityInfo, records[0].record.Severity())
	assert.Equal(t, "circulation operation: borrow", records[0].record.Body().AsString())
	assert.Equal(t, map[string]string{"book_id": "book-1", "available_copies": "2"}, attributesOf(records[0].record))

	assert.Equal(t, log.SeverityError, records[1].record.Severity())
	assert.Equal(t, map[string]string{"shortfall": "1"}, attributesOf(records[1].record))
}

func Test_OTelLogger_AllLevels(t *testing.T) {
	// setup
	logger := &recordingLogger{}
	otelLogger := oteladapters.NewOTelLogger(logger)
	ctx := context.Background()

	// act
	otelLogger.DebugContext(ctx, "debug")
	otelLogger.InfoContext(ctx, "info")
	otelLogger.WarnContext(ctx, "warn")
	otelLogger.ErrorContext(ctx, "error")

	// assert
	records := logger.all()
	require.Len(t, records, 4)
	assert.Equal(t, log.SeverityDebug, records[0].record.Severity())
	assert.Equal(t, log.SeverityInfo, records[1].record.Severity())
	assert.Equal(t, log.SeverityWarn, records[2].record.Severity())
	assert.Equal(t, log.SeverityError, records[3].record.Severity())
}

func Test_SlogBridgeLogger_PassesSpanContext(t *testing.T) {
	// setup
	logger := &recordingLogger{}
	bridge := oteladapters.NewSlogBridgeLogger(
		"circulation",
		otelslog.WithLoggerProvider(&recordingProvider{logger: logger}),
	)
	tracer := sdktrace.NewTracerProvider().Tracer("test")

	// arrange
	ctx, span := tracer.Start(context.Background(), "circulation.borrow")
	defer span.End()

	// act
	bridge.InfoContext(ctx, "circulation operation: borrow", "book_id", "book-1")

	// assert
	records := logger.all()
	require.Len(t, records, 1)
	assert.Equal(t, "circulation operation: borrow", records[0].record.Body().AsString())
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(records[0].ctx).TraceID())
}

func Test_SlogBridgeLoggerWithHandler(t *testing.T) {
	// setup
	var buf bytes.Buffer
	bridge := oteladapters.NewSlogBridgeLoggerWithHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	// act
	bridge.WarnContext(context.Background(), "total copies reduced below lent copies", "shortfall", 1)

	// assert
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "shortfall=1")
}
