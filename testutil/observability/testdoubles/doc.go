// Package testdoubles provides test doubles (spies) for the observability and notification
// interfaces of the circulation core:
//   - LogHandlerSpy: a slog.Handler capturing records and their attributes
//   - ContextualLoggerSpy: captures context-aware logging calls
//   - MetricsCollectorSpy: captures metrics recording calls
//   - TracingCollectorSpy: captures spans with their start and finish attributes
//   - NotifierSpy: captures emitted circulation events, optionally failing
package testdoubles
