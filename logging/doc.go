// Package logging builds the process logger of the circulation CLI.
//
// Three formats are supported: "tint" for colored console output, "json" for slog JSON lines,
// and "zap" for zap's production JSON encoder behind an adapter. All of them satisfy both
// circulation.Logger and circulation.ContextualLogger.
package logging
