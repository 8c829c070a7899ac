// Package logging provides structured logging for mqtt-cli.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - Text output for terminals, JSON output when piped into tooling
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (trace, debug, info, warn, error)
//   - Per-command thresholds via WithLevel (-d / -v flags)
//   - Context-scoped identifier tag (WithIdentifier)
//
// # Identifier scope
//
// Log lines produced while handling a specific client are tagged with that
// client. The tag lives in a context.Context rather than in shared state:
//
//	scoped := logging.WithIdentifier(ctx, "CLIENT dev1")
//	logger.InfoContext(scoped, "disconnected") // identifier="CLIENT dev1"
//	logger.InfoContext(ctx, "next command")    // caller's tag, unchanged
//
// Concurrent handlers each derive their own child context, so tags never
// leak between goroutines.
//
// # Security
//
// Never log passwords. Connect commands log the username only.
package logging
