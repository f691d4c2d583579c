// Package logging wraps log/slog with the attribute helpers, standardized
// field keys, and context-derived fields used across taskscribe. Loggers
// are built from config (console or JSON, stdout plus a log file) and
// enriched per stage invocation via WithContext.
package logging
