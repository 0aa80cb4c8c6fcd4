// Package logging provides structured logging for liftgate.
//
// It wraps the standard library's log/slog with configuration-driven handler
// selection (JSON or text), level filtering, and default service/version
// attributes. Components receive a *Logger at construction and derive scoped
// loggers with With("component", ...).
package logging
