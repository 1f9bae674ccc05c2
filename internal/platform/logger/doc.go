// Package logger configures slog-based structured logging and provides
// helpers for carrying a logger through a context.Context.
package logger
