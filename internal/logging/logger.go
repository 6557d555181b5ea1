// Package logging defines the small structured-logging interface used by
// both binaries. The concrete implementation wraps log/slog; anything else
// with leveled, key-value logging would fit behind the same interface.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// alternating key-value pairs:
//
//	log.Info(ctx, "multipart init", "session_id", id, "upload_id", uploadID)
type Logger interface {
	// Debug logs fine-grained protocol detail (per-part signing, etc.).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs unusual but non-fatal conditions, such as an abort of an
	// already-gone multipart upload.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always carries the given pairs.
	With(args ...any) Logger
}
