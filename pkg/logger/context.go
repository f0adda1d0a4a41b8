package logger

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// Into returns ctx carrying l.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// With stores the context logger extended with fields, so request-scoped
// attributes such as trace_id and operator follow every log line below it.
func With(ctx context.Context, fields ...any) context.Context {
	return Into(ctx, From(ctx).With(fields...))
}

// From returns the logger on ctx, falling back to the process logger.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return LoggerWrapper()
}
