package vision

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with recognition-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCall adds a recognition call ID to the logger.
func (l *Logger) WithCall(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("call", id),
	}
}

// WithProduct adds a product ID field to the logger.
func (l *Logger) WithProduct(productID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("product_id", productID),
	}
}

// WithBucket adds a locality bucket field to the logger.
func (l *Logger) WithBucket(bucket int) *Logger {
	return &Logger{
		Logger: l.Logger.With("bucket", bucket),
	}
}

// LogRecognize logs a recognition call.
func (l *Logger) LogRecognize(ctx context.Context, res *RecognitionResult, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recognize failed",
			"kind", KindOf(err).String(),
			"duration", duration,
			"error", err,
		)
		return
	}

	attrs := []any{
		"verdict", res.Verdict.String(),
		"confidence", res.Confidence,
		"candidates", len(res.Candidates),
		"source", res.Source.String(),
		"duration", duration,
	}
	if len(res.Candidates) > 0 {
		attrs = append(attrs, "product_id", res.Candidates[0].Match.ProductID)
	}
	l.DebugContext(ctx, "recognize completed", attrs...)
}

// LogRegister logs a registration.
func (l *Logger) LogRegister(ctx context.Context, productID string, checksum uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "register failed",
			"product_id", productID,
			"checksum", checksum,
			"kind", KindOf(err).String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "product registered",
			"product_id", productID,
			"checksum", checksum,
		)
	}
}

// LogFullScan logs a full token store scan.
func (l *Logger) LogFullScan(ctx context.Context, scanned, admitted int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "full scan failed",
			"scanned", scanned,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "full scan completed",
			"scanned", scanned,
			"admitted", admitted,
			"duration", duration,
		)
	}
}

// LogBucketRead logs a read-through of incomplete index buckets.
func (l *Logger) LogBucketRead(ctx context.Context, buckets, read, complete int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "bucket read failed",
			"buckets", buckets,
			"read", read,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "bucket read completed",
			"buckets", buckets,
			"read", read,
			"complete", complete,
			"duration", duration,
		)
	}
}

// LogWarm logs an index warm-up.
func (l *Logger) LogWarm(ctx context.Context, loaded int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index warm-up failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index warmed",
			"loaded", loaded,
		)
	}
}

// LogState logs a state machine transition.
func (l *Logger) LogState(ctx context.Context, from, to State) {
	l.DebugContext(ctx, "state",
		"from", from.String(),
		"to", to.String(),
	)
}
