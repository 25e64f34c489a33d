// Package logging configures the process-wide structured logger.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the global structured logger instance used throughout the application.
var Logger *slog.Logger

type contextKey string

const (
	// CorrelationIDKey carries the per-update correlation id.
	CorrelationIDKey contextKey = "correlation_id"
	// UpdateIDKey carries the platform update id being dispatched.
	UpdateIDKey contextKey = "update_id"
	// ChatIDKey carries the chat the update belongs to.
	ChatIDKey contextKey = "chat_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	if uid, ok := ctx.Value(UpdateIDKey).(int64); ok {
		r.AddAttrs(slog.Int64("update_id", uid))
	}
	if chat, ok := ctx.Value(ChatIDKey).(int64); ok {
		r.AddAttrs(slog.Int64("chat_id", chat))
	}
	return h.Handler.Handle(ctx, r)
}

func init() {
	// Structured logger based on environment: JSON in production,
	// readable text locally.
	var handler slog.Handler
	level := slog.LevelInfo

	if os.Getenv("APP_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	Logger = slog.New(&ctxHandler{handler})
}

// WithCorrelationID returns a context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithUpdate returns a context carrying the update and chat identifiers so
// deep service layers log them without threading arguments through.
func WithUpdate(ctx context.Context, updateID, chatID int64) context.Context {
	ctx = context.WithValue(ctx, UpdateIDKey, updateID)
	return context.WithValue(ctx, ChatIDKey, chatID)
}
