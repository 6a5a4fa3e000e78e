package logger

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

type contextKey int

const (
	ctxLogger contextKey = iota
	ctxEventID
	ctxUserID
	ctxChatID
	ctxHandler
	ctxTraceID
)

// WithLogger stores l in ctx so downstream helpers log through it.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, l)
}

// FromContext returns the logger stored in ctx, falling back to Base.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

// WithEventMeta attaches the identifiers of the event being dispatched.
// Empty ids are skipped.
func WithEventMeta(ctx context.Context, eventID int64, userID, chatID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxEventID, eventID)
	if userID != "" {
		ctx = context.WithValue(ctx, ctxUserID, userID)
	}
	if chatID != "" {
		ctx = context.WithValue(ctx, ctxChatID, chatID)
	}
	return ctx
}

// WithHandler records the name of the handler serving the event.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// WithTrace attaches a per-dispatch trace id.
func WithTrace(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxTraceID, traceID)
}

// EventIDFrom returns the event id stored by WithEventMeta.
func EventIDFrom(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(ctxEventID).(int64)
	return id, ok
}

// UserIDFrom returns the user id stored by WithEventMeta.
func UserIDFrom(ctx context.Context) string { return stringValue(ctx, ctxUserID) }

// ChatIDFrom returns the chat id stored by WithEventMeta.
func ChatIDFrom(ctx context.Context) string { return stringValue(ctx, ctxChatID) }

// HandlerFrom returns the handler name stored by WithHandler.
func HandlerFrom(ctx context.Context) string { return stringValue(ctx, ctxHandler) }

// TraceIDFrom returns the trace id stored by WithTrace.
func TraceIDFrom(ctx context.Context) string { return stringValue(ctx, ctxTraceID) }

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and truncates to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}
