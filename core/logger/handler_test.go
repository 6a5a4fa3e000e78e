package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(buf *bytes.Buffer, format logFormat) (*structuredHandler, *asyncWriter) {
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	return newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: format,
	}), aw
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatKV)

	ctx := WithEventMeta(context.Background(), 42, "alice@corp.example", "chat-9")
	ctx = WithTrace(ctx, "tr-1")
	log := slog.New(h).With("component", "vk.dispatch")
	LogEvent(ctx, log, slog.LevelInfo, "dispatch.done", slog.String("status", "ok"))
	require.NoError(t, aw.Close())

	tokens := strings.Fields(strings.TrimSpace(buf.String()))
	want := []string{"ts=", "level=INFO", "component=vk.dispatch", "event=dispatch.done", "status=ok",
		"trace_id=tr-1", "event_id=42", "user_id=alice@corp.example", "chat_id=chat-9"}
	require.GreaterOrEqual(t, len(tokens), len(want))
	for i, prefix := range want {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, aw := newTestHandler(buf, formatJSON)

	log := slog.New(h).With("component", "vk.transport")
	LogEvent(context.Background(), log, slog.LevelError, "request.failed",
		slog.String("status", "error"),
		slog.String("endpoint", "events/get"),
		slog.Any("err", errors.New("boom")),
	)
	require.NoError(t, aw.Close())

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "{"), line)
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"vk.transport"`,
		`"event":"request.failed"`, `"status":"fail"`, `"endpoint":"events/get"`, `"err":"boom"`} {
		idx := strings.Index(line, pref)
		require.Greaterf(t, idx, pos, "%s out of order in %s", pref, line)
		pos = idx
	}
}

func TestStructuredHandlerDurationsAndEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, slog.LevelDebug, false)

	log.LogAttrs(context.Background(), slog.LevelDebug, "",
		slog.String("event", "poll.empty"),
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("delay", 2*time.Second),
		slog.String("note", ""),
		Err(nil),
	)
	line := buf.String()
	assert.Contains(t, line, "duration_ms=2")
	assert.Contains(t, line, "delay_ms=2000")
	assert.Contains(t, line, "component=app")
	assert.NotContains(t, line, "note=")
	assert.NotContains(t, line, "err=")
}

func TestStructuredHandlerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(buf, slog.LevelWarn, true)
	log.Info("ignored")
	log.Warn("kept")
	assert.NotContains(t, buf.String(), "ignored")
	assert.Contains(t, buf.String(), `"event":"kept"`)
}

func TestComponentHelpersUseContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithLogger(context.Background(), New(buf, slog.LevelInfo, false))
	ctx = WithHandler(ctx, "start")

	Info(ctx, "vk", "handler.matched", slog.Int("count", 1))
	Debug(ctx, "vk", "hidden")

	line := buf.String()
	assert.Contains(t, line, "component=vk")
	assert.Contains(t, line, "handler=start")
	assert.NotContains(t, line, "hidden")
}

func TestHelpersWithoutLoggerAreNoop(t *testing.T) {
	SetBase(nil)
	assert.NotPanics(t, func() {
		Error(context.Background(), "vk", "nothing.configured")
	})
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	num, den := parseRatioSpec("2/5")
	assert.Equal(t, [2]int{2, 5}, [2]int{num, den})
	num, den = parseRatioSpec("10")
	assert.Equal(t, [2]int{1, 10}, [2]int{num, den})
	num, den = parseRatioSpec("x")
	assert.Equal(t, [2]int{0, 0}, [2]int{num, den})
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", Sanitize("a\x00b\tc​"))
	assert.Equal(t, "пр", SanitizeLimit("привет", 2))
	assert.Equal(t, "", SanitizeLimit("x", 0))
}
