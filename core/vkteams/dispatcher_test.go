package vkteams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/vkteams/deps"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/filter"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

func message(t *testing.T, text, chatID string) events.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"msgId": "1",
		"text":  text,
		"chat":  map[string]string{"chatId": chatID, "type": "private"},
		"from":  map[string]string{"userId": chatID},
	})
	require.NoError(t, err)
	ev, err := events.DecodeEnvelope(events.Envelope{EventID: 1, Type: "newMessage", Payload: payload})
	require.NoError(t, err)
	return ev
}

func press(t *testing.T, data string) events.Event {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"queryId":      "q-1",
		"callbackData": data,
		"from":         map[string]string{"userId": "u1"},
		"message":      map[string]any{"chat": map[string]string{"chatId": "u1", "type": "private"}},
	})
	require.NoError(t, err)
	ev, err := events.DecodeEnvelope(events.Envelope{EventID: 2, Type: "callbackQuery", Payload: payload})
	require.NoError(t, err)
	return ev
}

func TestDispatchRunsAtMostOneHandler(t *testing.T) {
	d := NewDispatcher(nil)
	var order []string
	record := func(name string) HandlerFunc {
		return func(context.Context, *Context) error {
			order = append(order, name)
			return nil
		}
	}
	require.NoError(t, d.Handle(MessageHandler("digits", filter.Regexp(`^\d+$`), record("digits"))))
	require.NoError(t, d.Handle(MessageHandler("any", nil, record("any"))))
	require.NoError(t, d.Handle(MessageHandler("never", nil, record("never"))))

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "42", "c"))))
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "hi", "c"))))
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, press(t, "x"))))
	assert.Equal(t, []string{"digits", "any"}, order)
}

func TestHandleValidates(t *testing.T) {
	d := NewDispatcher(nil)
	assert.Error(t, d.Handle(Handler{Name: "nil-callback", Filter: filter.Any()}))
	require.NoError(t, d.Handle(Handler{Filter: filter.Any(), Callback: func(context.Context, *Context) error { return nil }}))
	assert.Equal(t, 1, d.Len())
}

func TestHandlerWithoutFilterMatchesEverything(t *testing.T) {
	d := NewDispatcher(nil)
	var seen []events.Kind
	require.NoError(t, d.Handle(Handler{Name: "catch_all", Callback: func(_ context.Context, c *Context) error {
		seen = append(seen, c.Event().Kind())
		return nil
	}}))
	require.NoError(t, d.Handle(MessageHandler("never", nil, func(context.Context, *Context) error {
		t.Fatal("catch_all registered first must win")
		return nil
	})))

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "hi", "c"))))
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, press(t, "x"))))
	assert.Equal(t, []events.Kind{events.NewMessage, events.CallbackQuery}, seen)

	fallback := NewDispatcher(nil)
	var fell bool
	require.NoError(t, fallback.NotFound(Handler{Callback: func(context.Context, *Context) error {
		fell = true
		return nil
	}}))
	require.NoError(t, fallback.Dispatch(ctx, NewContext(nil, press(t, "x"))))
	assert.True(t, fell)
}

func TestCommandHandlerWithoutNameMatchesAnyCommand(t *testing.T) {
	d := NewDispatcher(nil)
	var got []string
	require.NoError(t, d.Handle(CommandHandler("", func(_ context.Context, c *Context) error {
		got = append(got, c.Text())
		return nil
	})))

	ctx := context.Background()
	for _, text := range []string{"/start", "/help me", "plain", "/"} {
		require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, text, "c"))))
	}
	assert.Equal(t, []string{"/start", "/help me", "/"}, got)
}

func TestMiddlewareRejectAndAnnotate(t *testing.T) {
	d := NewDispatcher(nil)
	var seen []string
	d.Use(
		Named{Name: "tag", Middleware: MiddlewareFunc(func(_ context.Context, c *Context) error {
			c.Set("role", "guest")
			return nil
		})},
		MiddlewareFunc(func(_ context.Context, c *Context) error {
			if c.Text() == "blocked" {
				return fmt.Errorf("chat %s: %w", c.ChatID(), ErrRejected)
			}
			return nil
		}),
	)
	require.NoError(t, d.Handle(MessageHandler("all", nil, func(_ context.Context, c *Context) error {
		role, _ := Value[string](c, "role")
		seen = append(seen, c.Text()+":"+role)
		return nil
	})))

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "blocked", "c"))))
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "ok", "c"))))
	assert.Equal(t, []string{"ok:guest"}, seen)
}

func TestMiddlewareErrorAbortsDispatch(t *testing.T) {
	d := NewDispatcher(nil)
	boom := errors.New("boom")
	d.Use(Named{Name: "broken", Middleware: MiddlewareFunc(func(context.Context, *Context) error { return boom })})
	var called bool
	require.NoError(t, d.Handle(MessageHandler("all", nil, func(context.Context, *Context) error {
		called = true
		return nil
	})))

	err := d.Dispatch(context.Background(), NewContext(nil, message(t, "x", "c")))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.False(t, called)
}

func TestMiddlewareCanReplaceEvent(t *testing.T) {
	d := NewDispatcher(nil)
	replacement := message(t, "/start", "c")
	d.Use(MiddlewareFunc(func(_ context.Context, c *Context) error {
		c.SetEvent(replacement)
		c.SetEvent(nil)
		return nil
	}))
	var got string
	require.NoError(t, d.Handle(CommandHandler("start", func(_ context.Context, c *Context) error {
		got = c.Text()
		return nil
	})))
	require.NoError(t, d.Dispatch(context.Background(), NewContext(nil, message(t, "menu", "c"))))
	assert.Equal(t, "/start", got)
}

func TestScopedDepsReleasedOnEveryPath(t *testing.T) {
	reg := deps.NewRegistry()
	var acquired, released atomic.Int32
	require.NoError(t, reg.Register("conn", deps.Scoped(
		func(context.Context) (string, error) {
			acquired.Add(1)
			return "conn-1", nil
		},
		func(context.Context, string) error {
			released.Add(1)
			return nil
		},
	)))
	require.NoError(t, reg.Register("cfg", deps.Value(7)))

	d := NewDispatcher(reg)
	handlerErr := errors.New("handler failed")
	require.NoError(t, d.Handle(MessageHandler("use", nil, func(_ context.Context, c *Context) error {
		conn, ok := deps.Get[string](c.Deps, "conn")
		require.True(t, ok)
		assert.Equal(t, "conn-1", conn)
		n, _ := deps.Get[int](c.Deps, "cfg")
		assert.Equal(t, 7, n)
		_, ok = c.Deps.Lookup("unknown")
		assert.False(t, ok)
		if c.Text() == "fail" {
			return handlerErr
		}
		if c.Text() == "panic" {
			panic("handler panic")
		}
		return nil
	}, "conn", "cfg", "unknown")))

	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, NewContext(nil, message(t, "ok", "c"))))
	require.ErrorIs(t, d.Dispatch(ctx, NewContext(nil, message(t, "fail", "c"))), handlerErr)

	g := newTaskGroup(0)
	g.Go(ctx, "panic", func(ctx context.Context) error {
		return d.Dispatch(ctx, NewContext(nil, message(t, "panic", "c")))
	})
	g.Wait()

	assert.Equal(t, int32(3), acquired.Load())
	assert.Equal(t, int32(3), released.Load())
}

func TestProviderFailureSkipsHandler(t *testing.T) {
	reg := deps.NewRegistry()
	dbErr := errors.New("db down")
	require.NoError(t, reg.Register("db", deps.Async(func(context.Context) (int, error) { return 0, dbErr })))
	d := NewDispatcher(reg)
	var called bool
	require.NoError(t, d.Handle(MessageHandler("db", nil, func(context.Context, *Context) error {
		called = true
		return nil
	}, "db")))

	err := d.Dispatch(context.Background(), NewContext(nil, message(t, "x", "c")))
	require.ErrorIs(t, err, dbErr)
	assert.False(t, called)
}

func TestTaskGroupBoundsConcurrency(t *testing.T) {
	g := newTaskGroup(2)
	var running, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		g.Go(context.Background(), "work", func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		})
	}
	close(release)
	g.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "PANIC", deriveErrorCode(fmt.Errorf("wrap: %w", &PanicError{Value: 1})))
	assert.Equal(t, "REJECTED", deriveErrorCode(ErrRejected))
	assert.Equal(t, "SERVERERROR", deriveErrorCode(&transport.ServerError{Endpoint: "x", Status: 502}))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Equal(t, "TIMEOUT_ERROR", deriveErrorCode(context.DeadlineExceeded))
}
