package vkteams

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/vkbot/core/vkteams/deps"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

// Context travels with one event through middlewares and the matched handler.
// The event itself is immutable; middlewares annotate Values or swap the event with SetEvent.
type Context struct {
	Bot *Bot
	// Deps holds the dependencies resolved for the running handler. It is nil in middlewares.
	Deps *deps.Set

	mu       sync.RWMutex
	event    events.Event
	values   map[string]any
	received time.Time

	sent     atomic.Int32
	keyboard atomic.Bool
}

// NewContext wraps ev for dispatch. bot may be nil in tests.
func NewContext(bot *Bot, ev events.Event) *Context {
	return &Context{Bot: bot, event: ev, values: make(map[string]any), received: time.Now()}
}

// Event returns the current event.
func (c *Context) Event() events.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.event
}

// SetEvent replaces the event seen by later middlewares and handler filters. Nil is ignored.
func (c *Context) SetEvent(ev events.Event) {
	if ev == nil {
		return
	}
	c.mu.Lock()
	c.event = ev
	c.mu.Unlock()
}

// Set stores a middleware annotation.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Get returns an annotation.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Values returns a copy of all annotations.
func (c *Context) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}

// Received is when the event entered dispatch.
func (c *Context) Received() time.Time { return c.received }

// ChatID is the chat of the current event.
func (c *Context) ChatID() string { return c.Event().Chat().ChatID }

// UserKey is the state store key of the current event's sender.
func (c *Context) UserKey() string { return events.UserKey(c.Event()) }

// Text is the message text, or the text of the message under a button press.
func (c *Context) Text() string { return events.Text(c.Event()) }

// Value returns the annotation key typed as T.
func Value[T any](c *Context, key string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Reply sends text to the chat of the current event.
func (c *Context) Reply(ctx context.Context, text string, opts ...SendOption) (string, error) {
	id, err := c.Bot.SendText(ctx, c.ChatID(), text, opts...)
	if err == nil {
		c.countSent(opts)
	}
	return id, err
}

// Sent reports how many replies went out for this event and whether any carried a keyboard.
func (c *Context) Sent() (messages int, keyboard bool) {
	return int(c.sent.Load()), c.keyboard.Load()
}

func (c *Context) countSent(opts []SendOption) {
	c.sent.Add(1)
	if _, ok := applyOptions(transport.Params{}, opts)["inlineKeyboardMarkup"]; ok {
		c.keyboard.Store(true)
	}
}

// Answer acknowledges the current button press. It is a no-op for other events.
func (c *Context) Answer(ctx context.Context, text string, showAlert bool) error {
	cb, ok := c.Event().(*events.Callback)
	if !ok {
		return nil
	}
	return c.Bot.AnswerCallbackQuery(ctx, cb.QueryID, text, showAlert, "")
}
