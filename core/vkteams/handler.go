package vkteams

import (
	"context"
	"errors"
	"strings"

	"github.com/m3rciful/vkbot/core/vkteams/deps"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/filter"
)

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, c *Context) error

// Handler is one entry of the dispatch table. Filter decides whether the handler takes an event,
// a nil Filter takes every event. Deps are resolved fresh for every invocation.
type Handler struct {
	Name     string
	Filter   filter.Filter
	Callback HandlerFunc
	Deps     []deps.Key
}

func (h Handler) validate() error {
	if h.Callback == nil {
		return errors.New("vkteams: handler callback is nil")
	}
	return nil
}

func (h Handler) matches(ctx context.Context, ev events.Event) bool {
	return h.Filter == nil || h.Filter(ctx, ev)
}

// MessageHandler handles new messages that also pass f (nil means every new message).
func MessageHandler(name string, f filter.Filter, fn HandlerFunc, keys ...deps.Key) Handler {
	match := filter.Message()
	if f != nil {
		match = filter.And(match, f)
	}
	return Handler{Name: name, Filter: match, Callback: fn, Deps: keys}
}

// CommandHandler handles "/command" messages, with or without arguments.
// An empty command handles every slash command.
func CommandHandler(command string, fn HandlerFunc, keys ...deps.Key) Handler {
	command = strings.TrimPrefix(strings.TrimSpace(command), "/")
	if command == "" {
		return Handler{Name: "command.any", Filter: filter.AnyCommand(), Callback: fn, Deps: keys}
	}
	command = "/" + command
	return Handler{Name: command, Filter: filter.Command(command), Callback: fn, Deps: keys}
}

// CallbackHandler handles button presses that also pass f (nil means every press).
func CallbackHandler(name string, f filter.Filter, fn HandlerFunc, keys ...deps.Key) Handler {
	match := filter.Kind(events.CallbackQuery)
	if f != nil {
		match = filter.And(match, f)
	}
	return Handler{Name: name, Filter: match, Callback: fn, Deps: keys}
}

// EventHandler handles events of the given kinds.
func EventHandler(name string, fn HandlerFunc, kinds ...events.Kind) Handler {
	return Handler{Name: name, Filter: filter.Kind(kinds...), Callback: fn}
}
