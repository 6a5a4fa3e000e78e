// Package filter provides event predicates for handler selection.
package filter

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/m3rciful/vkbot/core/vkteams/events"
)

// Filter reports whether a handler should take ev.
type Filter func(ctx context.Context, ev events.Event) bool

// StateReader is the part of a state store filters need.
type StateReader interface {
	State(ctx context.Context, user string) (string, bool, error)
}

// Any matches every event.
func Any() Filter {
	return func(context.Context, events.Event) bool { return true }
}

// Kind matches events of the given kinds.
func Kind(kinds ...events.Kind) Filter {
	return func(_ context.Context, ev events.Event) bool {
		return slices.Contains(kinds, ev.Kind())
	}
}

// Message matches new messages.
func Message() Filter {
	return Kind(events.NewMessage)
}

func newMessage(ev events.Event) (*events.Message, bool) {
	m, ok := ev.(*events.Message)
	if !ok || m.Kind() != events.NewMessage {
		return nil, false
	}
	return m, true
}

// Command matches a new message whose text is cmd, optionally followed by arguments.
// cmd is given with its leading slash.
func Command(cmd string) Filter {
	return func(_ context.Context, ev events.Event) bool {
		m, ok := newMessage(ev)
		if !ok {
			return false
		}
		text := strings.TrimSpace(m.Text)
		if !strings.HasPrefix(text, "/") {
			return false
		}
		return text == cmd || strings.HasPrefix(text, cmd+" ")
	}
}

// AnyCommand matches a new message starting with a slash.
func AnyCommand() Filter {
	return func(_ context.Context, ev events.Event) bool {
		m, ok := newMessage(ev)
		return ok && strings.HasPrefix(strings.TrimSpace(m.Text), "/")
	}
}

// Regexp matches new messages whose trimmed text matches pattern. It panics on a bad pattern.
func Regexp(pattern string) Filter {
	re := regexp.MustCompile(pattern)
	return func(_ context.Context, ev events.Event) bool {
		m, ok := newMessage(ev)
		return ok && re.MatchString(strings.TrimSpace(m.Text))
	}
}

// Tags matches new messages whose text equals one of tags.
func Tags(tags ...string) Filter {
	return func(_ context.Context, ev events.Event) bool {
		m, ok := newMessage(ev)
		return ok && slices.Contains(tags, m.Text)
	}
}

// File matches new messages with a file part.
func File() Filter { return part(events.PartFile) }

// Reply matches new messages quoting another message.
func Reply() Filter { return part(events.PartReply) }

// Voice matches new messages with a voice part.
func Voice() Filter { return part(events.PartVoice) }

// Forward matches any message-like event carrying a forwarded message.
func Forward() Filter {
	return func(_ context.Context, ev events.Event) bool {
		m, ok := ev.(*events.Message)
		return ok && m.HasPart(events.PartForward)
	}
}

func part(t events.PartType) Filter {
	return func(_ context.Context, ev events.Event) bool {
		m, ok := newMessage(ev)
		return ok && m.HasPart(t)
	}
}

// CallbackData matches button presses with exactly data.
func CallbackData(data string) Filter {
	return func(_ context.Context, ev events.Event) bool {
		cb, ok := ev.(*events.Callback)
		return ok && cb.CallbackData == data
	}
}

// CallbackRegexp matches button presses whose data contains a match of pattern.
func CallbackRegexp(pattern string) Filter {
	re := regexp.MustCompile(pattern)
	return func(_ context.Context, ev events.Event) bool {
		cb, ok := ev.(*events.Callback)
		return ok && re.MatchString(cb.CallbackData)
	}
}

// State matches new messages from a user whose stored state equals want.
func State(store StateReader, want string) Filter {
	return func(ctx context.Context, ev events.Event) bool {
		if _, ok := newMessage(ev); !ok {
			return false
		}
		st, found, err := store.State(ctx, events.UserKey(ev))
		return err == nil && found && st == want
	}
}

// StateRegexp matches messages and button presses from a user whose stored state matches pattern.
func StateRegexp(store StateReader, pattern string) Filter {
	re := regexp.MustCompile(pattern)
	return func(ctx context.Context, ev events.Event) bool {
		switch ev.(type) {
		case *events.Message, *events.Callback:
		default:
			return false
		}
		st, found, err := store.State(ctx, events.UserKey(ev))
		return err == nil && found && re.MatchString(st)
	}
}

// And matches when every filter matches. Evaluation stops at the first miss.
func And(filters ...Filter) Filter {
	return func(ctx context.Context, ev events.Event) bool {
		for _, f := range filters {
			if !f(ctx, ev) {
				return false
			}
		}
		return true
	}
}

// Or matches when any filter matches.
func Or(filters ...Filter) Filter {
	return func(ctx context.Context, ev events.Event) bool {
		for _, f := range filters {
			if f(ctx, ev) {
				return true
			}
		}
		return false
	}
}

// Not inverts f.
func Not(f Filter) Filter {
	return func(ctx context.Context, ev events.Event) bool { return !f(ctx, ev) }
}
