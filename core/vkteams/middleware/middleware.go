// Package middleware holds the stock dispatch middlewares.
package middleware

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams"
	"github.com/m3rciful/vkbot/core/vkteams/callbacks"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/state"
)

const component = "vk.dispatch"

// Context keys set by Session.
const (
	SessionKey = "session"
	StateKey   = "state"
)

// Logger writes one sampled debug line per received event.
func Logger() vkteams.Middleware {
	return vkteams.Named{Name: "logger", Middleware: vkteams.MiddlewareFunc(func(ctx context.Context, c *vkteams.Context) error {
		if !logger.ShouldSampleDebug() {
			return nil
		}
		ev := c.Event()
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("event_type", string(ev.Kind())),
			slog.String("chat_type", string(ev.Chat().Type)),
		}
		if u, ok := events.Sender(ev); ok && u.Nick != "" {
			attrs = append(attrs, slog.String("nick", logger.SanitizeLimit(u.Nick, 64)))
		}
		switch v := ev.(type) {
		case *events.Callback:
			key, payload := callbacks.Parse(v.CallbackData)
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
			if payload != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
			}
		case *events.Message:
			if v.Text != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(v.Text, 256)))
			}
		}
		logger.Debug(ctx, component, "event.received", attrs...)
		return nil
	})}
}

// group maps an event kind to a rate limit exclusion group.
func group(k events.Kind) string {
	switch k {
	case events.NewMessage, events.EditedMessage, events.PinnedMessage:
		return config.EventMessage
	case events.CallbackQuery:
		return config.EventCallback
	case events.NewChatMembers, events.LeftChatMembers:
		return config.EventMembers
	}
	return "other"
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists event groups (message, callback, members) that bypass the limit.
	Exclude   []string
	OnLimited vkteams.HandlerFunc
	Now       func() time.Time
}

// RateLimit rejects events that arrive from the same user faster than Interval.
func RateLimit(opts RateLimitOptions) vkteams.Middleware {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var (
		mu       sync.Mutex
		lastSeen = make(map[string]time.Time)
	)
	return vkteams.Named{Name: "rate_limit", Middleware: vkteams.MiddlewareFunc(func(ctx context.Context, c *vkteams.Context) error {
		ev := c.Event()
		if opts.Interval <= 0 || slices.Contains(opts.Exclude, group(ev.Kind())) {
			return nil
		}
		user := c.UserKey()
		if user == "" {
			return nil
		}
		now := opts.Now()

		mu.Lock()
		last, seen := lastSeen[user]
		limited := seen && now.Sub(last) < opts.Interval
		if !limited {
			lastSeen[user] = now
		}
		for u, ts := range lastSeen {
			if now.Sub(ts) > 10*opts.Interval {
				delete(lastSeen, u)
			}
		}
		mu.Unlock()

		if !limited {
			return nil
		}
		logger.Warn(ctx, component, "rate_limit", slog.String("event_type", string(ev.Kind())))
		if opts.OnLimited != nil {
			if err := opts.OnLimited(ctx, c); err != nil {
				logger.Warn(ctx, component, "rate_limit.notify_failed", logger.Err(err))
			}
		}
		return vkteams.ErrRejected
	})}
}

// Access rejects events from chats outside allowed. An empty list allows everyone.
// A non-empty rejectText is sent back asynchronously.
func Access(allowed []string, rejectText string) vkteams.Middleware {
	allowed = slices.Clone(allowed)
	return vkteams.Named{Name: "access", Middleware: vkteams.MiddlewareFunc(func(ctx context.Context, c *vkteams.Context) error {
		if len(allowed) == 0 {
			return nil
		}
		chat := c.ChatID()
		if slices.Contains(allowed, chat) {
			return nil
		}
		logger.Info(ctx, component, "access.denied", slog.String("status", "fail"))
		if strings.TrimSpace(rejectText) != "" && c.Bot != nil {
			if err := c.Bot.SendTextAsync(ctx, chat, rejectText); err != nil {
				logger.Warn(ctx, component, "access.notify_failed", logger.Err(err))
			}
		}
		return vkteams.ErrRejected
	})}
}

// Session loads the sender's state entry into the context under SessionKey and StateKey.
// Users without an entry get neither key.
func Session(store state.Store) vkteams.Middleware {
	return vkteams.Named{Name: "session", Middleware: vkteams.MiddlewareFunc(func(ctx context.Context, c *vkteams.Context) error {
		entry, ok, err := store.Entry(ctx, c.UserKey())
		if err != nil {
			return err
		}
		if ok {
			c.Set(SessionKey, entry)
			c.Set(StateKey, entry.State)
		}
		return nil
	})}
}

// Defaults builds the stock chain from cfg: logger, access, rate limit and session over store.
func Defaults(cfg *config.Config, store state.Store, onLimited vkteams.HandlerFunc) []vkteams.Middleware {
	mws := []vkteams.Middleware{Logger()}
	if cfg != nil {
		if len(cfg.Access.AllowedChats) > 0 {
			mws = append(mws, Access(cfg.Access.AllowedChats, cfg.Access.RejectText))
		}
		if cfg.RateLimit.IntervalMS > 0 {
			mws = append(mws, RateLimit(RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   cfg.RateLimit.ExcludeEvents,
				OnLimited: onLimited,
			}))
		}
	}
	if store != nil {
		mws = append(mws, Session(store))
	}
	return mws
}
