// Package vkteams is a VK Teams bot runtime: it long-polls events, runs them through
// middlewares and handlers, and exposes outbound Bot API calls.
package vkteams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/callbacks"
	"github.com/m3rciful/vkbot/core/vkteams/commands"
	"github.com/m3rciful/vkbot/core/vkteams/cursor"
	"github.com/m3rciful/vkbot/core/vkteams/deps"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/filter"
	"github.com/m3rciful/vkbot/core/vkteams/keyboard"
	"github.com/m3rciful/vkbot/core/vkteams/retry"
	"github.com/m3rciful/vkbot/core/vkteams/sender"
	"github.com/m3rciful/vkbot/core/vkteams/state"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

const component = "vk"

// Options assemble a Bot. Only Config is required.
type Options struct {
	Config *config.Config
	// HTTPClient replaces the tuned default client.
	HTTPClient *http.Client
	// Cursor persists the last event id. Nil keeps it in memory.
	Cursor cursor.Store
	// State is the user state store. Nil builds one from Config.State.
	State *state.Memory
	// Deps holds handler dependency providers. Nil starts empty.
	Deps *deps.Registry
	// Outbox runs asynchronous sends. Nil builds one from Config.Sender.
	Outbox *sender.Outbox
	// ExpiryKeyboard builds the keyboard of the session expiry notice. Nil uses keyboard.SessionEnd.
	ExpiryKeyboard func(user string) *keyboard.Markup

	OnStart func(ctx context.Context, b *Bot) error
	OnStop  func(ctx context.Context, b *Bot) error
}

// Bot owns one poll loop, dispatcher, state store and outbox.
type Bot struct {
	cfg        *config.Config
	client     *transport.Client
	poller     *Poller
	dispatcher *Dispatcher
	tasks      *taskGroup
	requests   retry.Policy
	store      *state.Memory
	registry   *deps.Registry
	outbox     *sender.Outbox
	commands   *commands.Registry

	cbMu      sync.Mutex
	callbacks map[string]struct{}

	errorBackoff   time.Duration
	expiryKeyboard func(user string) *keyboard.Markup
	onStart        func(ctx context.Context, b *Bot) error
	onStop         func(ctx context.Context, b *Bot) error

	running atomic.Bool
}

// New validates the configuration and wires the bot. Nothing touches the network until Run.
func New(opts Options) (*Bot, error) {
	if opts.Config == nil {
		return nil, errors.New("vkteams: nil config provided")
	}
	if err := config.Normalize(opts.Config); err != nil {
		return nil, fmt.Errorf("vkteams: %w", err)
	}
	cfg := opts.Config
	vk := cfg.VKTeams

	client := transport.New(transport.Options{
		BaseURL:    vk.URL,
		BasePath:   vk.BasePath,
		Token:      vk.Token,
		Timeout:    time.Duration(vk.TimeoutSeconds) * time.Second,
		HTTPClient: opts.HTTPClient,
	})
	delay := time.Duration(vk.RetryDelayMS) * time.Millisecond

	b := &Bot{
		cfg:            cfg,
		client:         client,
		tasks:          newTaskGroup(vk.MaxConcurrency),
		requests:       retry.New(vk.RequestRetries, delay),
		registry:       opts.Deps,
		outbox:         opts.Outbox,
		store:          opts.State,
		commands:       commands.NewRegistry(),
		callbacks:      make(map[string]struct{}),
		errorBackoff:   time.Duration(vk.ErrorBackoffMS) * time.Millisecond,
		expiryKeyboard: opts.ExpiryKeyboard,
		onStart:        opts.OnStart,
		onStop:         opts.OnStop,
	}
	b.poller = NewPoller(client, PollerOptions{
		PollTime:    time.Duration(vk.PollTimeSeconds) * time.Second,
		LastEventID: vk.LastEventID,
		Policy:      retry.New(vk.PollRetries, delay),
		Cursor:      opts.Cursor,
	})
	if b.registry == nil {
		b.registry = deps.NewRegistry()
	}
	b.dispatcher = NewDispatcher(b.registry)
	if b.outbox == nil {
		b.outbox = sender.New(sender.Options{QueueSize: cfg.Sender.QueueSize, Workers: cfg.Sender.Workers})
	}
	if b.expiryKeyboard == nil {
		b.expiryKeyboard = func(string) *keyboard.Markup { return keyboard.SessionEnd() }
	}
	if b.store == nil {
		b.store = state.NewMemory(state.Options{
			Expire:        time.Duration(cfg.State.ExpireSeconds) * time.Second,
			UpdateExpire:  time.Duration(cfg.State.UpdateExpireSeconds) * time.Second,
			SweepInterval: time.Duration(cfg.State.SweepIntervalSeconds) * time.Second,
		})
	}
	b.store.SetOnExpire(b.notifyExpired, cfg.State.NotifyOnExpiry)
	return b, nil
}

// Config returns the normalized configuration.
func (b *Bot) Config() *config.Config { return b.cfg }

// State returns the user state store.
func (b *Bot) State() *state.Memory { return b.store }

// Deps returns the dependency registry. Register providers before adding handlers.
func (b *Bot) Deps() *deps.Registry { return b.registry }

// Commands returns the command metadata registry.
func (b *Bot) Commands() *commands.Registry { return b.commands }

// Outbox returns the asynchronous sender.
func (b *Bot) Outbox() *sender.Outbox { return b.outbox }

// Poller returns the event poller.
func (b *Bot) Poller() *Poller { return b.poller }

// Dispatcher returns the event dispatcher.
func (b *Bot) Dispatcher() *Dispatcher { return b.dispatcher }

// Use appends middlewares.
func (b *Bot) Use(mws ...Middleware) { b.dispatcher.Use(mws...) }

// Handle appends handlers in order.
func (b *Bot) Handle(handlers ...Handler) error {
	for _, h := range handlers {
		if err := b.dispatcher.Handle(h); err != nil {
			return err
		}
	}
	return nil
}

// Command registers cmd metadata and a handler matching its name and aliases.
// Admin-only commands are ignored outside the configured admin chats.
func (b *Bot) Command(cmd commands.Command, fn HandlerFunc, keys ...deps.Key) error {
	if fn == nil {
		return fmt.Errorf("vkteams: command %q: nil handler", cmd.Name)
	}
	if err := b.commands.Add(cmd); err != nil {
		return fmt.Errorf("vkteams: %w", err)
	}
	triggers := b.commands.Triggers(cmd.Name)
	matchers := make([]filter.Filter, 0, len(triggers))
	for _, t := range triggers {
		matchers = append(matchers, filter.Command(t))
	}
	if cmd.AdminOnly {
		next := fn
		fn = func(ctx context.Context, c *Context) error {
			if !b.IsAdminChat(c.ChatID()) {
				logger.Debug(ctx, component, "command.admin_only", slog.String("command", triggers[0]))
				return nil
			}
			return next(ctx, c)
		}
	}
	return b.dispatcher.Handle(Handler{Name: triggers[0], Filter: filter.Or(matchers...), Callback: fn, Deps: keys})
}

// IsAdminChat reports whether chatID is listed in access.admin_chats.
func (b *Bot) IsAdminChat(chatID string) bool {
	return slices.Contains(b.cfg.Access.AdminChats, chatID)
}

// OnCallback routes button presses whose data key (before "|") equals key.
func (b *Bot) OnCallback(key string, fn HandlerFunc, keys ...deps.Key) error {
	if key == "" || fn == nil {
		return errors.New("vkteams: invalid callback registration")
	}
	b.cbMu.Lock()
	if _, dup := b.callbacks[key]; dup {
		b.cbMu.Unlock()
		return fmt.Errorf("vkteams: callback already registered: %s", key)
	}
	b.callbacks[key] = struct{}{}
	b.cbMu.Unlock()

	match := func(_ context.Context, ev events.Event) bool { return callbacks.Key(ev) == key }
	return b.dispatcher.Handle(CallbackHandler("callback."+key, match, fn, keys...))
}

// CallbackNotFound handles button presses no other handler took.
func (b *Bot) CallbackNotFound(fn HandlerFunc) error {
	return b.dispatcher.NotFound(CallbackHandler("callback.not_found", nil, fn))
}

// Run polls and dispatches until ctx is done, then waits for in-flight handlers,
// stops the expiry sweeper, drains the outbox and releases connections.
func (b *Bot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("vkteams: bot already running")
	}
	defer b.running.Store(false)

	if err := b.poller.Init(ctx); err != nil {
		return fmt.Errorf("vkteams: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(context.WithoutCancel(ctx))
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		b.store.Run(sweepCtx)
	}()

	var runErr error
	if b.onStart != nil {
		runErr = b.onStart(ctx, b)
	}
	if runErr == nil {
		logger.Info(ctx, component, "bot.started",
			slog.Int64("last_event_id", b.poller.Cursor()),
			slog.Int("count", b.dispatcher.Len()))
		b.loop(ctx)
	}

	logger.Info(ctx, component, "bot.stopping")
	b.tasks.Wait()
	stopSweep()
	<-sweepDone

	var stopErr error
	if b.onStop != nil {
		stopErr = b.onStop(context.WithoutCancel(ctx), b)
	}
	b.outbox.Close()
	b.client.Close()
	logger.Info(context.WithoutCancel(ctx), component, "bot.stopped",
		slog.Int64("last_event_id", b.poller.Cursor()))
	return errors.Join(runErr, stopErr)
}

func (b *Bot) loop(ctx context.Context) {
	for ctx.Err() == nil {
		batch, err := b.poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, pollComponent, "poll.failed",
				slog.String("status", "fail"),
				slog.String("err_kind", string(transport.Classify(err))),
				slog.Int("http_code", transport.StatusCode(err)),
				slog.Duration("delay", b.errorBackoff),
				logger.Err(err))
			if retry.Sleep(ctx, b.errorBackoff) != nil {
				return
			}
			continue
		}
		for _, env := range batch {
			b.dispatch(ctx, env)
		}
	}
}

// dispatch hands env to the task group. Handlers keep running after ctx is cancelled;
// Run waits for them.
func (b *Bot) dispatch(ctx context.Context, env events.Envelope) {
	ctx = context.WithoutCancel(ctx)
	b.tasks.Go(ctx, env.Type, func(ctx context.Context) error {
		ctx = logger.WithTrace(ctx, uuid.NewString())
		ev, err := events.DecodeEnvelope(env)
		if err != nil {
			return fmt.Errorf("decode event %d: %w", env.EventID, err)
		}
		from, _ := events.Sender(ev)
		ctx = logger.WithEventMeta(ctx, ev.ID(), from.UserID, ev.Chat().ChatID)
		return b.dispatcher.Dispatch(ctx, NewContext(b, ev))
	})
}

func (b *Bot) notifyExpired(ctx context.Context, user string) {
	err := b.SendTextAsync(ctx, user, b.cfg.State.ExpiredText, WithKeyboard(b.expiryKeyboard(user)))
	if err != nil {
		logger.Warn(ctx, "state", "state.notify_failed", slog.String("user_id", user), logger.Err(err))
	}
}
