package vkteams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/deps"
)

const dispatchComponent = "vk.dispatch"

// Dispatcher runs middlewares and then at most one matching handler per event.
// Handlers are tried in registration order; there is no unregister.
type Dispatcher struct {
	mu          sync.RWMutex
	middlewares []Middleware
	handlers    []Handler
	notFound    *Handler
	registry    *deps.Registry
}

// NewDispatcher returns a dispatcher resolving handler dependencies from reg (nil means none).
func NewDispatcher(reg *deps.Registry) *Dispatcher {
	if reg == nil {
		reg = deps.NewRegistry()
	}
	return &Dispatcher{registry: reg}
}

// Use appends middlewares. They run in the order added.
func (d *Dispatcher) Use(mws ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			d.middlewares = append(d.middlewares, mw)
		}
	}
}

// Handle appends h to the dispatch table. Unknown dependency keys are logged and skipped at call time.
func (d *Dispatcher) Handle(h Handler) error {
	if err := h.validate(); err != nil {
		return fmt.Errorf("handler %q: %w", h.Name, err)
	}
	if h.Name == "" {
		h.Name = fmt.Sprintf("handler_%d", d.Len()+1)
	}
	if missing := d.registry.Missing(h.Deps); len(missing) > 0 {
		logger.Warn(context.Background(), "vk.wire", "register.handler.unknown_deps",
			slog.String("handler", h.Name), slog.Any("deps", missing))
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
	return nil
}

// NotFound sets a handler tried after every registered one misses.
func (d *Dispatcher) NotFound(h Handler) error {
	if err := h.validate(); err != nil {
		return fmt.Errorf("not found handler: %w", err)
	}
	d.mu.Lock()
	d.notFound = &h
	d.mu.Unlock()
	return nil
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch processes c. A middleware rejection ends dispatch with nil; other middleware
// and handler errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Context) error {
	d.mu.RLock()
	mws := append([]Middleware(nil), d.middlewares...)
	handlers := append([]Handler(nil), d.handlers...)
	notFound := d.notFound
	d.mu.RUnlock()

	for _, mw := range mws {
		if err := mw.Handle(ctx, c); err != nil {
			if errors.Is(err, ErrRejected) {
				logger.Debug(ctx, dispatchComponent, "dispatch.rejected",
					slog.String("middleware", middlewareName(mw)), logger.Err(err))
				return nil
			}
			return fmt.Errorf("middleware %s: %w", middlewareName(mw), err)
		}
	}

	ev := c.Event()
	for _, h := range handlers {
		if h.matches(ctx, ev) {
			return d.invoke(ctx, c, h)
		}
	}
	if notFound != nil && notFound.matches(ctx, ev) {
		return d.invoke(ctx, c, *notFound)
	}
	logger.Debug(ctx, dispatchComponent, "dispatch.unhandled", slog.String("event_type", string(ev.Kind())))
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, c *Context, h Handler) (err error) {
	ctx = logger.WithHandler(ctx, h.Name)
	start := time.Now()

	set, err := d.registry.Resolve(ctx, h.Deps)
	if err != nil {
		logHandlerSummary(ctx, c, h.Name, start, "deps", err)
		return err
	}
	defer func() {
		if cerr := set.Close(ctx); cerr != nil {
			logger.Warn(ctx, dispatchComponent, "deps.release_failed", logger.Err(cerr))
		}
	}()

	c.Deps = set
	err = h.Callback(ctx, c)
	logHandlerSummary(ctx, c, h.Name, start, "", err)
	return err
}

func logHandlerSummary(ctx context.Context, c *Context, name string, start time.Time, cause string, err error) {
	status := logger.Status(err)
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("event_type", string(c.Event().Kind())),
		slog.Duration("duration", logger.Took(start)),
	}
	if !c.Received().IsZero() {
		attrs = append(attrs, slog.Duration("since_received", time.Since(c.Received())))
	}
	if n, kb := c.Sent(); n > 0 {
		attrs = append(attrs, slog.Int("messages", n), slog.Bool("kb", kb))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
		if cause != "" {
			attrs = append(attrs, slog.String("cause", cause))
		}
	}
	logger.Info(ctx, dispatchComponent, "handler.handled", attrs...)
}
