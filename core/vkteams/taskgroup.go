package vkteams

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/m3rciful/vkbot/core/logger"
)

// taskGroup supervises dispatch goroutines: it recovers panics, logs returned errors
// and lets shutdown wait for everything in flight. A positive limit bounds how many
// tasks run at once; waiting tasks hold a goroutine but no slot.
type taskGroup struct {
	wg  sync.WaitGroup
	sem chan struct{}
}

func newTaskGroup(limit int) *taskGroup {
	g := &taskGroup{}
	if limit > 0 {
		g.sem = make(chan struct{}, limit)
	}
	return g
}

// Go starts fn in its own goroutine. It never blocks the caller.
func (g *taskGroup) Go(ctx context.Context, name string, fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if g.sem != nil {
			select {
			case g.sem <- struct{}{}:
				defer func() { <-g.sem }()
			case <-ctx.Done():
				logger.Warn(ctx, dispatchComponent, "task.dropped", slog.String("task", name), logger.Err(ctx.Err()))
				return
			}
		}
		if err := g.run(ctx, fn); err != nil {
			logger.Error(ctx, dispatchComponent, "task.failed",
				slog.String("task", name),
				slog.String("status", "fail"),
				slog.String("err_code", deriveErrorCode(err)),
				logger.Err(err))
		}
	}()
}

func (g *taskGroup) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, dispatchComponent, "task.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (g *taskGroup) Wait() { g.wg.Wait() }

// PanicError reports a recovered handler panic.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return fmt.Sprintf("vkteams: handler panicked: %v", e.Value) }

// Code is used for the err_code log attribute.
func (e *PanicError) Code() string { return "panic" }
