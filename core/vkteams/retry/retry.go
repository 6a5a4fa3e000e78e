// Package retry repeats Bot API calls that failed with a server error.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

const (
	// DefaultAttempts is the attempt budget of a zero Policy.
	DefaultAttempts = 2

	component = "vk.retry"
)

// Policy retries only *transport.ServerError. Every other error, and success, ends the call at once.
type Policy struct {
	// MaxAttempts is the total number of attempts; values <= 0 mean DefaultAttempts.
	MaxAttempts int
	// Delay is slept between attempts when positive.
	Delay time.Duration

	sleep func(context.Context, time.Duration) error
}

// New returns a policy with the given attempt budget and delay.
func New(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay}
}

// WithSleep replaces the delay function, for tests.
func (p Policy) WithSleep(fn func(context.Context, time.Duration) error) Policy {
	p.sleep = fn
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultAttempts
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, fails with a non-server error, or the budget is spent.
// The last ServerError is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	total := p.attempts()
	remaining := total
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			logger.Warn(ctx, component, "retry.attempt",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", total))
		}

		err := fn(ctx)
		if err == nil || !transport.IsServerError(err) {
			return err
		}

		logger.Warn(ctx, component, "retry.server_error",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("http_code", transport.StatusCode(err)),
			logger.Err(err))

		remaining--
		if remaining <= 0 {
			logger.Error(ctx, component, "retry.exhausted",
				slog.String("op", op),
				slog.Int("attempts", attempt),
				logger.Err(err))
			return err
		}

		if p.Delay > 0 {
			if serr := p.doSleep(ctx, p.Delay); serr != nil {
				return serr
			}
		}
	}
}

func (p Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
