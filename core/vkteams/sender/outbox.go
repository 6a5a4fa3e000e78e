// Package sender runs outbound Bot API calls on a bounded worker pool.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

const component = "vk.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("vkteams sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("vkteams sender: queue full")
)

// Options controls the outbox.
type Options struct {
	QueueSize int
	Workers   int
	// MaxDuration bounds a single job including retries done by the job itself.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	action string
	run    func(context.Context) error
}

// Outbox executes jobs asynchronously. Retries on server errors belong to the job.
type Outbox struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	done atomic.Uint64
	errs atomic.Uint64
}

// New starts an outbox, filling zero options with defaults.
func New(opts Options) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}

	o := &Outbox{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o
}

// Enqueue schedules run. The job context keeps ctx values but not its cancellation,
// so a job outlives the dispatch that queued it.
func (o *Outbox) Enqueue(ctx context.Context, action string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("vkteams sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrQueueClosed
	}
	select {
	case o.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, run: run}:
		return nil
	default:
		logger.Warn(ctx, component, "send.dropped", slog.String("action", action), slog.Int("count", len(o.jobs)))
		return ErrQueueFull
	}
}

// Done returns the number of finished jobs.
func (o *Outbox) Done() uint64 { return o.done.Load() }

// ErrorCount returns the number of failed jobs.
func (o *Outbox) ErrorCount() uint64 { return o.errs.Load() }

// Close stops accepting jobs and waits for queued ones to finish.
func (o *Outbox) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.jobs)
		o.mu.Unlock()
		o.wg.Wait()
	})
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.handle(j)
	}
}

func (o *Outbox) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, o.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	err := runSafe(ctx, j.run)
	o.done.Add(1)
	if err == nil {
		logger.Debug(ctx, component, "send.success",
			slog.String("action", j.action), slog.Duration("duration", logger.Took(start)))
		return
	}
	o.errs.Add(1)
	logger.Error(ctx, component, "send.fail",
		slog.String("action", j.action),
		slog.String("status", "fail"),
		slog.String("err_kind", string(transport.Classify(err))),
		slog.Int("http_code", transport.StatusCode(err)),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
}

func runSafe(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return run(ctx)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("vkteams sender: job panicked: %v", e.value) }
