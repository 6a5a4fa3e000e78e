package vkteams

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/cursor"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/retry"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

const (
	pollComponent  = "vk.poll"
	eventsEndpoint = "events/get"
)

// PollerOptions configure a Poller.
type PollerOptions struct {
	// PollTime is how long the server may hold the request open waiting for events.
	PollTime time.Duration
	// LastEventID is the starting cursor unless Cursor holds a later checkpoint.
	LastEventID int64
	Policy      retry.Policy
	// Cursor persists progress. Nil keeps it in memory only.
	Cursor cursor.Store
}

// Poller fetches event batches and owns the cursor. Poll must not be called concurrently.
type Poller struct {
	client   *transport.Client
	pollTime time.Duration
	policy   retry.Policy
	store    cursor.Store
	cursor   atomic.Int64
}

// NewPoller builds a poller over client.
func NewPoller(client *transport.Client, opts PollerOptions) *Poller {
	if opts.Cursor == nil {
		opts.Cursor = &cursor.Memory{}
	}
	p := &Poller{client: client, pollTime: opts.PollTime, policy: opts.Policy, store: opts.Cursor}
	p.cursor.Store(max(opts.LastEventID, 0))
	return p
}

// Init loads the saved checkpoint. The cursor only moves forward.
func (p *Poller) Init(ctx context.Context) error {
	id, ok, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if ok && id > p.cursor.Load() {
		p.cursor.Store(id)
	}
	logger.Info(ctx, pollComponent, "cursor.loaded",
		slog.Int64("last_event_id", p.cursor.Load()), slog.Bool("restored", ok))
	return nil
}

// Cursor returns the id of the last event handed out.
func (p *Poller) Cursor() int64 { return p.cursor.Load() }

// Poll performs one long-poll request. A response without "events" is logged as a
// protocol error and yields an empty batch. The cursor advances to the last event id
// before the batch is returned.
func (p *Poller) Poll(ctx context.Context) ([]events.Envelope, error) {
	last := p.cursor.Load()
	params := transport.Params{
		"lastEventId": last,
		"pollTime":    int64(p.pollTime / time.Second),
	}

	resp, err := retry.Call(ctx, p.policy, eventsEndpoint, func(ctx context.Context) (transport.Response, error) {
		return p.client.Do(ctx, transport.Request{Endpoint: eventsEndpoint, Params: params})
	})
	if err != nil {
		return nil, err
	}

	if !resp.Has("events") {
		logger.Error(ctx, pollComponent, "poll.protocol_error",
			slog.String("endpoint", eventsEndpoint),
			slog.String("err_kind", "protocol"),
			logger.Err(fmt.Errorf("%w: events key missing", transport.ErrProtocol)))
		return nil, nil
	}
	var batch []events.Envelope
	if err := resp.Decode("events", &batch); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, pollComponent, "poll.empty", slog.Int64("last_event_id", last))
		}
		return nil, nil
	}

	next := batch[len(batch)-1].EventID
	switch {
	case next < last:
		logger.Warn(ctx, pollComponent, "cursor.stale_batch",
			slog.Int64("last_event_id", last),
			slog.Int64("batch_last_id", next),
			slog.Int("count", len(batch)))
	case next > last:
		p.cursor.Store(next)
		if err := p.store.Save(ctx, next); err != nil {
			logger.Warn(ctx, "cursor", "cursor.save_failed", slog.Int64("last_event_id", next), logger.Err(err))
		}
	}
	logger.Debug(ctx, pollComponent, "poll.batch",
		slog.Int("count", len(batch)), slog.Int64("last_event_id", p.cursor.Load()))
	return batch, nil
}
