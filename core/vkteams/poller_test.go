package vkteams

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/vkteams/cursor"
	"github.com/m3rciful/vkbot/core/vkteams/retry"
	"github.com/m3rciful/vkbot/core/vkteams/transport"
)

func newTestPoller(t *testing.T, api *fakeAPI, opts PollerOptions) *Poller {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	client := transport.New(transport.Options{
		BaseURL:  srv.URL,
		BasePath: config.DefaultBasePath,
		Token:    "tok",
		Timeout:  2 * time.Second,
	})
	opts.Policy = opts.Policy.WithSleep(func(context.Context, time.Duration) error { return nil })
	return NewPoller(client, opts)
}

func TestPollMissingEventsKey(t *testing.T) {
	p := newTestPoller(t, newFakeAPI(`{"ok":true}`), PollerOptions{LastEventID: 3})
	batch, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, int64(3), p.Cursor())
}

func TestPollCursorNeverDecreases(t *testing.T) {
	api := newFakeAPI(
		`{"events":[{"eventId":3,"type":"newMessage","payload":{}},{"eventId":4,"type":"newMessage","payload":{}}]}`,
		`{"events":[{"eventId":11,"type":"newMessage","payload":{}},{"eventId":12,"type":"x","payload":{}}]}`,
	)
	store := &cursor.Memory{}
	p := newTestPoller(t, api, PollerOptions{LastEventID: 10, Cursor: store})
	ctx := context.Background()

	batch, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, int64(10), p.Cursor())

	batch, err = p.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "x", batch[1].Type)
	assert.Equal(t, int64(12), p.Cursor())

	saved, _, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), saved)

	qs := api.PollQueries()
	assert.Equal(t, "10", qs[0].Get("lastEventId"))
	assert.Equal(t, "10", qs[1].Get("lastEventId"))
}

func TestPollInitRestoresLaterCheckpoint(t *testing.T) {
	store := &cursor.Memory{}
	require.NoError(t, store.Save(context.Background(), 40))
	p := newTestPoller(t, newFakeAPI(), PollerOptions{LastEventID: 7, Cursor: store})
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, int64(40), p.Cursor())

	p = newTestPoller(t, newFakeAPI(), PollerOptions{LastEventID: 90, Cursor: store})
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, int64(90), p.Cursor())
}

func TestPollRetriesServerErrors(t *testing.T) {
	api := newFakeAPI("status:502", `{"events":[{"eventId":1,"type":"newMessage","payload":{}}]}`)
	p := newTestPoller(t, api, PollerOptions{})
	batch, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch, 1)
	assert.Len(t, api.PollQueries(), 2)
}

func TestPollExhaustedReturnsServerError(t *testing.T) {
	api := newFakeAPI("status:502", "status:502", "status:502")
	p := newTestPoller(t, api, PollerOptions{Policy: retry.New(3, 0)})
	_, err := p.Poll(context.Background())
	var se *transport.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 502, se.Status)
	assert.Len(t, api.PollQueries(), 3)
	assert.Equal(t, int64(0), p.Cursor())
}
