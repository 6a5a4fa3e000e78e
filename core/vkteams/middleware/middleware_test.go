package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/vkteams"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/state"
)

func msg(t *testing.T, user, chat string) *vkteams.Context {
	t.Helper()
	ev, err := events.Decode(events.NewMessage, json.RawMessage(
		`{"text":"hi","chat":{"chatId":"`+chat+`","type":"group"},"from":{"userId":"`+user+`"}}`))
	require.NoError(t, err)
	return vkteams.NewContext(nil, ev)
}

func press(t *testing.T, user string) *vkteams.Context {
	t.Helper()
	ev, err := events.Decode(events.CallbackQuery, json.RawMessage(
		`{"queryId":"q","callbackData":"x","from":{"userId":"`+user+`"},"message":{"chat":{"chatId":"c"}}}`))
	require.NoError(t, err)
	return vkteams.NewContext(nil, ev)
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var limited int
	mw := RateLimit(RateLimitOptions{
		Interval: time.Second,
		Exclude:  []string{config.EventCallback},
		Now:      func() time.Time { return now },
		OnLimited: func(context.Context, *vkteams.Context) error {
			limited++
			return nil
		},
	})
	ctx := context.Background()

	require.NoError(t, mw.Handle(ctx, msg(t, "u1", "c")))
	assert.ErrorIs(t, mw.Handle(ctx, msg(t, "u1", "c")), vkteams.ErrRejected)
	require.NoError(t, mw.Handle(ctx, msg(t, "u2", "c")))
	require.NoError(t, mw.Handle(ctx, press(t, "u1")))

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, mw.Handle(ctx, msg(t, "u1", "c")))
	assert.Equal(t, 1, limited)
}

func TestAccess(t *testing.T) {
	mw := Access([]string{"allowed"}, "")
	ctx := context.Background()
	require.NoError(t, mw.Handle(ctx, msg(t, "u1", "allowed")))
	assert.ErrorIs(t, mw.Handle(ctx, msg(t, "u1", "stranger")), vkteams.ErrRejected)
	require.NoError(t, Access(nil, "go away").Handle(ctx, msg(t, "u1", "stranger")))
}

func TestSessionLoadsEntry(t *testing.T) {
	store := state.NewMemory(state.Options{})
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, state.StateData{User: "u1", State: "await_name", Data: map[string]any{"step": 1}}))

	mw := Session(store)
	c := msg(t, "u1", "c")
	require.NoError(t, mw.Handle(ctx, c))
	st, ok := vkteams.Value[string](c, StateKey)
	require.True(t, ok)
	assert.Equal(t, "await_name", st)
	entry, ok := vkteams.Value[state.Entry](c, SessionKey)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Data["step"])

	other := msg(t, "u2", "c")
	require.NoError(t, mw.Handle(ctx, other))
	_, ok = other.Get(StateKey)
	assert.False(t, ok)
}

type failingStore struct{ state.Store }

func (failingStore) Entry(context.Context, string) (state.Entry, bool, error) {
	return state.Entry{}, false, errors.New("backend down")
}

func TestSessionPropagatesStoreErrors(t *testing.T) {
	assert.Error(t, Session(failingStore{}).Handle(context.Background(), msg(t, "u1", "c")))
}

func TestDefaults(t *testing.T) {
	cfg := &config.Config{
		Access:    config.AccessConfig{AllowedChats: []string{"c"}},
		RateLimit: config.RateLimitConfig{IntervalMS: 500},
	}
	assert.Len(t, Defaults(cfg, state.NewMemory(state.Options{}), nil), 4)
	assert.Len(t, Defaults(nil, nil, nil), 1)
}

func TestMiddlewaresInDispatcher(t *testing.T) {
	d := vkteams.NewDispatcher(nil)
	d.Use(Logger(), Access([]string{"c"}, ""))
	var handled int
	require.NoError(t, d.Handle(vkteams.MessageHandler("all", nil, func(context.Context, *vkteams.Context) error {
		handled++
		return nil
	})))
	ctx := context.Background()
	require.NoError(t, d.Dispatch(ctx, msg(t, "u1", "c")))
	require.NoError(t, d.Dispatch(ctx, msg(t, "u1", "other")))
	assert.Equal(t, 1, handled)
}
