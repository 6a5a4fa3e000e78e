package filter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/vkteams/events"
)

func decode(t *testing.T, kind events.Kind, payload string) events.Event {
	t.Helper()
	ev, err := events.Decode(kind, json.RawMessage(payload))
	require.NoError(t, err)
	return ev
}

func textMessage(t *testing.T, text string) events.Event {
	b, _ := json.Marshal(text)
	return decode(t, events.NewMessage, `{"chat":{"chatId":"u1","type":"private"},"from":{"userId":"u1"},"text":`+string(b)+`}`)
}

type stubStates map[string]string

func (s stubStates) State(_ context.Context, user string) (string, bool, error) {
	st, ok := s[user]
	return st, ok, nil
}

func TestCommand(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Command("/start")(ctx, textMessage(t, "/start")))
	assert.True(t, Command("/start")(ctx, textMessage(t, " /start now ")))
	assert.False(t, Command("/start")(ctx, textMessage(t, "/started")))
	assert.False(t, Command("/start")(ctx, textMessage(t, "start")))
	assert.True(t, AnyCommand()(ctx, textMessage(t, "/help")))

	edited := decode(t, events.EditedMessage, `{"chat":{"chatId":"u1","type":"private"},"text":"/start"}`)
	assert.False(t, Command("/start")(ctx, edited))
}

func TestTextFilters(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Regexp(`^\d+$`)(ctx, textMessage(t, " 42 ")))
	assert.False(t, Regexp(`^\d+$`)(ctx, textMessage(t, "x42")))
	assert.True(t, Tags("yes", "no")(ctx, textMessage(t, "no")))
	assert.True(t, Message()(ctx, textMessage(t, "")))
}

func TestPartFilters(t *testing.T) {
	ctx := context.Background()
	withParts := decode(t, events.NewMessage, `{"chat":{"chatId":"c","type":"group"},
		"parts":[{"type":"file","payload":{"fileId":"F"}},{"type":"reply","payload":{}}]}`)
	assert.True(t, File()(ctx, withParts))
	assert.True(t, Reply()(ctx, withParts))
	assert.False(t, Forward()(ctx, withParts))
	assert.False(t, Voice()(ctx, withParts))
}

func TestCallbackFilters(t *testing.T) {
	ctx := context.Background()
	cb := decode(t, events.CallbackQuery, `{"queryId":"q","from":{"userId":"u1"},"callbackData":"page|2",
		"message":{"chat":{"chatId":"u1","type":"private"}}}`)
	assert.True(t, CallbackData("page|2")(ctx, cb))
	assert.False(t, CallbackData("page")(ctx, cb))
	assert.True(t, CallbackRegexp(`^page\|`)(ctx, cb))
	assert.False(t, Message()(ctx, cb))
}

func TestStateFilters(t *testing.T) {
	ctx := context.Background()
	states := stubStates{"u1": "await_name"}
	assert.True(t, State(states, "await_name")(ctx, textMessage(t, "Bob")))
	assert.False(t, State(states, "await_age")(ctx, textMessage(t, "Bob")))
	assert.True(t, StateRegexp(states, "^await_")(ctx, textMessage(t, "Bob")))

	other := decode(t, events.NewMessage, `{"chat":{"chatId":"u9","type":"private"},"from":{"userId":"u9"}}`)
	assert.False(t, State(states, "await_name")(ctx, other))
}

func TestCombinators(t *testing.T) {
	ctx := context.Background()
	ev := textMessage(t, "/start")
	assert.True(t, And(Message(), Command("/start"))(ctx, ev))
	assert.False(t, And(Message(), Command("/help"))(ctx, ev))
	assert.True(t, Or(Command("/help"), Command("/start"))(ctx, ev))
	assert.True(t, Not(File())(ctx, ev))
	assert.True(t, Any()(ctx, ev))
}
