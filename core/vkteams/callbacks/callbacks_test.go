package callbacks

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/vkteams/events"
)

func press(t *testing.T, data string) events.Event {
	t.Helper()
	d, _ := json.Marshal(data)
	ev, err := events.Decode(events.CallbackQuery, json.RawMessage(
		`{"queryId":"q","from":{"userId":"u"},"callbackData":`+string(d)+`,"message":{"chat":{"chatId":"u"}}}`))
	require.NoError(t, err)
	return ev
}

func TestEncodeParse(t *testing.T) {
	assert.Equal(t, "page", Encode("page"))
	assert.Equal(t, "page|3|10", Encode("page", "3", "10"))

	k, p := Parse(" page |3|10")
	assert.Equal(t, "page", k)
	assert.Equal(t, "3|10", p)
}

func TestPayloadHelpers(t *testing.T) {
	ev := press(t, Encode("item", "42"))
	assert.Equal(t, "item", Key(ev))
	n, err := PayloadInt64(ev)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	a, b, err := PayloadTwoInt64(press(t, "pair|1|2"), Sep)
	require.NoError(t, err)
	assert.Equal(t, [2]int64{1, 2}, [2]int64{a, b})

	_, err = PayloadParts(press(t, "bare"), Sep)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestNonCallbackEvents(t *testing.T) {
	msg, err := events.Decode(events.NewMessage, json.RawMessage(`{"chat":{"chatId":"c"},"text":"x|y"}`))
	require.NoError(t, err)
	assert.Empty(t, Key(msg))
	assert.Empty(t, Payload(msg))
}
