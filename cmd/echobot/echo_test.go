package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkbot/core/buildinfo"
	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/vkteams"
)

func TestCountersPerChat(t *testing.T) {
	c := newCounters()
	assert.Equal(t, 1, c.add("a", 1))
	assert.Equal(t, 11, c.add("a", 10))
	assert.Equal(t, -1, c.add("b", -1))
	assert.Equal(t, 11, c.add("a", 0))
}

func TestCounterKeyboardLayout(t *testing.T) {
	rows := counterKeyboard().Rows()
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 3)
	assert.Equal(t, "count|10", rows[0][2].CallbackData)
	assert.Equal(t, "cancel", rows[1][0].CallbackData)
}

func TestRegisterEcho(t *testing.T) {
	bot, err := vkteams.New(vkteams.Options{Config: &config.Config{
		VKTeams: config.VKTeamsConfig{Token: "t:1", URL: "http://127.0.0.1:1"},
	}})
	require.NoError(t, err)
	require.NoError(t, registerEcho(context.Background(), bot, nil))

	assert.True(t, bot.Deps().Has(countersKey))
	_, ok := bot.Commands().Lookup("/menu")
	assert.True(t, ok)
	assert.NotContains(t, bot.Commands().Help(false), "/stats")
	assert.Contains(t, bot.Commands().Help(true), "/stats")
	assert.GreaterOrEqual(t, bot.Dispatcher().Len(), 9)

	assert.Error(t, registerEcho(context.Background(), bot, nil), "second registration must collide")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, buildinfo.String(), strings.TrimSpace(out.String()))
}
