package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/vkbot/core/bootstrap"
	"github.com/m3rciful/vkbot/core/vkteams"
	"github.com/m3rciful/vkbot/core/vkteams/callbacks"
	"github.com/m3rciful/vkbot/core/vkteams/commands"
	"github.com/m3rciful/vkbot/core/vkteams/deps"
	"github.com/m3rciful/vkbot/core/vkteams/events"
	"github.com/m3rciful/vkbot/core/vkteams/filter"
	"github.com/m3rciful/vkbot/core/vkteams/keyboard"
	"github.com/m3rciful/vkbot/core/vkteams/middleware"
	"github.com/m3rciful/vkbot/core/vkteams/state"
)

const (
	countersKey deps.Key = "counters"

	cbCount  = "count"
	cbCancel = "cancel"

	stateAwaitName = "await_name"
)

// counters keeps per-chat button press totals.
type counters struct {
	mu sync.Mutex
	n  map[string]int
}

func newCounters() *counters { return &counters{n: map[string]int{}} }

func (c *counters) add(chat string, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n[chat] += delta
	return c.n[chat]
}

func counterKeyboard() *keyboard.Markup {
	return keyboard.New(3).Add(
		keyboard.Data("-1", callbacks.Encode(cbCount, "-1")),
		keyboard.Data("+1", callbacks.Encode(cbCount, "1")),
		keyboard.Data("+10", callbacks.Encode(cbCount, "10")),
	).Row(keyboard.Cancel(cbCancel, ""))
}

func registerEcho(_ context.Context, bot *vkteams.Bot, _ *bootstrap.Result) error {
	if err := bot.Deps().Register(countersKey, deps.Value(newCounters())); err != nil {
		return err
	}
	bot.Use(middleware.Defaults(bot.Config(), bot.State(), nil)...)

	cmds := []struct {
		cmd commands.Command
		fn  vkteams.HandlerFunc
		dep []deps.Key
	}{
		{commands.Command{Name: "start", Description: "greeting", Aliases: []string{"menu"}}, handleStart, nil},
		{commands.Command{Name: "help", Description: "list commands"}, handleHelp, nil},
		{commands.Command{Name: "counter", Description: "button counter"}, handleCounter, []deps.Key{countersKey}},
		{commands.Command{Name: "name", Description: "introduce yourself"}, handleName, nil},
		{commands.Command{Name: "stats", Description: "store size", AdminOnly: true}, handleStats, nil},
	}
	for _, c := range cmds {
		if err := bot.Command(c.cmd, c.fn, c.dep...); err != nil {
			return fmt.Errorf("command %s: %w", c.cmd.Name, err)
		}
	}

	if err := bot.OnCallback(cbCount, handleCount, countersKey); err != nil {
		return err
	}
	if err := bot.OnCallback(cbCancel, handleCancel); err != nil {
		return err
	}
	if err := bot.CallbackNotFound(func(ctx context.Context, c *vkteams.Context) error {
		return c.Answer(ctx, "this button is no longer active", false)
	}); err != nil {
		return err
	}

	return bot.Handle(
		vkteams.MessageHandler("name.input", filter.State(bot.State(), stateAwaitName), handleNameInput),
		vkteams.MessageHandler("file", filter.File(), handleFile),
		vkteams.MessageHandler("echo", filter.Not(filter.AnyCommand()), handleEcho),
		vkteams.EventHandler("members.joined", handleJoined, events.NewChatMembers),
	)
}

func handleStart(ctx context.Context, c *vkteams.Context) error {
	_, err := c.Reply(ctx, "Hi! I repeat what you write. Try /counter or /name.")
	return err
}

func handleHelp(ctx context.Context, c *vkteams.Context) error {
	_, err := c.Reply(ctx, c.Bot.Commands().Help(c.Bot.IsAdminChat(c.ChatID())))
	return err
}

func handleCounter(ctx context.Context, c *vkteams.Context) error {
	cnt, _ := deps.Get[*counters](c.Deps, countersKey)
	_, err := c.Reply(ctx, fmt.Sprintf("counter: %d", cnt.add(c.ChatID(), 0)), vkteams.WithKeyboard(counterKeyboard()))
	return err
}

func handleCount(ctx context.Context, c *vkteams.Context) error {
	delta, err := callbacks.PayloadInt(c.Event())
	if err != nil {
		return c.Answer(ctx, "bad button", true)
	}
	cnt, _ := deps.Get[*counters](c.Deps, countersKey)
	total := cnt.add(c.ChatID(), delta)
	if cb, ok := c.Event().(*events.Callback); ok && cb.Message != nil {
		if err := c.Bot.EditText(ctx, c.ChatID(), cb.Message.MsgID,
			"counter: "+strconv.Itoa(total), vkteams.WithKeyboard(counterKeyboard())); err != nil {
			return err
		}
	}
	return c.Answer(ctx, "", false)
}

func handleCancel(ctx context.Context, c *vkteams.Context) error {
	if err := c.Bot.State().Delete(ctx, c.UserKey()); err != nil {
		return err
	}
	if err := c.Answer(ctx, "cancelled", false); err != nil {
		return err
	}
	_, err := c.Reply(ctx, "Back to the main menu.")
	return err
}

func handleName(ctx context.Context, c *vkteams.Context) error {
	if err := c.Bot.State().Set(ctx, state.StateData{User: c.UserKey(), State: stateAwaitName}); err != nil {
		return err
	}
	_, err := c.Reply(ctx, "What is your name?", vkteams.WithKeyboard(keyboard.SingleCancel(cbCancel, "")))
	return err
}

func handleNameInput(ctx context.Context, c *vkteams.Context) error {
	name := strings.TrimSpace(c.Text())
	if name == "" {
		_, err := c.Reply(ctx, "Please send your name as text.")
		return err
	}
	if err := c.Bot.State().Delete(ctx, c.UserKey()); err != nil {
		return err
	}
	_, err := c.Reply(ctx, "Nice to meet you, "+name+"!")
	return err
}

func handleStats(ctx context.Context, c *vkteams.Context) error {
	_, err := c.Reply(ctx, fmt.Sprintf("sessions: %d, last event: %d", c.Bot.State().Len(), c.Bot.Poller().Cursor()))
	return err
}

func handleFile(ctx context.Context, c *vkteams.Context) error {
	msg, ok := c.Event().(*events.Message)
	if !ok {
		return nil
	}
	var ids []string
	for _, p := range msg.Parts {
		if f, ok := p.File(); ok && p.Type == events.PartFile {
			ids = append(ids, f.FileID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	info, err := c.Bot.GetFileInfo(ctx, ids[0])
	if err != nil {
		return err
	}
	_, err = c.Reply(ctx, fmt.Sprintf("got %s (%d bytes)", info.Filename, info.Size), vkteams.WithReply(msg.MsgID))
	return err
}

func handleEcho(ctx context.Context, c *vkteams.Context) error {
	text := c.Text()
	if text == "" {
		return nil
	}
	return c.Bot.SendTextAsync(ctx, c.ChatID(), text)
}

func handleJoined(ctx context.Context, c *vkteams.Context) error {
	m, ok := c.Event().(*events.Members)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(m.Users))
	for _, u := range m.Users {
		names = append(names, u.FirstName)
	}
	_, err := c.Reply(ctx, "Welcome, "+strings.Join(names, ", ")+"!")
	return err
}
