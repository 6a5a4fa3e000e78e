// Package commands keeps slash command metadata: aliases, help text and visibility.
package commands

import (
	"fmt"
	"sort"
	"strings"
)

// Command describes a bot command. Name and Aliases are stored without the leading slash.
type Command struct {
	Name        string
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// Registry resolves command names and aliases. It is not safe for concurrent registration;
// register everything before the bot starts.
type Registry struct {
	byName map[string]*Command
	order  []*Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Normalize strips the slash, any arguments and letter case.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		text = text[:i]
	}
	return strings.ToLower(strings.TrimPrefix(text, "/"))
}

// Add registers cmd under its name and aliases.
func (r *Registry) Add(cmd Command) error {
	cmd.Name = Normalize(cmd.Name)
	if cmd.Name == "" {
		return fmt.Errorf("command name is empty")
	}
	cmd.Aliases = append([]string(nil), cmd.Aliases...)
	names := []string{cmd.Name}
	for i, a := range cmd.Aliases {
		cmd.Aliases[i] = Normalize(a)
		names = append(names, cmd.Aliases[i])
	}
	for _, n := range names {
		if _, dup := r.byName[n]; dup {
			return fmt.Errorf("command %q already registered", n)
		}
	}
	c := cmd
	for _, n := range names {
		r.byName[n] = &c
	}
	r.order = append(r.order, &c)
	return nil
}

// Lookup finds a command by message text, name or alias.
func (r *Registry) Lookup(text string) (Command, bool) {
	c, ok := r.byName[Normalize(text)]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// Triggers returns "/name" and "/alias" forms of the command registered as name.
func (r *Registry) Triggers(name string) []string {
	c, ok := r.byName[Normalize(name)]
	if !ok {
		return nil
	}
	out := []string{"/" + c.Name}
	for _, a := range c.Aliases {
		out = append(out, "/"+a)
	}
	return out
}

// List returns visible commands in registration order. Admin-only ones are included when admin is true.
func (r *Registry) List(admin bool) []Command {
	out := make([]Command, 0, len(r.order))
	for _, c := range r.order {
		if c.Hidden || (c.AdminOnly && !admin) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Help renders a "/name - description" listing sorted by name.
func (r *Registry) Help(admin bool) string {
	list := r.List(admin)
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	var b strings.Builder
	for _, c := range list {
		b.WriteString("/")
		b.WriteString(c.Name)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
