package bootstrap

import (
	"context"

	"github.com/m3rciful/vkbot/core/vkteams"
)

// Module registers dependency providers, middlewares and handlers on a bot.
type Module interface {
	Register(ctx context.Context, bot *vkteams.Bot, infra *Result) error
}

// ModuleFunc adapts a bare function to the Module interface.
type ModuleFunc func(ctx context.Context, bot *vkteams.Bot, infra *Result) error

// Register executes the underlying function.
func (f ModuleFunc) Register(ctx context.Context, bot *vkteams.Bot, infra *Result) error {
	return f(ctx, bot, infra)
}

// Modules applies mods in order and stops at the first error.
func Modules(ctx context.Context, bot *vkteams.Bot, infra *Result, mods ...Module) error {
	for _, m := range mods {
		if m == nil {
			continue
		}
		if err := m.Register(ctx, bot, infra); err != nil {
			return err
		}
	}
	return nil
}
