package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/vkbot/core/bootstrap"
	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams"
)

// Options describe how to load configuration, bootstrap infrastructure and run the bot.
type Options struct {
	ConfigEnvVar string
	// ConfigPath wins over the environment variable, e.g. a --config flag.
	ConfigPath        string
	DefaultConfigPath string

	LoadConfig func(path string) (*config.Config, error)
	Bootstrap  func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	// Modules register dependencies, middlewares and handlers once the bot is built.
	Modules []bootstrap.Module
	// Bot adjusts bot options before construction.
	Bot func(*vkteams.Options)

	ShutdownLogger func() error
	// Context replaces the SIGINT/SIGTERM context.
	Context context.Context
}

// Run loads configuration, bootstraps infrastructure and runs the bot until a signal arrives.
func Run(opts Options) error {
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = config.Load
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}

	cfgPath, env := resolveConfigPath(opts)
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("cmd: loaded config is empty")
	}

	ctx := opts.Context
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
	}

	startedAt := time.Now()
	infra, err := boot(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	if infra == nil {
		infra = &bootstrap.Result{}
	}
	defer func() {
		if err := infra.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	botOpts := vkteams.Options{Config: cfg, Cursor: infra.Cursor}
	if opts.Bot != nil {
		opts.Bot(&botOpts)
	}
	prevStart, prevStop := botOpts.OnStart, botOpts.OnStop
	botOpts.OnStart = func(ctx context.Context, b *vkteams.Bot) error {
		if prevStart != nil {
			if err := prevStart(ctx, b); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))))
		return nil
	}
	botOpts.OnStop = func(ctx context.Context, b *vkteams.Bot) error {
		logger.Info(ctx, "app", "shutdown")
		if prevStop != nil {
			return prevStop(ctx, b)
		}
		return nil
	}

	bot, err := vkteams.New(botOpts)
	if err != nil {
		return fmt.Errorf("cmd: bot init failed: %w", err)
	}
	if err := bootstrap.Modules(ctx, bot, infra, opts.Modules...); err != nil {
		return fmt.Errorf("cmd: module registration failed: %w", err)
	}
	return bot.Run(ctx)
}

func resolveConfigPath(opts Options) (path, env string) {
	env = opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if opts.ConfigPath != "" {
		return opts.ConfigPath, env
	}
	if p := os.Getenv(env); p != "" {
		return p, env
	}
	return opts.DefaultConfigPath, env
}
