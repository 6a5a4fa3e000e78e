package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vkbot/core/config"
	"github.com/m3rciful/vkbot/core/database"
	"github.com/m3rciful/vkbot/core/logger"
	"github.com/m3rciful/vkbot/core/vkteams/cursor"
)

// Options control the bootstrap pipeline. Nil functions use the core implementations.
type Options struct {
	Config *config.Config
	// BotID keys the cursor checkpoint row. Empty derives it from the token.
	BotID string

	LoggerInit func(*config.Config) error
	Connect    func(context.Context, database.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, database.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when the database is disabled.
	DB *sqlx.DB
	// Cursor is a Postgres checkpoint with a database, otherwise in-memory.
	Cursor cursor.Store
}

// Close releases the database pool.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and, when enabled, connects to Postgres and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if !opts.Config.Database.Enabled {
		return &Result{Cursor: &cursor.Memory{}}, nil
	}

	dbCfg := database.FromConfig(opts.Config.Database)
	connect := opts.Connect
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = database.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	botID := opts.BotID
	if botID == "" {
		botID = BotIDFromToken(opts.Config.VKTeams.Token)
	}
	return &Result{DB: db, Cursor: cursor.NewPostgres(db, botID)}, nil
}

// BotIDFromToken returns the bot id suffix of a VK Teams token ("...:<id>"), or "default".
func BotIDFromToken(token string) string {
	if i := strings.LastIndexByte(token, ':'); i >= 0 && i < len(token)-1 {
		return token[i+1:]
	}
	return "default"
}
