package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vkbot/core/logger"
)

const (
	loadQuery = `SELECT last_event_id FROM event_cursor WHERE bot_id = $1`
	saveQuery = `
INSERT INTO event_cursor (bot_id, last_event_id, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (bot_id) DO UPDATE
SET last_event_id = GREATEST(event_cursor.last_event_id, EXCLUDED.last_event_id),
    updated_at = now()`
)

// Postgres stores one checkpoint row per bot in the event_cursor table.
type Postgres struct {
	db    *sqlx.DB
	botID string
}

// NewPostgres binds the store to botID, usually the bot's user id or nick.
func NewPostgres(db *sqlx.DB, botID string) *Postgres {
	return &Postgres{db: db, botID: botID}
}

func (p *Postgres) Load(ctx context.Context) (int64, bool, error) {
	var id int64
	err := p.db.GetContext(ctx, &id, loadQuery, p.botID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("cursor: load %s: %w", p.botID, err)
	}
	logger.Debug(ctx, "cursor", "cursor.load",
		slog.String("bot_id", p.botID),
		slog.Int64("last_event_id", id))
	return id, true, nil
}

func (p *Postgres) Save(ctx context.Context, id int64) error {
	if _, err := p.db.ExecContext(ctx, saveQuery, p.botID, id); err != nil {
		return fmt.Errorf("cursor: save %s: %w", p.botID, err)
	}
	return nil
}
