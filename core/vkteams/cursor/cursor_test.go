package cursor

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNeverGoesBack(t *testing.T) {
	ctx := context.Background()
	var m Memory

	_, ok, err := m.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Save(ctx, 7))
	require.NoError(t, m.Save(ctx, 3))
	id, ok, err := m.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

// TestPostgres runs against VKBOT_TEST_DSN with migrations applied.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("VKBOT_TEST_DSN")
	if dsn == "" {
		t.Skip("VKBOT_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	botID := "test-" + uuid.NewString()
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM event_cursor WHERE bot_id = $1`, botID) })

	s := NewPostgres(db, botID)
	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, 42))
	require.NoError(t, s.Save(ctx, 40))
	id, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
