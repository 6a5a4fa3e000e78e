// Package cursor persists the last processed event id between restarts.
package cursor

import (
	"context"
	"sync"
)

// Store loads and saves a cursor checkpoint.
type Store interface {
	// Load returns the saved cursor; ok is false when nothing was saved yet.
	Load(ctx context.Context) (id int64, ok bool, err error)
	// Save records id. Implementations never move the checkpoint backwards.
	Save(ctx context.Context, id int64) error
}

// Memory keeps the checkpoint in process. The zero value is ready to use.
type Memory struct {
	mu  sync.Mutex
	id  int64
	set bool
}

func (m *Memory) Load(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.set, nil
}

func (m *Memory) Save(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set || id > m.id {
		m.id, m.set = id, true
	}
	return nil
}
