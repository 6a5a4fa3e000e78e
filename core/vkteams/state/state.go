// Package state keeps per-user conversation state with sliding expiry.
package state

import (
	"context"
	"errors"
	"maps"
	"time"
)

const (
	// DefaultExpire is the lifetime given by Set.
	DefaultExpire = 300 * time.Second
	// DefaultUpdateExpire is the lifetime given by the Update methods and Mutate.
	DefaultUpdateExpire = 15 * time.Second
	// DefaultSweepInterval is how often Run removes expired entries.
	DefaultSweepInterval = 60 * time.Second
)

// ErrUserNotFound is returned by updates against a user without an entry.
var ErrUserNotFound = errors.New("state: user not found")

// StateData is the input of Set. Nil maps leave stored keys untouched.
type StateData struct {
	User       string
	State      string
	Data       map[string]any
	Additional map[string]any
	// Expire overrides the store lifetime when positive.
	Expire time.Duration
}

// Entry is a stored user record. Values returned by a Store are copies.
type Entry struct {
	User       string
	State      string
	Data       map[string]any
	Additional map[string]any
	ExpireAt   time.Time
}

func (e Entry) clone() Entry {
	e.Data = maps.Clone(e.Data)
	e.Additional = maps.Clone(e.Additional)
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Additional == nil {
		e.Additional = map[string]any{}
	}
	return e
}

// Store is the contract a state backend implements. Every method is safe for concurrent use.
type Store interface {
	// Set creates the entry if needed, overwrites State, merges Data and Additional key by key
	// and extends the lifetime by the long expiry.
	Set(ctx context.Context, sd StateData) error
	Entry(ctx context.Context, user string) (Entry, bool, error)
	State(ctx context.Context, user string) (string, bool, error)
	Data(ctx context.Context, user string) (map[string]any, bool, error)
	Additional(ctx context.Context, user string) (map[string]any, bool, error)
	// UpdateState, UpdateData and UpdateAdditional only touch existing entries and
	// extend the lifetime by the short expiry. A missing user yields ErrUserNotFound.
	UpdateState(ctx context.Context, user, state string) error
	UpdateData(ctx context.Context, user string, data map[string]any) error
	UpdateAdditional(ctx context.Context, user string, additional map[string]any) error
	Delete(ctx context.Context, user string) error
	// Mutate applies fn to a copy of an existing entry and stores it atomically, extending the
	// lifetime by the short expiry. An error from fn discards the change. fn must not call the store.
	Mutate(ctx context.Context, user string, fn func(*Entry) error) error
	// Sweep removes expired entries and returns their users.
	Sweep(ctx context.Context) ([]string, error)
}
