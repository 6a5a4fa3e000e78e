package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/vkbot/core/logger"
)

const component = "state"

// ExpireFunc is called for each swept user when notifications are enabled.
type ExpireFunc func(ctx context.Context, user string)

// Options configure a Memory store. Zero durations take the package defaults.
type Options struct {
	Expire        time.Duration
	UpdateExpire  time.Duration
	SweepInterval time.Duration
	// Notify enables OnExpire after an entry is swept.
	Notify   bool
	OnExpire ExpireFunc
	Now      func() time.Time
}

// Memory is the in-process Store.
type Memory struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory(opts Options) *Memory {
	if opts.Expire <= 0 {
		opts.Expire = DefaultExpire
	}
	if opts.UpdateExpire <= 0 {
		opts.UpdateExpire = DefaultUpdateExpire
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Memory{opts: opts, entries: make(map[string]*Entry)}
}

// SetOnExpire replaces the expiry hook. It must be called before Run.
func (m *Memory) SetOnExpire(fn ExpireFunc, notify bool) {
	m.mu.Lock()
	m.opts.OnExpire = fn
	m.opts.Notify = notify
	m.mu.Unlock()
}

func (m *Memory) Set(ctx context.Context, sd StateData) error {
	if sd.User == "" {
		return fmt.Errorf("state: empty user")
	}
	ttl := sd.Expire
	if ttl <= 0 {
		ttl = m.opts.Expire
	}

	m.mu.Lock()
	e, ok := m.entries[sd.User]
	if !ok {
		e = &Entry{User: sd.User, Data: map[string]any{}, Additional: map[string]any{}}
		m.entries[sd.User] = e
	}
	e.State = sd.State
	merge(e.Data, sd.Data)
	merge(e.Additional, sd.Additional)
	e.ExpireAt = m.opts.Now().Add(ttl)
	m.mu.Unlock()

	logger.Debug(ctx, component, "state.set",
		slog.String("user_id", sd.User),
		slog.String("state", sd.State),
		slog.Bool("created", !ok))
	return nil
}

func (m *Memory) Entry(_ context.Context, user string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[user]
	if !ok {
		return Entry{}, false, nil
	}
	return e.clone(), true, nil
}

func (m *Memory) State(ctx context.Context, user string) (string, bool, error) {
	e, ok, err := m.Entry(ctx, user)
	return e.State, ok, err
}

func (m *Memory) Data(ctx context.Context, user string) (map[string]any, bool, error) {
	e, ok, err := m.Entry(ctx, user)
	if !ok {
		return nil, false, err
	}
	return e.Data, true, err
}

func (m *Memory) Additional(ctx context.Context, user string) (map[string]any, bool, error) {
	e, ok, err := m.Entry(ctx, user)
	if !ok {
		return nil, false, err
	}
	return e.Additional, true, err
}

func (m *Memory) UpdateState(ctx context.Context, user, state string) error {
	return m.update(ctx, "state.update_state", user, func(e *Entry) { e.State = state })
}

func (m *Memory) UpdateData(ctx context.Context, user string, data map[string]any) error {
	return m.update(ctx, "state.update_data", user, func(e *Entry) { merge(e.Data, data) })
}

func (m *Memory) UpdateAdditional(ctx context.Context, user string, additional map[string]any) error {
	return m.update(ctx, "state.update_additional", user, func(e *Entry) { merge(e.Additional, additional) })
}

func (m *Memory) update(ctx context.Context, event, user string, apply func(*Entry)) error {
	m.mu.Lock()
	e, ok := m.entries[user]
	if ok {
		apply(e)
		e.ExpireAt = m.opts.Now().Add(m.opts.UpdateExpire)
	}
	m.mu.Unlock()

	if !ok {
		logger.Warn(ctx, component, event,
			slog.String("status", "skip"),
			slog.String("user_id", user),
			logger.Err(ErrUserNotFound))
		return fmt.Errorf("%w: %s", ErrUserNotFound, user)
	}
	return nil
}

func (m *Memory) Mutate(ctx context.Context, user string, fn func(*Entry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[user]
	if !ok {
		logger.Warn(ctx, component, "state.mutate",
			slog.String("status", "skip"),
			slog.String("user_id", user),
			logger.Err(ErrUserNotFound))
		return fmt.Errorf("%w: %s", ErrUserNotFound, user)
	}
	draft := e.clone()
	if err := fn(&draft); err != nil {
		return err
	}
	draft.User = user
	draft.ExpireAt = m.opts.Now().Add(m.opts.UpdateExpire)
	if draft.Data == nil {
		draft.Data = map[string]any{}
	}
	if draft.Additional == nil {
		draft.Additional = map[string]any{}
	}
	m.entries[user] = &draft
	return nil
}

func (m *Memory) Delete(ctx context.Context, user string) error {
	m.mu.Lock()
	_, ok := m.entries[user]
	delete(m.entries, user)
	m.mu.Unlock()
	if ok {
		logger.Debug(ctx, component, "state.delete", slog.String("user_id", user))
	}
	return nil
}

// Len is the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Sweep(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	now := m.opts.Now()
	var expired []string
	for user, e := range m.entries {
		if now.After(e.ExpireAt) {
			expired = append(expired, user)
			delete(m.entries, user)
		}
	}
	notify, hook := m.opts.Notify, m.opts.OnExpire
	m.mu.Unlock()

	sort.Strings(expired)
	for _, user := range expired {
		logger.Info(ctx, component, "state.expired", slog.String("user_id", user))
		if notify && hook != nil {
			hook(ctx, user)
		}
	}
	return expired, nil
}

// Run sweeps every SweepInterval until ctx is done.
func (m *Memory) Run(ctx context.Context) {
	t := time.NewTicker(m.opts.SweepInterval)
	defer t.Stop()
	logger.Debug(ctx, component, "sweeper.start", slog.Duration("interval", m.opts.SweepInterval))
	for {
		select {
		case <-ctx.Done():
			logger.Debug(ctx, component, "sweeper.stop")
			return
		case <-t.C:
			removed, _ := m.Sweep(ctx)
			if len(removed) > 0 || logger.ShouldSampleDebug() {
				logger.Debug(ctx, component, "sweeper.tick",
					slog.Int("count", len(removed)),
					slog.Int("entries", m.Len()))
			}
		}
	}
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
