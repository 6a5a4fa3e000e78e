// Package deps resolves per-invocation handler dependencies.
//
// Providers are registered once under a Key. Each handler invocation resolves the keys it declares
// into a fresh Set; nothing is cached between invocations. Scoped providers hand back a release
// function that Set.Close runs in reverse acquisition order.
package deps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Key names a dependency.
type Key string

// ErrDuplicate is returned when a key is registered twice.
var ErrDuplicate = errors.New("deps: key already registered")

// ReleaseFunc tears down a scoped value.
type ReleaseFunc func(context.Context) error

// Provider produces a dependency value for one invocation.
type Provider interface {
	Provide(ctx context.Context) (any, ReleaseFunc, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (any, ReleaseFunc, error)

// Provide calls f.
func (f ProviderFunc) Provide(ctx context.Context) (any, ReleaseFunc, error) { return f(ctx) }

// Value always provides v.
func Value(v any) Provider {
	return ProviderFunc(func(context.Context) (any, ReleaseFunc, error) { return v, nil, nil })
}

// Func wraps a synchronous constructor.
func Func[T any](fn func() (T, error)) Provider {
	return ProviderFunc(func(context.Context) (any, ReleaseFunc, error) {
		v, err := fn()
		return v, nil, err
	})
}

// Async wraps a constructor that may block and must observe ctx.
func Async[T any](fn func(context.Context) (T, error)) Provider {
	return ProviderFunc(func(ctx context.Context) (any, ReleaseFunc, error) {
		v, err := fn(ctx)
		return v, nil, err
	})
}

// Scoped wraps a resource acquired before the handler runs and released after it returns.
func Scoped[T any](acquire func(context.Context) (T, error), release func(context.Context, T) error) Provider {
	return ProviderFunc(func(ctx context.Context) (any, ReleaseFunc, error) {
		v, err := acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		if release == nil {
			return v, nil, nil
		}
		return v, func(ctx context.Context) error { return release(ctx, v) }, nil
	})
}

// Registry holds providers by key. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[Key]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Key]Provider)}
}

// Register binds key to p.
func (r *Registry) Register(key Key, p Provider) error {
	if key == "" || p == nil {
		return fmt.Errorf("deps: empty key or nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	r.providers[key] = p
	return nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[key]
	return ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Missing returns the keys that have no provider.
func (r *Registry) Missing(keys []Key) []Key {
	var out []Key
	for _, k := range keys {
		if !r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Resolve provides every registered key in order. Unregistered keys are skipped.
// On failure the values acquired so far are released and the error is returned.
func (r *Registry) Resolve(ctx context.Context, keys []Key) (set *Set, err error) {
	set = &Set{values: make(map[Key]any, len(keys))}
	for _, k := range keys {
		r.mu.RLock()
		p, ok := r.providers[k]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if _, dup := set.values[k]; dup {
			continue
		}

		v, release, perr := provide(ctx, k, p)
		if perr != nil {
			if cerr := set.Close(ctx); cerr != nil {
				perr = errors.Join(perr, cerr)
			}
			return nil, perr
		}
		set.values[k] = v
		if release != nil {
			set.releases = append(set.releases, release)
		}
	}
	return set, nil
}

func provide(ctx context.Context, k Key, p Provider) (v any, release ReleaseFunc, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("deps: provider %s panicked: %v", k, rec)
		}
	}()
	v, release, err = p.Provide(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("deps: provide %s: %w", k, err)
	}
	return v, release, nil
}

// Set is the resolved dependencies of one invocation.
type Set struct {
	values   map[Key]any
	releases []ReleaseFunc
	closed   bool
	mu       sync.Mutex
}

// Lookup returns the value for key.
func (s *Set) Lookup(key Key) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Len is the number of resolved values.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Close releases scoped values in reverse order. Later calls are no-ops.
func (s *Set) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := safeRelease(ctx, s.releases[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeRelease(ctx context.Context, fn ReleaseFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("deps: release panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// Get returns the value for key typed as T.
func Get[T any](s *Set, key Key) (T, bool) {
	var zero T
	v, ok := s.Lookup(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
