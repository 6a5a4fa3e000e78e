package vkteams

import (
	"context"
	"errors"
)

// ErrRejected aborts dispatch when returned (or wrapped) by a middleware.
var ErrRejected = errors.New("vkteams: rejected by middleware")

// Middleware runs before handler selection. It may annotate c, replace its event, or reject it.
type Middleware interface {
	Handle(ctx context.Context, c *Context) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, c *Context) error

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, c *Context) error { return f(ctx, c) }

// Named attaches a log name to a middleware.
type Named struct {
	Name string
	Middleware
}

func middlewareName(mw Middleware) string {
	if n, ok := mw.(Named); ok && n.Name != "" {
		return n.Name
	}
	if n, ok := mw.(*Named); ok && n.Name != "" {
		return n.Name
	}
	return "middleware"
}
