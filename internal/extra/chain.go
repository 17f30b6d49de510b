package extra

import (
	"errors"
	"fmt"
	"sync"

	"request_pipeline/internal/web"
)

// ErrUndefinedMiddleware is returned when a route references a middleware
// name that was never registered.
var ErrUndefinedMiddleware = errors.New("extra middleware not defined")

// Next runs the remainder of the chain.
type Next func() error

// Handler is a request-scoped middleware. Not calling next ends the chain
// without an error.
type Handler func(ctx *web.Context, next Next, props any) error

// Registry maps middleware names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Run executes points in order. completed is false when some handler did
// not invoke its continuation. The first error aborts the chain.
func (r *Registry) Run(ctx *web.Context, points []web.MiddlewarePoint) (completed bool, err error) {
	var step func(i int) error
	step = func(i int) error {
		if i == len(points) {
			completed = true
			return nil
		}
		p := points[i]
		h, ok := r.Lookup(p.Name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUndefinedMiddleware, p.Name)
		}
		return h(ctx, func() error { return step(i + 1) }, p.Props)
	}

	if err := step(0); err != nil {
		return false, err
	}
	return completed, nil
}
