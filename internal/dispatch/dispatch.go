// Package dispatch resolves controllers and responders by name and invokes
// them for a request.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"request_pipeline/internal/web"
)

var (
	ErrUndefinedController = errors.New("controller not defined")
	ErrUndefinedResponder  = errors.New("responder not defined")
)

// Responder turns a controller result into status, content type and body.
type Responder interface {
	Name() string
	Respond(ctx *web.Context, result any, props any) error
}

// ErrorResponder is implemented by responders that render failures
// themselves.
type ErrorResponder interface {
	Error(ctx *web.Context, err error) error
}

// Controllers is a name → controller registry.
type Controllers struct {
	mu    sync.RWMutex
	items map[string]web.ControllerFunc
}

// NewControllers creates an empty controller registry.
func NewControllers() *Controllers {
	return &Controllers{items: make(map[string]web.ControllerFunc)}
}

// Register adds or replaces a controller.
func (c *Controllers) Register(name string, fn web.ControllerFunc) {
	c.mu.Lock()
	c.items[name] = fn
	c.mu.Unlock()
}

// Call invokes the controller referenced by point. Inline handlers take
// precedence over names.
func (c *Controllers) Call(ctx *web.Context, point web.ControllerPoint) (any, error) {
	if point.Handler != nil {
		return point.Handler(ctx, point.Props)
	}
	if point.Name == "" {
		return nil, fmt.Errorf("%w: empty controller name", ErrUndefinedController)
	}
	c.mu.RLock()
	fn, ok := c.items[point.Name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUndefinedController, point.Name)
	}
	return fn(ctx, point.Props)
}

// Responders is a name → responder registry.
type Responders struct {
	mu    sync.RWMutex
	items map[string]Responder
}

// NewResponders creates a registry holding rs.
func NewResponders(rs ...Responder) *Responders {
	reg := &Responders{items: make(map[string]Responder)}
	for _, r := range rs {
		reg.Register(r)
	}
	return reg
}

// Register adds or replaces a responder under its own name.
func (r *Responders) Register(res Responder) {
	r.mu.Lock()
	r.items[res.Name()] = res
	r.mu.Unlock()
}

// Lookup returns the responder registered under name.
func (r *Responders) Lookup(name string) (Responder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.items[name]
	return res, ok
}

// Respond hands result to the responder referenced by point.
func (r *Responders) Respond(ctx *web.Context, result any, point web.ResponderPoint) error {
	res, ok := r.Lookup(point.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUndefinedResponder, point.Name)
	}
	return res.Respond(ctx, result, point.Props)
}

// ErrorHandler returns the error hook of the named responder, if any.
func (r *Responders) ErrorHandler(name string) (ErrorResponder, bool) {
	res, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	er, ok := res.(ErrorResponder)
	return er, ok
}
