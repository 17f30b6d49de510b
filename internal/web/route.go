package web

import (
	"strings"
	"time"
)

// CacheMode selects what a route caches.
type CacheMode string

const (
	// CacheModeBody caches the fully rendered response.
	CacheModeBody CacheMode = "body"
	// CacheModeController caches the raw controller result; the responder
	// renders it again on every hit.
	CacheModeController CacheMode = "controller"
)

// CacheSpec describes how responses of a route may be cached.
type CacheSpec struct {
	// TTL is the entry lifetime. Zero disables writes.
	TTL time.Duration

	Mode CacheMode

	// Cacheable decides per request whether the cache applies.
	Cacheable func(ctx *Context) (bool, error)

	// Key computes the store key for a cacheable request.
	Key func(ctx *Context) (string, error)
}

// ControllerFunc is application logic. A nil result with a nil error means
// "no content".
type ControllerFunc func(ctx *Context, props any) (any, error)

// ControllerPoint references a controller by registry name or inline handler.
type ControllerPoint struct {
	Name    string
	Handler ControllerFunc
	Props   any
}

// ResponderPoint references a registered responder.
type ResponderPoint struct {
	Name  string
	Props any
}

// MiddlewarePoint references a registered extra middleware.
type MiddlewarePoint struct {
	Name  string
	Props any
}

// Route is the resolved binding of a request. It is owned by the route tree
// and must be treated as read-only by the pipeline.
type Route struct {
	Name       string
	Controller ControllerPoint
	Responder  ResponderPoint
	Cache      *CacheSpec
	Middleware []MiddlewarePoint
	Methods    []string

	// NoCORS opts the route out of cross-origin handling.
	NoCORS bool
}

// CORSEnabled reports whether cross-origin headers may be emitted.
func (r *Route) CORSEnabled() bool {
	return r != nil && !r.NoCORS
}

// AllowsMethod reports whether method is served by the route.
func (r *Route) AllowsMethod(method string) bool {
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
