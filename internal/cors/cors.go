package cors

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"request_pipeline/internal/hooks"
	"request_pipeline/internal/route"
	"request_pipeline/internal/web"
)

// Options holds cross-origin configuration for one responder.
type Options struct {
	// Disabled turns the engine off for every route of the responder.
	Disabled bool

	// Origin is the static Access-Control-Allow-Origin value.
	// Empty echoes the request Origin.
	Origin string

	// OriginFunc computes the allowed origin per request. An empty result
	// means the origin is not allowed. Takes precedence over Origin.
	OriginFunc func(ctx *web.Context) (string, error)

	// Credentials emits Access-Control-Allow-Credentials: true.
	Credentials bool

	// CredentialsFunc decides credentials per request. Takes precedence
	// over Credentials.
	CredentialsFunc func(ctx *web.Context) (bool, error)

	// ExposeHeaders defines response headers clients can access.
	ExposeHeaders []string

	// AllowHeaders answers preflights. If empty, echoes back
	// Access-Control-Request-Headers.
	AllowHeaders []string

	// MaxAge indicates how long (seconds) preflight results can be cached.
	// 0 omits the header.
	MaxAge int

	// KeepHeadersOnError keeps CORS headers on responses with status >= 500.
	// Default: true
	KeepHeadersOnError *bool

	Logger *slog.Logger
}

// Negotiation is the outcome of origin negotiation for a request. A nil
// *Negotiation means no cross-origin headers are emitted.
type Negotiation struct {
	Origin      string
	Credentials bool
}

// RouteSource exposes the route tree used for preflight method aggregation.
type RouteSource interface {
	Routes() []route.Node
}

// Engine implements cross-origin handling for the responder named name.
type Engine struct {
	name   string
	opts   Options
	routes RouteSource
	logger *slog.Logger

	exposeHeaders string
	allowHeaders  string
	keepOnError   bool
}

// New creates the engine for a responder. opts may be nil.
func New(name string, opts *Options, routes RouteSource) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keep := true
	if opts.KeepHeadersOnError != nil {
		keep = *opts.KeepHeadersOnError
	}

	if opts.Credentials && opts.Origin == "*" {
		logger.Warn("CORS: credentials with wildcard origin (*) will be rejected by browsers", "responder", name)
	}

	return &Engine{
		name:          name,
		opts:          *opts,
		routes:        routes,
		logger:        logger,
		exposeHeaders: strings.Join(opts.ExposeHeaders, ", "),
		allowHeaders:  strings.Join(opts.AllowHeaders, ", "),
		keepOnError:   keep,
	}
}

// Name returns the responder name the engine serves.
func (e *Engine) Name() string {
	return e.name
}

// Enabled reports whether the engine is configured on.
func (e *Engine) Enabled() bool {
	return e != nil && !e.opts.Disabled
}

// Negotiate decides the origin and credentials for ctx. It always adds
// Origin to Vary when enabled.
func (e *Engine) Negotiate(ctx *web.Context) (*Negotiation, error) {
	if !e.Enabled() {
		return nil, nil
	}

	ctx.Vary("Origin")

	requestOrigin := ctx.Get("Origin")
	if requestOrigin == "" {
		return nil, nil
	}

	var origin string
	if e.opts.OriginFunc != nil {
		o, err := e.opts.OriginFunc(ctx)
		if err != nil {
			return nil, err
		}
		if o == "" {
			e.logger.Debug("CORS request from disallowed origin", "origin", requestOrigin, "path", ctx.Request.URL.Path)
			return nil, nil
		}
		origin = o
	} else if e.opts.Origin != "" {
		origin = e.opts.Origin
	} else {
		origin = requestOrigin
	}

	credentials := e.opts.Credentials
	if e.opts.CredentialsFunc != nil {
		c, err := e.opts.CredentialsFunc(ctx)
		if err != nil {
			return nil, err
		}
		credentials = c
	}

	return &Negotiation{Origin: origin, Credentials: credentials}, nil
}

// SetHeaders emits the actual-request CORS headers. Nothing is emitted for
// a nil negotiation, for routes that opted out, or for >= 500 responses
// unless KeepHeadersOnError.
func (e *Engine) SetHeaders(ctx *web.Context, n *Negotiation) {
	if n == nil {
		return
	}
	if ctx.Route != nil && !ctx.Route.CORSEnabled() {
		return
	}
	if !e.keepOnError && ctx.ResolvedStatus() >= http.StatusInternalServerError {
		return
	}

	ctx.Set("Access-Control-Allow-Origin", n.Origin)
	if n.Credentials {
		ctx.Set("Access-Control-Allow-Credentials", "true")
	}
	if e.exposeHeaders != "" {
		ctx.Set("Access-Control-Expose-Headers", e.exposeHeaders)
	}
}

// Apply negotiates and emits headers in one step.
func (e *Engine) Apply(ctx *web.Context) error {
	n, err := e.Negotiate(ctx)
	if err != nil {
		return err
	}
	e.SetHeaders(ctx, n)
	return nil
}

// Methods collects, in discovery order, the methods of every CORS-enabled
// route bound to this responder whose path matches r.
func (e *Engine) Methods(r *http.Request) []string {
	if e.routes == nil {
		return nil
	}
	return e.collect(r, e.routes.Routes(), nil)
}

func (e *Engine) collect(r *http.Request, nodes []route.Node, methods []string) []string {
	for _, n := range nodes {
		switch v := n.(type) {
		case *route.Group:
			if v.Match(r) {
				methods = e.collect(r, v.Routes, methods)
			}
		case *route.Leaf:
			if !v.Route.CORSEnabled() || v.Route.Responder.Name != e.name {
				continue
			}
			if _, ok := v.Match(r, false); !ok {
				continue
			}
			for _, m := range v.Route.Methods {
				if !contains(methods, m) {
					methods = append(methods, m)
				}
			}
		}
	}
	return methods
}

// SendOptions answers a preflight with 204. It returns false, leaving ctx
// untouched, when the request carries no Access-Control-Request-Method or
// no route serves the path.
func (e *Engine) SendOptions(ctx *web.Context, n *Negotiation) bool {
	if n == nil {
		return false
	}

	requestMethod := ctx.Get("Access-Control-Request-Method")
	if requestMethod == "" {
		return false
	}

	methods := e.Methods(ctx.Request)
	if len(methods) == 0 {
		return false
	}

	requestHeaders := ctx.Get("Access-Control-Request-Headers")
	e.logger.Debug("CORS preflight",
		"origin", ctx.Get("Origin"),
		"method", requestMethod,
		"headers", requestHeaders,
	)

	ctx.Set("Access-Control-Allow-Origin", n.Origin)
	ctx.Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
	if n.Credentials {
		ctx.Set("Access-Control-Allow-Credentials", "true")
	}
	if e.opts.MaxAge > 0 {
		ctx.Set("Access-Control-Max-Age", strconv.Itoa(e.opts.MaxAge))
	}
	if e.allowHeaders != "" {
		ctx.Set("Access-Control-Allow-Headers", e.allowHeaders)
	} else if requestHeaders != "" {
		ctx.Set("Access-Control-Allow-Headers", requestHeaders)
	}

	ctx.End(http.StatusNoContent, "", nil)
	return true
}

// IsPreflightTrigger reports whether a routing failure is a preflight for
// the responder named name: an OPTIONS request whose path matched a route
// of that responder that does not serve OPTIONS.
func IsPreflightTrigger(ev *hooks.ErrorEvent, name string) bool {
	if ev == nil || ev.Ctx == nil || ev.Route == nil {
		return false
	}
	return ev.Ctx.Method() == http.MethodOptions &&
		ev.IsMethodNotSupported() &&
		ev.Route.Responder.Name == name
}

// Attach subscribes the engine to routing failures on bus.
func (e *Engine) Attach(bus *hooks.Bus) hooks.Token {
	return bus.Subscribe(hooks.OnResponseError, func(_ context.Context, event *hooks.Event) error {
		ev, ok := event.Payload.(*hooks.ErrorEvent)
		if !ok || !IsPreflightTrigger(ev, e.name) {
			return nil
		}
		n, err := e.Negotiate(ev.Ctx)
		if err != nil {
			return err
		}
		e.SendOptions(ev.Ctx, n)
		return nil
	})
}

// AllowList returns an OriginFunc accepting the listed origins. "*" allows
// any origin; "*.example.com" allows subdomains of example.com.
func AllowList(origins ...string) func(ctx *web.Context) (string, error) {
	return func(ctx *web.Context) (string, error) {
		return allowedOrigin(ctx.Get("Origin"), origins), nil
	}
}

func allowedOrigin(origin string, allowOrigins []string) string {
	for _, allowed := range allowOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
		if strings.HasPrefix(allowed, "*.") {
			if strings.HasSuffix(origin, allowed[1:]) {
				return origin
			}
		}
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
