package web

import (
	"context"
	"net/http"
	"strings"
)

// Context is the per-request state shared by middleware, controllers and
// responders. It is created when the request enters the pipeline and is
// flushed to the transport once processing ends. A Context must not be shared
// between requests.
type Context struct {
	Request *http.Request

	// Status is the response status. Zero means "not set yet".
	Status int

	// ContentType is the response media type.
	ContentType string

	// Body is the serialized response body.
	Body []byte

	// Route is the matched route, nil until resolved.
	Route *Route

	// Params holds path parameters captured by the router.
	Params map[string]string

	// Cacheable reports whether the cache spec accepted this request.
	Cacheable bool

	// Cached reports whether the response was served from cache.
	Cached bool

	header http.Header
	values map[string]any
	ended  bool
	ctx    context.Context
}

// NewContext creates a request context for r.
func NewContext(r *http.Request) *Context {
	return &Context{
		Request: r,
		Params:  map[string]string{},
		header:  make(http.Header),
		values:  map[string]any{},
		ctx:     r.Context(),
	}
}

// Context returns the context.Context bound to the request.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// WithContext replaces the bound context.Context, e.g. to carry a span.
func (c *Context) WithContext(ctx context.Context) {
	c.ctx = ctx
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.Request.Method
}

// Get returns a request header value.
func (c *Context) Get(name string) string {
	return c.Request.Header.Get(name)
}

// Header returns the response header map.
func (c *Context) Header() http.Header {
	return c.header
}

// Set sets a response header.
func (c *Context) Set(name, value string) {
	c.header.Set(name, value)
}

// Vary appends field to the Vary response header unless already present.
func (c *Context) Vary(field string) {
	for _, v := range c.header.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "*" || strings.EqualFold(part, field) {
				return
			}
		}
	}
	c.header.Add("Vary", field)
}

// Param returns a path parameter.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// SetValue stores a request-scoped value (e.g. JWT claims).
func (c *Context) SetValue(key string, value any) {
	c.values[key] = value
}

// Value returns a request-scoped value.
func (c *Context) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// End finalizes the response. Later stages must not overwrite it.
func (c *Context) End(status int, contentType string, body []byte) {
	c.Status = status
	c.ContentType = contentType
	c.Body = body
	c.ended = true
}

// Ended reports whether the response was finalized.
func (c *Context) Ended() bool {
	return c.ended
}

// ResolvedStatus returns the status that will be written: an explicit one,
// otherwise 200 when a body is present and 404 when nothing was produced.
func (c *Context) ResolvedStatus() int {
	if c.Status != 0 {
		return c.Status
	}
	if c.Body != nil {
		return http.StatusOK
	}
	return http.StatusNotFound
}

// Flush writes the context state to w.
func (c *Context) Flush(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vv := range c.header {
		dst[k] = append([]string(nil), vv...)
	}
	if c.ContentType != "" {
		dst.Set("Content-Type", c.ContentType)
	}
	status := c.ResolvedStatus()
	w.WriteHeader(status)
	if len(c.Body) == 0 || c.Request.Method == http.MethodHead || status == http.StatusNoContent || status == http.StatusNotModified {
		return nil
	}
	_, err := w.Write(c.Body)
	return err
}
