package hooks

import "request_pipeline/internal/web"

// Lifecycle hook names.
const (
	// OnResponseRoute fires after route resolution, before extra middleware.
	// Critical.
	OnResponseRoute = "onResponseRoute"

	// OnResponseController fires with the controller result (fresh or
	// replayed from cache) right before the responder. Critical.
	OnResponseController = "onResponseController"

	// OnResponseComplete fires once a response was produced. Advisory.
	OnResponseComplete = "onResponseComplete"

	// OnResponseError fires on any pipeline failure and on routing
	// failures. Critical.
	OnResponseError = "onResponseError"
)

// Routing failure codes carried by ErrorEvent.Code.
const (
	CodeMethodNotSupported = "HTTP_METHOD_NOT_SUPPORTED"
)

// RouteEvent is the OnResponseRoute payload. Listeners may assign
// Ctx.Route for a request that did not match.
type RouteEvent struct {
	Ctx      *web.Context
	NotFound bool
}

// ControllerEvent is the OnResponseController payload.
type ControllerEvent struct {
	Ctx    *web.Context
	Result any
}

// CompleteEvent is the OnResponseComplete payload.
type CompleteEvent struct {
	Ctx *web.Context
}

// ErrorEvent is the OnResponseError payload. Route is the route the request
// was bound (or intended) to; Code is set for routing failures.
type ErrorEvent struct {
	Ctx   *web.Context
	Route *web.Route
	Err   error
	Code  string
}

// IsMethodNotSupported reports whether the event signals a path match with
// an unsupported method.
func (e *ErrorEvent) IsMethodNotSupported() bool {
	return e.Code == CodeMethodNotSupported
}
