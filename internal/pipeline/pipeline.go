// Package pipeline runs the request lifecycle: route hook, extra
// middleware, cache decision, controller, responder, completion hook and
// deferred body caching, with a single failure path for every stage.
package pipeline

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"request_pipeline/internal/cache"
	"request_pipeline/internal/dispatch"
	"request_pipeline/internal/extra"
	"request_pipeline/internal/hooks"
	"request_pipeline/internal/observability"
	"request_pipeline/internal/responder"
	"request_pipeline/internal/route"
	"request_pipeline/internal/web"
)

const textContentType = "text/plain; charset=utf-8"

// CacheHeader reports HIT or MISS for requests the cache engine considered.
const CacheHeader = "X-Cache"

// Route404 is the route used for unmatched requests whose method is listed.
type Route404 struct {
	Methods []string
	Route   *web.Route
}

// Config wires the pipeline collaborators. Nil fields get empty defaults.
type Config struct {
	Bus         *hooks.Bus
	Routes      *route.Tree
	Controllers *dispatch.Controllers
	Responders  *dispatch.Responders
	Middleware  *extra.Registry
	Cache       *cache.Engine
	Route404    *Route404
	Lexicon     web.Lexicon
	Metrics     *observability.Metrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

// Pipeline is an http.Handler executing the request lifecycle.
type Pipeline struct {
	bus         *hooks.Bus
	routes      *route.Tree
	controllers *dispatch.Controllers
	responders  *dispatch.Responders
	middleware  *extra.Registry
	cache       *cache.Engine
	route404    *Route404
	notFound    *web.Route
	lexicon     web.Lexicon
	metrics     *observability.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// New creates a pipeline. A "text" responder is registered when missing,
// since the built-in 404 route renders through it. The cache engine gets
// the codecs of the built-in responder result types.
func New(config Config) *Pipeline {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		bus:         config.Bus,
		routes:      config.Routes,
		controllers: config.Controllers,
		responders:  config.Responders,
		middleware:  config.Middleware,
		cache:       config.Cache,
		route404:    config.Route404,
		lexicon:     config.Lexicon,
		metrics:     config.Metrics,
		tracer:      config.Tracer,
		logger:      logger,
	}
	if p.bus == nil {
		p.bus = hooks.NewBus(logger)
	}
	if p.routes == nil {
		p.routes = route.New()
	}
	if p.controllers == nil {
		p.controllers = dispatch.NewControllers()
	}
	if p.responders == nil {
		p.responders = dispatch.NewResponders()
	}
	if _, ok := p.responders.Lookup("text"); !ok {
		p.responders.Register(responder.NewText("text", nil))
	}
	if p.middleware == nil {
		p.middleware = extra.NewRegistry()
	}
	if p.cache == nil {
		p.cache = cache.NewEngine(nil, logger, nil)
	}
	p.cache.RegisterCodec(responder.Codecs()...)
	if p.tracer == nil {
		p.tracer = otel.Tracer("request_pipeline/pipeline")
	}

	p.notFound = &web.Route{
		Name: "404",
		Controller: web.ControllerPoint{
			Handler: func(*web.Context, any) (any, error) {
				return web.NewError(http.StatusNotFound, p.lexicon.Translate(web.MessageNotFound, "Page not found")), nil
			},
		},
		Responder: web.ResponderPoint{Name: "text"},
	}

	return p
}

// Bus returns the hook bus.
func (p *Pipeline) Bus() *hooks.Bus {
	return p.bus
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := web.NewContext(r)

	res := p.routes.Resolve(r)
	switch res.Status {
	case route.Matched:
		ctx.Route = res.Route
		ctx.Params = res.Params
		p.Handle(ctx)
	case route.MethodNotAllowed:
		ctx.Params = res.Params
		p.methodNotAllowed(ctx, res)
	default:
		p.Handle(ctx)
	}

	if err := ctx.Flush(w); err != nil {
		p.logger.Debug("response write failed", "path", r.URL.Path, "error", err)
	}
}

// Handle runs the lifecycle for ctx. ctx.Route is the matched route, or nil
// when nothing matched.
func (p *Pipeline) Handle(ctx *web.Context) {
	spanCtx, span := p.tracer.Start(ctx.Context(), "pipeline.request",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.method", ctx.Method()),
			attribute.String("http.path", ctx.Request.URL.Path),
		),
	)
	ctx.WithContext(spanCtx)
	defer func() {
		status := ctx.ResolvedStatus()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if ctx.Route != nil {
			span.SetAttributes(attribute.String("pipeline.route", ctx.Route.Name))
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}()

	p.run(ctx, span)
}

func (p *Pipeline) run(ctx *web.Context, span trace.Span) {
	notFound := false
	if ctx.Route == nil {
		ctx.Status = http.StatusNotFound
		notFound = true
		if p.route404 != nil && hasMethod(p.route404.Methods, ctx.Method()) {
			ctx.Route = p.route404.Route
		} else if m := ctx.Method(); m == http.MethodGet || m == http.MethodPost {
			ctx.Route = p.notFound
		}
	}

	if err := p.bus.Emit(ctx.Context(), hooks.OnResponseRoute, &hooks.RouteEvent{Ctx: ctx, NotFound: notFound}); err != nil {
		p.fail(ctx, err)
		return
	}
	if ctx.Route == nil {
		ctx.End(http.StatusNotFound, "", nil)
		return
	}
	rt := ctx.Route

	if len(rt.Middleware) > 0 {
		start := time.Now()
		completed, err := p.middleware.Run(ctx, rt.Middleware)
		p.metrics.ObserveStage("middleware", time.Since(start))
		if err != nil {
			p.fail(ctx, err)
			return
		}
		if !completed || ctx.Ended() {
			return
		}
	}

	start := time.Now()
	d := p.cache.Lookup(ctx)
	p.metrics.ObserveStage("cache", time.Since(start))
	ctx.Cacheable = d.Cacheable

	var (
		result any
		err    error
	)
	if d.Outcome == cache.HitController {
		if result, err = p.cache.Decode(d); err != nil {
			p.logger.Error("read cache failure", "stage", "decode", "key", d.Key, "error", err)
			d.Outcome = cache.Miss
		}
	}

	span.SetAttributes(attribute.String("pipeline.cache", d.Outcome.String()))
	switch {
	case d.Hit():
		ctx.Set(CacheHeader, "HIT")
	case d.Outcome == cache.Miss:
		ctx.Set(CacheHeader, "MISS")
	}

	switch d.Outcome {
	case cache.HitBody:
		p.cache.ReplayBody(ctx, d)
		ctx.Cached = true
	case cache.HitController:
		ctx.Cached = true
		if err := p.respond(ctx, rt, result); err != nil {
			p.fail(ctx, err)
			return
		}
	}

	if !d.Hit() {
		start = time.Now()
		result, err = p.controllers.Call(ctx, rt.Controller)
		p.metrics.ObserveStage("controller", time.Since(start))
		if err != nil {
			p.fail(ctx, err)
			return
		}

		if result == nil {
			if !ctx.Ended() {
				ctx.End(http.StatusNoContent, "", nil)
			}
			return
		}

		p.cache.SaveController(ctx, d, result)

		if err := p.respond(ctx, rt, result); err != nil {
			p.fail(ctx, err)
			return
		}
	}

	p.bus.Notify(ctx.Context(), hooks.OnResponseComplete, &hooks.CompleteEvent{Ctx: ctx})

	p.cache.SaveBody(ctx, d)
}

func (p *Pipeline) respond(ctx *web.Context, rt *web.Route, result any) error {
	if err := p.bus.Emit(ctx.Context(), hooks.OnResponseController, &hooks.ControllerEvent{Ctx: ctx, Result: result}); err != nil {
		return err
	}
	start := time.Now()
	defer func() { p.metrics.ObserveStage("responder", time.Since(start)) }()
	return p.responders.Respond(ctx, result, rt.Responder)
}

// fail routes err through OnResponseError, the responder's error hook and
// finally the generic handler.
func (p *Pipeline) fail(ctx *web.Context, err error) {
	rt := ctx.Route
	p.logger.Debug("response failure", "path", ctx.Request.URL.Path, "error", err)

	ev := &hooks.ErrorEvent{Ctx: ctx, Route: rt, Err: err}
	if herr := p.bus.Emit(ctx.Context(), hooks.OnResponseError, ev); herr != nil {
		p.generic(ctx, herr)
		return
	}
	if ctx.Ended() {
		p.recordFailure(ctx)
		return
	}

	if rt != nil {
		if er, ok := p.responders.ErrorHandler(rt.Responder.Name); ok {
			rerr := er.Error(ctx, err)
			if rerr == nil {
				p.recordFailure(ctx)
				return
			}
			err = rerr
		}
	}

	p.generic(ctx, err)
}

// generic renders err as plain text. HTTP errors keep their status and, if
// exposed, their message; anything else is masked.
func (p *Pipeline) generic(ctx *web.Context, err error) {
	status := web.StatusOf(err)

	var message string
	if he, ok := web.AsError(err); ok {
		message = http.StatusText(status)
		if he.Expose && he.Message != "" {
			message = he.Message
		}
	} else {
		message = p.lexicon.Translate(web.MessageQueryError, "Query error")
	}

	if status >= http.StatusInternalServerError {
		p.logger.Error("request failed", "path", ctx.Request.URL.Path, "status", status, "error", err)
	}

	ctx.End(status, textContentType, []byte(message))
	p.recordFailure(ctx)
}

func (p *Pipeline) recordFailure(ctx *web.Context) {
	name := ""
	if ctx.Route != nil {
		name = ctx.Route.Name
	}
	p.metrics.Failure(name, ctx.ResolvedStatus())
}

// methodNotAllowed reports a path match with an unsupported method through
// OnResponseError so that listeners (CORS preflight) may answer it.
func (p *Pipeline) methodNotAllowed(ctx *web.Context, res route.Resolution) {
	ev := &hooks.ErrorEvent{
		Ctx:   ctx,
		Route: res.Route,
		Err:   web.NewError(http.StatusMethodNotAllowed, ""),
		Code:  hooks.CodeMethodNotSupported,
	}
	if err := p.bus.Emit(ctx.Context(), hooks.OnResponseError, ev); err != nil {
		p.generic(ctx, err)
		return
	}
	if ctx.Ended() {
		return
	}

	ctx.Set("Allow", strings.Join(res.Allowed, ", "))
	if ctx.Method() == http.MethodOptions {
		ctx.End(http.StatusNoContent, "", nil)
		return
	}
	ctx.End(http.StatusMethodNotAllowed, textContentType, []byte(http.StatusText(http.StatusMethodNotAllowed)))
}

func hasMethod(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
