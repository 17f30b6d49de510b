package cache

import (
	"context"
	"fmt"
	"log/slog"

	"request_pipeline/internal/web"
)

// Outcome is the result of a cache lookup.
type Outcome int

const (
	// Bypass: no cache spec, no store, or the request is not cacheable.
	Bypass Outcome = iota
	// Miss: cacheable but no entry with a matching mode.
	Miss
	// HitBody: a rendered response replaces the whole response.
	HitBody
	// HitController: a stored controller result goes to the responder.
	HitController
)

func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case HitBody:
		return "hit_body"
	case HitController:
		return "hit_controller"
	default:
		return "bypass"
	}
}

// Decision carries a lookup result through the rest of the request.
type Decision struct {
	Outcome   Outcome
	Spec      *web.CacheSpec
	Key       string
	Cacheable bool
	Entry     *Entry
}

// Hit reports whether the entry can serve the request.
func (d Decision) Hit() bool {
	return d.Outcome == HitBody || d.Outcome == HitController
}

// Recorder observes cache activity (implemented by observability).
type Recorder interface {
	CacheLookup(outcome string)
	CacheWrite(mode string, err error)
}

// Engine decides cache applicability and performs reads and writes for the
// pipeline. Store failures are logged and never fail a request.
type Engine struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
	codecs   []Codec
}

// NewEngine creates a decision engine. A nil store disables caching.
func NewEngine(store Store, logger *slog.Logger, recorder Recorder) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger, recorder: recorder}
}

// Enabled reports whether a store is configured.
func (e *Engine) Enabled() bool {
	return e != nil && e.store != nil
}

// RegisterCodec adds result codecs used by SaveController and Decode.
// Register before serving requests.
func (e *Engine) RegisterCodec(codecs ...Codec) {
	if e == nil {
		return
	}
	for _, c := range codecs {
		if c != nil {
			e.codecs = append(e.codecs, c)
		}
	}
}

// Lookup evaluates the route's cache spec against ctx and fetches the entry.
func (e *Engine) Lookup(ctx *web.Context) Decision {
	d := e.lookup(ctx)
	if e != nil && e.recorder != nil {
		e.recorder.CacheLookup(d.Outcome.String())
	}
	return d
}

func (e *Engine) lookup(ctx *web.Context) Decision {
	if ctx.Route == nil || ctx.Route.Cache == nil || !e.Enabled() {
		return Decision{Outcome: Bypass}
	}
	spec := ctx.Route.Cache
	d := Decision{Outcome: Bypass, Spec: spec}

	cacheable := true
	if spec.Cacheable != nil {
		ok, err := spec.Cacheable(ctx)
		if err != nil {
			e.logger.Error("read cache failure", "stage", "cacheable", "route", ctx.Route.Name, "error", err)
			return d
		}
		cacheable = ok
	}
	if !cacheable {
		return d
	}

	keyFn := spec.Key
	if keyFn == nil {
		keyFn = RequestKey(KeyOptions{IncludeQuery: true})
	}
	key, err := keyFn(ctx)
	if err != nil {
		e.logger.Error("read cache failure", "stage", "key", "route", ctx.Route.Name, "error", err)
		return d
	}

	d.Key = key
	d.Cacheable = true
	d.Outcome = Miss

	entry, err := e.store.Get(ctx.Context(), key)
	if err != nil {
		e.logger.Error("read cache failure", "stage", "get", "key", key, "error", err)
		return d
	}
	if entry == nil || entry.Mode != spec.Mode {
		return d
	}

	d.Entry = entry
	if spec.Mode == web.CacheModeBody {
		d.Outcome = HitBody
	} else {
		d.Outcome = HitController
	}
	return d
}

// ReplayBody copies a body-mode entry into the response.
func (e *Engine) ReplayBody(ctx *web.Context, d Decision) {
	ctx.Status = d.Entry.Status
	ctx.ContentType = d.Entry.ContentType
	ctx.Body = d.Entry.Body
}

// Decode returns the controller result held by a HitController decision.
func (e *Engine) Decode(d Decision) (any, error) {
	if d.Entry == nil {
		return nil, fmt.Errorf("decode cached result: no entry")
	}
	return d.Entry.Result(e.codecs...)
}

// SaveController stores a fresh controller result. It is a no-op unless the
// decision was a cacheable controller-mode miss with a positive TTL.
func (e *Engine) SaveController(ctx *web.Context, d Decision, result any) {
	if d.Outcome != Miss || !d.Cacheable || d.Spec.Mode != web.CacheModeController || d.Spec.TTL <= 0 {
		return
	}
	entry, err := ControllerEntry(result, e.codecs...)
	if err != nil {
		e.logger.Error("save cache failure", "key", d.Key, "error", err)
		e.recordWrite(web.CacheModeController, err)
		return
	}
	e.write(ctx.Context(), d, entry)
}

// SaveBody stores the rendered response. It is a no-op unless the decision
// was a cacheable body-mode miss with a positive TTL and the final status is
// 2xx.
func (e *Engine) SaveBody(ctx *web.Context, d Decision) {
	if d.Outcome != Miss || !d.Cacheable || d.Spec.Mode != web.CacheModeBody || d.Spec.TTL <= 0 {
		return
	}
	status := ctx.ResolvedStatus()
	if status < 200 || status > 299 {
		return
	}
	e.write(ctx.Context(), d, &Entry{
		Mode:        web.CacheModeBody,
		Status:      status,
		ContentType: ctx.ContentType,
		Body:        ctx.Body,
	})
}

func (e *Engine) write(ctx context.Context, d Decision, entry *Entry) {
	err := e.store.Set(ctx, d.Key, entry, d.Spec.TTL)
	if err != nil {
		e.logger.Error("save cache failure", "key", d.Key, "mode", string(entry.Mode), "error", err)
	} else {
		e.logger.Debug("response cached", "key", d.Key, "mode", string(entry.Mode), "ttl", d.Spec.TTL.String())
	}
	e.recordWrite(entry.Mode, err)
}

func (e *Engine) recordWrite(mode web.CacheMode, err error) {
	if e.recorder != nil {
		e.recorder.CacheWrite(string(mode), err)
	}
}
