// Package responder provides the built-in responders: JSON (with
// cross-origin support), plain text and XLSX spreadsheets.
package responder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"request_pipeline/internal/cors"
	"request_pipeline/internal/hooks"
	"request_pipeline/internal/web"
)

// JSON responder hooks.
const (
	// OnJSONResponse fires before a payload is serialized. Listeners may
	// mutate the payload.
	OnJSONResponse = "onJSONResponse"

	// OnJSONResponseError fires before an error is rendered. Listeners may
	// replace the rendered payload with Override.
	OnJSONResponseError = "onJSONResponseError"
)

const jsonContentType = "application/json; charset=utf-8"

// Payload is a JSON body with its status.
type Payload struct {
	Status int
	Body   any
}

// NewPayload creates a payload. A zero status means 200.
func NewPayload(body any, status int) *Payload {
	if status == 0 {
		status = http.StatusOK
	}
	return &Payload{Status: status, Body: body}
}

// ErrorBody is the default rendering of a failure.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSONEvent is the OnJSONResponse payload.
type JSONEvent struct {
	Ctx     *web.Context
	Payload *Payload
}

// JSONErrorEvent is the OnJSONResponseError payload.
type JSONErrorEvent struct {
	Ctx *web.Context
	Err error

	payload *Payload
}

// Override replaces the rendered error response.
func (e *JSONErrorEvent) Override(body any, status int) {
	if p, ok := body.(*Payload); ok {
		e.payload = p
		return
	}
	e.payload = NewPayload(body, status)
}

// Overwritten reports whether a listener called Override.
func (e *JSONErrorEvent) Overwritten() bool {
	return e.payload != nil
}

// JSONConfig holds JSON responder configuration
type JSONConfig struct {
	// CORS engine for this responder; nil disables cross-origin handling.
	CORS *cors.Engine

	// Bus delivers OnJSONResponse and OnJSONResponseError.
	Bus *hooks.Bus

	// Lexicon translates the generic error message.
	Lexicon web.Lexicon

	// Done transforms every payload before it is sent. An error is
	// rendered through the error path without CORS negotiation.
	Done func(ctx *web.Context, p *Payload) (*Payload, error)

	// Error renders failures instead of the default ErrorBody.
	Error func(ctx *web.Context, err error) (*Payload, error)

	Logger *slog.Logger
}

// JSON serializes controller results as JSON.
type JSON struct {
	name   string
	config JSONConfig
	logger *slog.Logger
}

// NewJSON creates a JSON responder registered as name.
func NewJSON(name string, config JSONConfig) *JSON {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JSON{name: name, config: config, logger: logger}
}

func (j *JSON) Name() string {
	return j.name
}

// Respond renders result. A *Payload result keeps its status.
func (j *JSON) Respond(ctx *web.Context, result any, props any) error {
	p, ok := result.(*Payload)
	if !ok {
		p = NewPayload(result, http.StatusOK)
	}

	ctx.Status = p.Status
	if err := j.config.CORS.Apply(ctx); err != nil {
		return err
	}

	if j.config.Done != nil {
		next, err := j.config.Done(ctx, p)
		if err != nil {
			return j.sendError(ctx, err, false)
		}
		p = next
	}

	return j.send(ctx, p)
}

// Error renders err as JSON.
func (j *JSON) Error(ctx *web.Context, err error) error {
	return j.sendError(ctx, err, true)
}

func (j *JSON) send(ctx *web.Context, p *Payload) error {
	if j.config.Bus != nil {
		if err := j.config.Bus.Emit(ctx.Context(), OnJSONResponse, &JSONEvent{Ctx: ctx, Payload: p}); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(p.Body)
	if err != nil {
		return fmt.Errorf("encode json response: %w", err)
	}
	ctx.End(p.Status, jsonContentType, raw)
	return nil
}

func (j *JSON) sendError(ctx *web.Context, cause error, withOrigin bool) error {
	ev := &JSONErrorEvent{Ctx: ctx, Err: cause}
	if j.config.Bus != nil {
		if err := j.config.Bus.Emit(ctx.Context(), OnJSONResponseError, ev); err != nil {
			return err
		}
	}
	if ev.Overwritten() {
		return j.send(ctx, ev.payload)
	}

	if j.config.Error != nil {
		p, err := j.config.Error(ctx, cause)
		if err != nil {
			return err
		}
		return j.send(ctx, p)
	}

	body := ErrorBody{Code: web.StatusOf(cause)}
	if he, ok := web.AsError(cause); ok {
		if he.Expose {
			body.Message = he.Message
		}
		body.Details = he.Details
	}
	if body.Message == "" {
		body.Message = j.config.Lexicon.Translate(web.MessageQueryError, "Query error")
	}

	if withOrigin {
		ctx.Status = body.Code
		if err := j.config.CORS.Apply(ctx); err != nil {
			j.logger.Warn("cors negotiation failed while rendering error", "error", err)
		}
	}

	if body.Code >= http.StatusInternalServerError {
		j.logger.Error("request failed", "responder", j.name, "status", body.Code, "error", cause)
	}

	return j.send(ctx, NewPayload(body, body.Code))
}
