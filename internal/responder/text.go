package responder

import (
	"fmt"
	"net/http"

	"request_pipeline/internal/cors"
	"request_pipeline/internal/web"
)

const textContentType = "text/plain; charset=utf-8"

// Text renders results as plain text. A *web.Error result renders its
// message with its status. Text has no error hook, so failures reach the
// generic handler.
type Text struct {
	name string
	cors *cors.Engine
}

// NewText creates a text responder. engine may be nil.
func NewText(name string, engine *cors.Engine) *Text {
	return &Text{name: name, cors: engine}
}

func (t *Text) Name() string {
	return t.name
}

func (t *Text) Respond(ctx *web.Context, result any, props any) error {
	status := http.StatusOK
	var body []byte
	switch v := result.(type) {
	case *web.Error:
		status = v.Status
		body = []byte(v.Message)
	case string:
		body = []byte(v)
	case []byte:
		body = v
	case fmt.Stringer:
		body = []byte(v.String())
	default:
		body = []byte(fmt.Sprint(v))
	}

	ctx.Status = status
	if err := t.cors.Apply(ctx); err != nil {
		return err
	}

	ctx.End(status, textContentType, body)
	return nil
}
