package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"

	"request_pipeline/internal/cache"
	"request_pipeline/internal/cors"
	"request_pipeline/internal/hooks"
	"request_pipeline/internal/web"
)

func newCtx(headers map[string]string) *web.Context {
	r := httptest.NewRequest(http.MethodGet, "/items", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	ctx := web.NewContext(r)
	ctx.Route = &web.Route{Name: "items", Responder: web.ResponderPoint{Name: "json"}}
	return ctx
}

func decodeError(t *testing.T, ctx *web.Context) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(ctx.Body, &body); err != nil {
		t.Fatalf("decode %q: %v", ctx.Body, err)
	}
	return body
}

func TestJSON_Respond(t *testing.T) {
	j := NewJSON("json", JSONConfig{CORS: cors.New("json", nil, nil)})
	ctx := newCtx(map[string]string{"Origin": "https://a.example"})

	if err := j.Respond(ctx, map[string]int{"a": 1}, nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if ctx.Status != http.StatusOK || ctx.ContentType != jsonContentType || string(ctx.Body) != `{"a":1}` {
		t.Fatalf("got %d %q %q", ctx.Status, ctx.ContentType, ctx.Body)
	}
	if ctx.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Fatalf("origin not echoed")
	}
}

func TestJSON_PayloadStatus(t *testing.T) {
	j := NewJSON("json", JSONConfig{})
	ctx := newCtx(nil)

	j.Respond(ctx, NewPayload([]string{"x"}, http.StatusCreated), nil)
	if ctx.Status != http.StatusCreated || string(ctx.Body) != `["x"]` {
		t.Fatalf("got %d %q", ctx.Status, ctx.Body)
	}
}

func TestJSON_Done(t *testing.T) {
	j := NewJSON("json", JSONConfig{
		Done: func(_ *web.Context, p *Payload) (*Payload, error) {
			return NewPayload(map[string]any{"data": p.Body}, p.Status), nil
		},
	})
	ctx := newCtx(nil)
	j.Respond(ctx, 1, nil)
	if string(ctx.Body) != `{"data":1}` {
		t.Fatalf("body = %q", ctx.Body)
	}

	failing := NewJSON("json", JSONConfig{
		Done: func(*web.Context, *Payload) (*Payload, error) {
			return nil, web.NewError(http.StatusConflict, "stale")
		},
	})
	ctx = newCtx(nil)
	if err := failing.Respond(ctx, 1, nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if ctx.Status != http.StatusConflict || decodeError(t, ctx).Message != "stale" {
		t.Fatalf("got %d %q", ctx.Status, ctx.Body)
	}
}

func TestJSON_Error(t *testing.T) {
	lex := web.Lexicon{web.MessageQueryError: "Request failed"}
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"exposed http error", web.NewError(http.StatusForbidden, "nope"), http.StatusForbidden, "nope"},
		{"hidden http error", web.NewError(http.StatusServiceUnavailable, "db down"), http.StatusServiceUnavailable, "Request failed"},
		{"plain error", errors.New("sql: broken"), http.StatusInternalServerError, "Request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewJSON("json", JSONConfig{Lexicon: lex})
			ctx := newCtx(nil)
			if err := j.Error(ctx, tt.err); err != nil {
				t.Fatalf("error hook: %v", err)
			}
			body := decodeError(t, ctx)
			if ctx.Status != tt.status || body.Code != tt.status || body.Message != tt.message {
				t.Fatalf("got %d %+v", ctx.Status, body)
			}
		})
	}
}

func TestJSON_ErrorDetails(t *testing.T) {
	j := NewJSON("json", JSONConfig{})
	ctx := newCtx(nil)
	j.Error(ctx, web.NewError(http.StatusUnprocessableEntity, "invalid").WithDetails(map[string]string{"name": "required"}))

	if !bytes.Contains(ctx.Body, []byte(`"details":{"name":"required"}`)) {
		t.Fatalf("body = %q", ctx.Body)
	}
}

func TestJSON_ErrorHooks(t *testing.T) {
	bus := hooks.NewBus(nil)
	bus.Subscribe(OnJSONResponseError, func(_ context.Context, e *hooks.Event) error {
		ev := e.Payload.(*JSONErrorEvent)
		ev.Override(map[string]string{"error": ev.Err.Error()}, http.StatusTeapot)
		return nil
	})
	var seen int
	bus.Subscribe(OnJSONResponse, func(_ context.Context, e *hooks.Event) error {
		seen = e.Payload.(*JSONEvent).Payload.Status
		return nil
	})

	j := NewJSON("json", JSONConfig{Bus: bus})
	ctx := newCtx(nil)
	j.Error(ctx, errors.New("boom"))

	if ctx.Status != http.StatusTeapot || string(ctx.Body) != `{"error":"boom"}` {
		t.Fatalf("got %d %q", ctx.Status, ctx.Body)
	}
	if seen != http.StatusTeapot {
		t.Fatalf("OnJSONResponse saw %d", seen)
	}
}

func TestJSON_ErrorHandler(t *testing.T) {
	j := NewJSON("json", JSONConfig{
		Error: func(_ *web.Context, err error) (*Payload, error) {
			return NewPayload(map[string]bool{"ok": false}, http.StatusBadRequest), nil
		},
	})
	ctx := newCtx(nil)
	j.Error(ctx, errors.New("x"))
	if ctx.Status != http.StatusBadRequest || string(ctx.Body) != `{"ok":false}` {
		t.Fatalf("got %d %q", ctx.Status, ctx.Body)
	}
}

func TestJSON_ErrorDropsCORSWhenConfigured(t *testing.T) {
	off := false
	j := NewJSON("json", JSONConfig{CORS: cors.New("json", &cors.Options{KeepHeadersOnError: &off}, nil)})

	ctx := newCtx(map[string]string{"Origin": "https://a.example"})
	j.Error(ctx, errors.New("boom"))
	if ctx.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("cors headers on 500")
	}

	ctx = newCtx(map[string]string{"Origin": "https://a.example"})
	j.Error(ctx, web.NewError(http.StatusNotFound, ""))
	if ctx.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("cors headers missing on 404")
	}
}

func TestRespond_ServerErrorStatusDropsCORS(t *testing.T) {
	off := false
	engine := cors.New("json", &cors.Options{KeepHeadersOnError: &off}, nil)
	origin := map[string]string{"Origin": "https://a.example"}

	ctx := newCtx(origin)
	if err := NewJSON("json", JSONConfig{CORS: engine}).Respond(ctx, NewPayload("down", http.StatusServiceUnavailable), nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if ctx.Status != http.StatusServiceUnavailable || ctx.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("json: status %d origin %q", ctx.Status, ctx.Header().Get("Access-Control-Allow-Origin"))
	}

	ctx = newCtx(origin)
	if err := NewText("text", engine).Respond(ctx, web.NewError(http.StatusBadGateway, ""), nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if ctx.Status != http.StatusBadGateway || ctx.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("text: status %d origin %q", ctx.Status, ctx.Header().Get("Access-Control-Allow-Origin"))
	}

	ctx = newCtx(origin)
	NewJSON("json", JSONConfig{CORS: engine}).Respond(ctx, NewPayload("ok", http.StatusCreated), nil)
	if ctx.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("cors headers missing on 201")
	}
}

func TestCodecs_KeepResultTypes(t *testing.T) {
	tests := []struct {
		name   string
		result any
		check  func(t *testing.T, got any)
	}{
		{"payload", NewPayload(map[string]int{"n": 5}, http.StatusCreated), func(t *testing.T, got any) {
			p, ok := got.(*Payload)
			if !ok || p.Status != http.StatusCreated || p.Body.(map[string]any)["n"] != float64(5) {
				t.Fatalf("got %#v", got)
			}
		}},
		{"table", Table{Sheet: "Items", Columns: []string{"Name"}, Rows: [][]any{{"bolt"}}}, func(t *testing.T, got any) {
			tb, ok := got.(*Table)
			if !ok || tb.Sheet != "Items" || tb.Rows[0][0] != "bolt" {
				t.Fatalf("got %#v", got)
			}
		}},
		{"error", web.NewError(http.StatusTeapot, "short"), func(t *testing.T, got any) {
			e, ok := got.(*web.Error)
			if !ok || e.Status != http.StatusTeapot || e.Message != "short" || !e.Expose {
				t.Fatalf("got %#v", got)
			}
		}},
		{"bytes", []byte("raw"), func(t *testing.T, got any) {
			if b, ok := got.([]byte); !ok || string(b) != "raw" {
				t.Fatalf("got %#v", got)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := cache.ControllerEntry(tt.result, Codecs()...)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := entry.Result(Codecs()...)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestText_Respond(t *testing.T) {
	ctx := newCtx(nil)
	NewText("text", nil).Respond(ctx, 42, nil)
	if ctx.Status != http.StatusOK || string(ctx.Body) != "42" || ctx.ContentType != textContentType {
		t.Fatalf("got %d %q %q", ctx.Status, ctx.ContentType, ctx.Body)
	}
}

func TestXLSX_Respond(t *testing.T) {
	ctx := newCtx(nil)
	table := &Table{
		Sheet:   "Items",
		Columns: []string{"Name", "Qty"},
		Rows:    [][]any{{"bolt", 10}, {"nut", 20}},
	}
	if err := NewXLSX("xlsx").Respond(ctx, table, XLSXProps{Filename: "items.xlsx"}); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if ctx.ContentType != xlsxContentType {
		t.Fatalf("content type = %q", ctx.ContentType)
	}
	if ctx.Header().Get("Content-Disposition") != `attachment; filename="items.xlsx"` {
		t.Fatalf("disposition = %q", ctx.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(ctx.Body))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("Items", "A3"); v != "nut" {
		t.Fatalf("A3 = %q", v)
	}
}

func TestXLSX_RejectsOtherResults(t *testing.T) {
	err := NewXLSX("xlsx").Respond(newCtx(nil), "nope", nil)
	if web.StatusOf(err) != http.StatusNotAcceptable {
		t.Fatalf("err = %v", err)
	}
}
