package cors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"request_pipeline/internal/hooks"
	"request_pipeline/internal/route"
	"request_pipeline/internal/web"
)

func leaf(pattern, responder string, methods ...string) *route.Leaf {
	return &route.Leaf{
		Pattern: pattern,
		Route: &web.Route{
			Name:      pattern,
			Responder: web.ResponderPoint{Name: responder},
			Methods:   methods,
		},
	}
}

func request(method, target string, headers map[string]string) *web.Context {
	r := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return web.NewContext(r)
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name   string
		opts   *Options
		origin string
		want   *Negotiation
	}{
		{"no origin header", nil, "", nil},
		{"echo", nil, "https://a.example", &Negotiation{Origin: "https://a.example"}},
		{"static", &Options{Origin: "https://app.example", Credentials: true}, "https://a.example",
			&Negotiation{Origin: "https://app.example", Credentials: true}},
		{"disabled", &Options{Disabled: true}, "https://a.example", nil},
		{"allow list rejects", &Options{OriginFunc: AllowList("https://b.example")}, "https://a.example", nil},
		{"allow list subdomain", &Options{OriginFunc: AllowList("*.example")}, "https://a.example",
			&Negotiation{Origin: "https://a.example"}},
		{"credentials func", &Options{CredentialsFunc: func(*web.Context) (bool, error) { return true, nil }},
			"https://a.example", &Negotiation{Origin: "https://a.example", Credentials: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := request(http.MethodGet, "/", map[string]string{"Origin": tt.origin})
			if tt.origin == "" {
				ctx = request(http.MethodGet, "/", nil)
			}
			got, err := New("json", tt.opts, nil).Negotiate(ctx)
			if err != nil {
				t.Fatalf("negotiate: %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNegotiate_AlwaysVaries(t *testing.T) {
	ctx := request(http.MethodGet, "/", nil)
	New("json", nil, nil).Negotiate(ctx)
	if ctx.Header().Get("Vary") != "Origin" {
		t.Fatalf("Vary = %q", ctx.Header().Get("Vary"))
	}
}

func TestNegotiate_FuncError(t *testing.T) {
	boom := errors.New("boom")
	e := New("json", &Options{OriginFunc: func(*web.Context) (string, error) { return "", boom }}, nil)
	_, err := e.Negotiate(request(http.MethodGet, "/", map[string]string{"Origin": "https://a.example"}))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestApply_EchoesOrigin(t *testing.T) {
	ctx := request(http.MethodGet, "/", map[string]string{"Origin": "https://a.example"})
	e := New("json", &Options{ExposeHeaders: []string{"X-Request-ID"}}, nil)
	if err := e.Apply(ctx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	h := ctx.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://a.example" || h.Get("Vary") != "Origin" {
		t.Fatalf("headers = %v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
	}
	if h.Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("credentials emitted")
	}
}

func TestSetHeaders_Skips(t *testing.T) {
	n := &Negotiation{Origin: "https://a.example"}
	off := false

	t.Run("route opted out", func(t *testing.T) {
		ctx := request(http.MethodGet, "/", nil)
		ctx.Route = &web.Route{NoCORS: true}
		New("json", nil, nil).SetHeaders(ctx, n)
		if ctx.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("headers emitted for opted-out route")
		}
	})

	t.Run("server error kept by default", func(t *testing.T) {
		ctx := request(http.MethodGet, "/", nil)
		ctx.Status = http.StatusInternalServerError
		New("json", nil, nil).SetHeaders(ctx, n)
		if ctx.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Fatalf("headers dropped on 500")
		}
	})

	t.Run("server error dropped", func(t *testing.T) {
		ctx := request(http.MethodGet, "/", nil)
		ctx.Status = http.StatusBadGateway
		New("json", &Options{KeepHeadersOnError: &off}, nil).SetHeaders(ctx, n)
		if ctx.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("headers emitted on 502")
		}
	})

	t.Run("client error kept", func(t *testing.T) {
		ctx := request(http.MethodGet, "/", nil)
		ctx.Status = http.StatusForbidden
		New("json", &Options{KeepHeadersOnError: &off}, nil).SetHeaders(ctx, n)
		if ctx.Header().Get("Access-Control-Allow-Origin") == "" {
			t.Fatalf("headers dropped on 403")
		}
	})
}

func testTree() *route.Tree {
	noCORS := leaf("/items", "json", http.MethodDelete)
	noCORS.Route.NoCORS = true
	return route.New(
		&route.Group{Prefix: "/api", Routes: []route.Node{
			leaf("/items", "json", http.MethodGet),
			&route.Group{Prefix: "/", Routes: []route.Node{
				leaf("/items", "json", http.MethodPut, http.MethodGet),
			}},
			leaf("/items", "text", http.MethodPatch),
			noCORS,
			leaf("/other", "json", http.MethodPost),
		}},
	)
}

func TestMethods_Aggregation(t *testing.T) {
	e := New("json", nil, testTree())
	got := e.Methods(httptest.NewRequest(http.MethodOptions, "/api/items", nil))
	if len(got) != 2 || got[0] != http.MethodGet || got[1] != http.MethodPut {
		t.Fatalf("methods = %v", got)
	}
}

func TestSendOptions(t *testing.T) {
	e := New("json", &Options{Credentials: true, MaxAge: 600}, testTree())
	n := &Negotiation{Origin: "https://a.example", Credentials: true}

	ctx := request(http.MethodOptions, "/api/items", map[string]string{
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	})
	if !e.SendOptions(ctx, n) {
		t.Fatalf("preflight not answered")
	}
	if ctx.Status != http.StatusNoContent || !ctx.Ended() {
		t.Fatalf("status = %d", ctx.Status)
	}
	h := ctx.Header()
	if h.Get("Access-Control-Allow-Methods") != "GET,PUT" {
		t.Fatalf("allow methods = %q", h.Get("Access-Control-Allow-Methods"))
	}
	if h.Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Fatalf("allow headers = %q", h.Get("Access-Control-Allow-Headers"))
	}
	if h.Get("Access-Control-Max-Age") != "600" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("headers = %v", h)
	}
}

func TestSendOptions_Declines(t *testing.T) {
	e := New("json", nil, testTree())
	n := &Negotiation{Origin: "https://a.example"}

	plain := request(http.MethodOptions, "/api/items", nil)
	if e.SendOptions(plain, n) || plain.Ended() {
		t.Fatalf("answered OPTIONS without Access-Control-Request-Method")
	}

	unknown := request(http.MethodOptions, "/api/missing", map[string]string{"Access-Control-Request-Method": "GET"})
	if e.SendOptions(unknown, n) || unknown.Ended() {
		t.Fatalf("answered preflight for unrouted path")
	}
}

func TestIsPreflightTrigger(t *testing.T) {
	rt := &web.Route{Responder: web.ResponderPoint{Name: "json"}}
	opts := request(http.MethodOptions, "/", nil)
	get := request(http.MethodGet, "/", nil)

	tests := []struct {
		name string
		ev   *hooks.ErrorEvent
		want bool
	}{
		{"match", &hooks.ErrorEvent{Ctx: opts, Route: rt, Code: hooks.CodeMethodNotSupported}, true},
		{"other method", &hooks.ErrorEvent{Ctx: get, Route: rt, Code: hooks.CodeMethodNotSupported}, false},
		{"other code", &hooks.ErrorEvent{Ctx: opts, Route: rt}, false},
		{"other responder", &hooks.ErrorEvent{Ctx: opts, Route: &web.Route{Responder: web.ResponderPoint{Name: "text"}}, Code: hooks.CodeMethodNotSupported}, false},
		{"no route", &hooks.ErrorEvent{Ctx: opts, Code: hooks.CodeMethodNotSupported}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPreflightTrigger(tt.ev, "json"); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttach(t *testing.T) {
	bus := hooks.NewBus(nil)
	tree := testTree()
	e := New("json", nil, tree)
	token := e.Attach(bus)

	ctx := request(http.MethodOptions, "/api/items", map[string]string{
		"Origin":                        "https://a.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	res := tree.Resolve(ctx.Request)
	ev := &hooks.ErrorEvent{Ctx: ctx, Route: res.Route, Code: hooks.CodeMethodNotSupported}
	if err := bus.Emit(context.Background(), hooks.OnResponseError, ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if ctx.Status != http.StatusNoContent {
		t.Fatalf("status = %d", ctx.Status)
	}
	if ctx.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Fatalf("origin not echoed")
	}

	if !bus.Unsubscribe(token) || bus.Has(hooks.OnResponseError) {
		t.Fatalf("unsubscribe failed")
	}
}
