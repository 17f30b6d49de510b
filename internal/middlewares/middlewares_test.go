package middlewares

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"request_pipeline/internal/observability"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	config := DefaultLoggerConfig()
	config.Logger = logger
	h := observability.RequestID(&observability.RequestIDConfig{Generator: func() string { return "req-1" }})(
		Logger(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("missing"))
		})),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items?page=2", nil))

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"status":404`, `"request_id":"req-1"`, `"cache":"HIT"`, `"query":"page=2"`, `"response_size":7`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestLogger_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultLoggerConfig()
	config.Logger = slog.New(slog.NewJSONHandler(&buf, nil))

	Logger(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if buf.Len() != 0 {
		t.Fatalf("skipped path logged: %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name        string
		development bool
		leak        bool
	}{
		{"production", false, false},
		{"development", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &RecoveryConfig{
				Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
				Development: tt.development,
			}
			h := Recovery(config)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("controller exploded")
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rr.Code)
			}
			if got := strings.Contains(rr.Body.String(), "controller exploded"); got != tt.leak {
				t.Fatalf("panic value in body = %v: %s", got, rr.Body.String())
			}
		})
	}
}

func TestBuildHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	BuildHeaders(BuildConfig{Version: "1.4.0", ID: "abc123"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Build-Version") != "1.4.0" || rr.Header().Get("X-Build-Id") != "abc123" {
		t.Fatalf("headers = %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	BuildHeaders(BuildConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, ok := rr.Header()["X-Build-Id"]; ok {
		t.Fatalf("empty build id sent")
	}
}

func TestHostCheck(t *testing.T) {
	h := HostCheck(&HostConfig{Hosts: []string{"api.example.com", "*.internal.example"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	tests := []struct {
		host string
		code int
	}{
		{"api.example.com", http.StatusOK},
		{"API.example.com:8080", http.StatusOK},
		{"a.internal.example", http.StatusOK},
		{"internal.example", http.StatusBadRequest},
		{"evil.com", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
		})
	}
}

func TestHostCheck_Disabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything"
	rr := httptest.NewRecorder()
	HostCheck(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })).
		ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTimeout(t *testing.T) {
	var deadline bool
	h := Timeout(&TimeoutConfig{Timeout: time.Second, SkipTimeoutForPaths: []string{"/export"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, deadline = r.Context().Deadline()
		}),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items", nil))
	if !deadline {
		t.Fatalf("request context has no deadline")
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/export", nil))
	if deadline {
		t.Fatalf("skipped path got a deadline")
	}
}
