package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	config := DefaultMetricsConfig("test")
	config.Registerer = reg
	return NewMetrics(config), reg
}

func TestMetrics_CacheCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.CacheLookup("miss")
	m.CacheLookup("miss")
	m.CacheLookup("hit_body")
	m.CacheWrite("body", nil)
	m.CacheWrite("controller", errors.New("down"))

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")); got != 2 {
		t.Fatalf("miss lookups = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheWrites.WithLabelValues("controller", "error")); got != 1 {
		t.Fatalf("failed writes = %v", got)
	}
}

func TestMetrics_Middleware(t *testing.T) {
	m, _ := newTestMetrics(t)
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "418")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.CacheLookup("miss")
	m.CacheWrite("body", nil)
	m.ObserveStage("controller", time.Millisecond)
	m.Failure("items", 500)

	called := false
	m.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("nil metrics middleware did not call next")
	}
}

func TestMetricsHandler(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.Failure("items", 500)

	rr := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `test_pipeline_failures_total{route="items",status="500"} 1`) {
		t.Fatalf("failure counter missing:\n%s", rr.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(&RequestIDConfig{Generator: func() string { return "generated" }})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}),
	)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "generated" || rr.Header().Get("X-Request-ID") != "generated" {
		t.Fatalf("seen = %q, header = %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "upstream" {
		t.Fatalf("upstream id not reused: %q", seen)
	}
}

func TestRequestID_DefaultGenerator(t *testing.T) {
	rr := httptest.NewRecorder()
	RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rr.Header().Get("X-Request-ID")) != 36 {
		t.Fatalf("expected uuid, got %q", rr.Header().Get("X-Request-ID"))
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthCheck
		code   int
		ready  bool
	}{
		{"no checks", nil, http.StatusOK, true},
		{"healthy cache", map[string]HealthCheck{"cache": PingCheck("cache", pinger{})}, http.StatusOK, true},
		{"cache down", map[string]HealthCheck{
			"cache": PingCheck("cache", pinger{err: errors.New("refused")}),
			"other": PingCheck("other", pinger{}),
		}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ReadinessHandler(&HealthConfig{Checks: tt.checks}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			var body struct {
				Ready  bool                   `json:"ready"`
				Checks map[string]CheckResult `json:"checks"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Ready != tt.ready || len(body.Checks) != len(tt.checks) {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestReadinessHandler_Timeout(t *testing.T) {
	slow := func(ctx context.Context) (HealthStatus, string, error) {
		time.Sleep(200 * time.Millisecond)
		return StatusHealthy, "", nil
	}
	rr := httptest.NewRecorder()
	ReadinessHandler(&HealthConfig{Checks: map[string]HealthCheck{"slow": slow}, CheckTimeout: 20 * time.Millisecond}).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	LivenessHandler(&HealthConfig{Version: "1.2.3"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"version":"1.2.3"`) {
		t.Fatalf("got %d %s", rr.Code, rr.Body.String())
	}
}
