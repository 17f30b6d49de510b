package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig holds configuration for Prometheus metrics
type MetricsConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Namespace for metrics (e.g., "pipeline")
	Namespace string

	// Buckets for latency histograms
	Buckets []float64

	// Registerer receives the collectors (default: prometheus.DefaultRegisterer)
	Registerer prometheus.Registerer

	// SkipPaths defines paths that should not be metered
	SkipPaths []string
}

// DefaultMetricsConfig returns a default metrics configuration
func DefaultMetricsConfig(namespace string) *MetricsConfig {
	return &MetricsConfig{
		Namespace: namespace,
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		SkipPaths: []string{"/metrics", "/health/live", "/health/ready"},
	}
}

// Metrics holds the Prometheus collectors of the server. All methods are
// safe on a nil *Metrics.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge

	cacheLookups  *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec

	skipPaths []string
	logger    *slog.Logger
}

// NewMetrics creates and registers the collectors
func NewMetrics(config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultMetricsConfig("pipeline")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	logger.Info("initializing prometheus metrics", "namespace", config.Namespace)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "status"},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
			},
			[]string{"method", "status"},
		),
		activeRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: "http",
				Name:      "requests_active",
				Help:      "Number of active HTTP requests",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Cache decisions by outcome",
			},
			[]string{"outcome"},
		),
		cacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: "cache",
				Name:      "writes_total",
				Help:      "Cache writes by mode and result",
			},
			[]string{"mode", "result"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: "pipeline",
				Name:      "failures_total",
				Help:      "Requests routed to the failure path",
			},
			[]string{"route", "status"},
		),
		skipPaths: config.SkipPaths,
		logger:    logger,
	}
}

// CacheLookup counts a cache decision.
func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

// CacheWrite counts a cache write attempt.
func (m *Metrics) CacheWrite(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheWrites.WithLabelValues(mode, result).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Failure counts a request that went through the failure path.
func (m *Metrics) Failure(route string, status int) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Middleware returns a Prometheus metrics middleware
func (m *Metrics) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range m.skipPaths {
				if r.URL.Path == path {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			rw := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			m.requestsTotal.WithLabelValues(r.Method, status).Inc()
			m.requestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
			m.responseSize.WithLabelValues(r.Method, status).Observe(float64(rw.bytesWritten))
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// MetricsHandler returns a Prometheus metrics HTTP handler for g, or for
// the default registry when g is nil.
// Endpoint: GET /metrics
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
