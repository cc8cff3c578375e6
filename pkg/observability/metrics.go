package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exported by the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics, labeled by data type (apartments, users, ...)
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Auth metrics
	AuthAttemptsTotal *prometheus.CounterVec
	RateLimitedTotal  *prometheus.CounterVec

	// Business metrics
	ReceiptsIssuedTotal   prometheus.Counter
	DocumentsExpiredTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers the service metrics on the registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apts_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"data_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"data_type"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_cache_invalidations_total",
				Help: "Total number of cache invalidations issued by mutations",
			},
			[]string{"data_type"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apts_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		ReceiptsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "apts_receipts_issued_total",
				Help: "Total number of receipts issued",
			},
		),
		DocumentsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "apts_documents_expired_total",
				Help: "Total number of documents flipped to expired by the expiry job",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "apts_db_connections_active",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "apts_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.AuthAttemptsTotal,
		m.RateLimitedTotal,
		m.ReceiptsIssuedTotal,
		m.DocumentsExpiredTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests with count and duration
// metrics. The route template (not the raw URL) should be used as the
// path label to keep cardinality bounded; mux exposes it via
// CurrentRoute.
func HTTPMetricsMiddleware(metrics *Metrics, routePath func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(recorder, r)

			path := r.URL.Path
			if routePath != nil {
				if p := routePath(r); p != "" {
					path = p
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(
				r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(
				r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
