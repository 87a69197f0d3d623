package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// OutboxOperations counts remote writes by collection and outcome
	OutboxOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_operations_total",
			Help: "Remote store operations by collection and result (synced, retried, failed, superseded)",
		},
		[]string{"collection", "result"},
	)

	// OutboxPending is the number of operations waiting for the remote store
	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending",
			Help: "Remote store operations waiting to be applied",
		},
	)

	// SignalsPublished counts broadcasts per signal
	SignalsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_published_total",
			Help: "Refresh signals published on the event bus",
		},
		[]string{"signal"},
	)
)

// MustRegister registers every collector with reg
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestCounter,
		RequestDurationHistogram,
		OutboxOperations,
		OutboxPending,
		SignalsPublished,
	)
}

// Middleware records request counts and durations keyed by route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		statusStr := strconv.Itoa(status)

		RequestCounter.WithLabelValues(r.Method, path, statusStr).Inc()
		RequestDurationHistogram.WithLabelValues(r.Method, path, statusStr).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the given gatherer in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
