package main

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiKeyHeader carries the shared secret on every protected request.
const apiKeyHeader = "X-API-KEY"

var (
	metricsOnce sync.Once
	reqTotal    *prometheus.CounterVec
	reqDuration *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		reqTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habitcards_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"})
		reqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "habitcards_http_request_duration_seconds",
			Help:    "HTTP request duration by method, path and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})
		prometheus.MustRegister(reqTotal, reqDuration)
	})
}

// metricsHandler serves the Prometheus scrape endpoint.
func metricsHandler() http.Handler {
	initMetrics()
	return promhttp.Handler()
}

// loggingMiddleware logs each request and records Prometheus counters with
// method, path, status, and duration.
func loggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	initMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{w, http.StatusOK}
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)
			status := strconv.Itoa(rw.statusCode)
			reqTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			reqDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(elapsed.Seconds())
			logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.statusCode, elapsed)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and writes the header.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// authMiddleware rejects requests whose X-API-KEY header does not equal the
// configured shared secret. It guards mutation and read alike; nothing behind
// it runs on a mismatch.
func authMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(apiKeyHeader) != apiKey {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
