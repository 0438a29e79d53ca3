// metrics.go — Prometheus HTTP метрики API каталога.
// Регистрирует teledrive_http_requests_total и
// teledrive_http_request_duration_seconds. Пути нормализуются,
// чтобы кардинальность лейблов оставалась ограниченной.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teledrive_http_requests_total",
			Help: "Общее количество HTTP-запросов к API каталога",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teledrive_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к API каталога в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Metrics возвращает middleware сбора Prometheus метрик:
// счётчик запросов и гистограмма длительности на каждый endpoint.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath сводит неизвестные пути к одному лейблу, чтобы сканеры
// и опечатки в URL не раздували кардинальность метрик.
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files", "/api/v1/files/search", "/api/v1/files/stats":
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/{other}"
	}
	return "/{other}"
}
