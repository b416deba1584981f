// metrics.go — Prometheus HTTP метрики сервиса обмена файлами.
// Регистрирует метрики: fs_http_requests_total, fs_http_request_duration_seconds.
// Бизнес-метрики (fs_files_total, fs_operations_total и др.) обновляются
// из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису обмена файлами",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fs_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// FilesTotal — текущее количество записей в хранилище метаданных.
	FilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fs_files_total",
			Help: "Текущее количество загруженных файлов",
		},
	)

	// UploadedBytesTotal — суммарный объём принятых файлов.
	UploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fs_uploaded_bytes_total",
			Help: "Суммарный объём загруженных файлов в байтах",
		},
	)

	// OperationsTotal — общее количество файловых операций.
	// operation: upload, download, access_log; result: success, not_found, error.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fs_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath сводит путь к шаблону маршрута для предотвращения
// взрывного роста кардинальности метрик.
// /d/a1b2c3d4-e5f6-7890-abcd-ef1234567890 → /d/{id}
// Всё, что не является API, считается статикой: /*
func normalizePath(path string) string {
	switch {
	case path == "/health/live",
		path == "/health/ready",
		path == "/metrics",
		path == "/openapi.json",
		path == "/upload":
		return path
	case strings.HasPrefix(path, "/d/"):
		return "/d/{id}"
	}
	return "/*"
}
