// Пакет server — HTTP-сервер сервиса обмена файлами с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/bigkaa/fileshare/internal/api/errors"
	"github.com/bigkaa/fileshare/internal/api/middleware"
	"github.com/bigkaa/fileshare/internal/api/openapi"
	"github.com/bigkaa/fileshare/internal/config"
	"github.com/bigkaa/fileshare/internal/service"
)

// Server — HTTP-сервер сервиса обмена файлами.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// handler — реализация openapi.ServerInterface.
// Всё, что не относится к API, отдаётся как статика из cfg.PublicDir.
func New(cfg *config.Config, logger *slog.Logger, handler openapi.ServerInterface) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	openapi.HandlerWithOptions(handler, openapi.ChiServerOptions{
		BaseRouter:       router,
		ErrorHandlerFunc: invalidParamHandler,
	})

	// Статический фронтенд (без листинга директорий)
	router.Handle("/*", staticHandler(cfg.PublicDir))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		router:     router,
		logger:     logger.With(slog.String("component", "server")),
		cfg:        cfg,
	}
}

// invalidParamHandler — ответ на неразобранный параметр пути.
// Единственный параметр API — id в /d/{id}; не-UUID заведомо неизвестен.
func invalidParamHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	apierrors.PlainText(w, http.StatusNotFound, service.MsgNotFound)
}

// Handler возвращает корневой http.Handler со всеми маршрутами.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler — обработчик для /metrics, делегирующий в Prometheus.
type MetricsHandler struct {
	promHandler http.Handler
}

// NewMetricsHandler создаёт обработчик Prometheus метрик.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{
		promHandler: promhttp.Handler(),
	}
}

// GetMetrics реализует endpoint /metrics.
func (m *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m.promHandler.ServeHTTP(w, r)
}

// Run запускает HTTP-сервер и блокируется до получения сигнала
// SIGINT/SIGTERM или ошибки сервера. Выполняет graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.cfg.ShutdownTimeout),
	)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
