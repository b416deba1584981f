// Точка входа сервиса обмена файлами.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/fileshare/internal/api/handlers"
	"github.com/bigkaa/fileshare/internal/api/middleware"
	"github.com/bigkaa/fileshare/internal/api/openapi"
	"github.com/bigkaa/fileshare/internal/config"
	"github.com/bigkaa/fileshare/internal/database"
	"github.com/bigkaa/fileshare/internal/server"
	"github.com/bigkaa/fileshare/internal/service"
	"github.com/bigkaa/fileshare/internal/storage/accesslog"
	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис обмена файлами запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("metadata_backend", cfg.MetadataBackend),
		slog.String("upload_dir", cfg.UploadDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Инициализация компонентов ---

	// 1. Директория загрузок
	files, err := filestore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища файлов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Хранилище метаданных
	var (
		meta    metastore.Store
		pool    *pgxpool.Pool
		pgDB    *sql.DB
		dbCheck handlers.DatabaseReadinessChecker
	)
	switch cfg.MetadataBackend {
	case config.BackendPostgres:
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err = database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		meta = metastore.NewPostgresStore(pool)
		dbCheck = database.NewReadinessChecker(pool)

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB = stdlib.OpenDBFromPool(pool)
	default:
		jsonStore := metastore.NewJSONStore(cfg.MetadataFile, logger)
		jsonStore.Load()
		meta = jsonStore
	}

	count, err := meta.Count(ctx)
	if err != nil {
		logger.Error("Ошибка чтения метаданных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	middleware.FilesTotal.Set(float64(count))
	logger.Info("Метаданные загружены", slog.Int("files", count))

	// 3. Журнал скачиваний
	access, err := accesslog.New(cfg.AccessLogFile)
	if err != nil {
		logger.Error("Ошибка инициализации журнала скачиваний", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Описание API
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	spec, err := openapi.NewSpecHandler(doc)
	if err != nil {
		logger.Error("Ошибка подготовки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Сервисы
	uploadSvc := service.NewUploadService(files, meta, logger)
	downloadSvc := service.NewDownloadService(files, meta, access, logger)

	// Сверка диска с метаданными: при старте и по интервалу
	reconcileSvc := service.NewReconcileService(files, meta, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)

	// GC брошенных временных файлов
	var gcSvc *service.GCService
	if cfg.GCInterval > 0 {
		gcSvc = service.NewGCService(files, meta, cfg.GCInterval, cfg.GCMaxAge, logger)
		gcSvc.Start(ctx)
	}

	// topologymetrics — мониторинг PostgreSQL (только для бэкенда postgres)
	var dephealthSvc *service.DephealthService
	if pgDB != nil {
		var dephealthErr error
		dephealthSvc, dephealthErr = service.NewDephealthService(
			"fileshare",
			cfg.DephealthGroup,
			pgDB,
			cfg.DatabaseURL(),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
			dephealthSvc = nil
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. HTTP handlers и сервер
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, downloadSvc, cfg.UploadField, cfg.TrustProxy, logger),
		handlers.NewHealthHandler(files.Dir(), meta, dbCheck, getDiskUsage),
		server.NewMetricsHandler(),
		spec,
	)

	srv := server.New(cfg, logger, apiHandler)
	runErr := srv.Run()

	// Остановка фоновых процессов
	logger.Info("Остановка фоновых процессов...")
	reconcileSvc.Stop()
	if gcSvc != nil {
		gcSvc.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if pgDB != nil {
		_ = pgDB.Close()
	}
	if pool != nil {
		pool.Close()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("Сервис обмена файлами остановлен")
}
