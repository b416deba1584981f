// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/fileshare/internal/config"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

const (
	statusOK       = "ok"
	statusFail     = "fail"
	statusDegraded = "degraded"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "fileshare"

// metastoreCheckTimeout — таймаут проверки хранилища метаданных.
const metastoreCheckTimeout = 3 * time.Second

// lowDiskRatio — доля свободного места, ниже которой статус degraded.
const lowDiskRatio = 0.05

// DatabaseReadinessChecker — проверка готовности PostgreSQL.
type DatabaseReadinessChecker interface {
	CheckReady() (status string, message string)
}

// DiskUsageFunc возвращает total, used, available в байтах для директории.
type DiskUsageFunc func(path string) (total, used, available int64, err error)

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// uploadDir — директория загрузок (проверка записи и места на диске)
	uploadDir string
	// meta — хранилище метаданных
	meta metastore.Store
	// db — проверка PostgreSQL (nil для бэкенда file)
	db DatabaseReadinessChecker
	// diskUsage — получение ёмкости диска (nil — проверка отключена)
	diskUsage DiskUsageFunc
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(
	uploadDir string,
	meta metastore.Store,
	db DatabaseReadinessChecker,
	diskUsage DiskUsageFunc,
) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		uploadDir: uploadDir,
		meta:      meta,
		db:        db,
		diskUsage: diskUsage,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: запись в директорию загрузок, хранилище метаданных,
// PostgreSQL (если используется), свободное место на диске.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := statusOK
	httpStatus := http.StatusOK

	fail := func() {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}
	degrade := func() {
		if overallStatus != statusFail {
			overallStatus = statusDegraded
		}
	}

	checks := map[string]any{}

	fsCheck := h.checkFilesystem()
	checks["filesystem"] = fsCheck
	if fsCheck["status"] != statusOK {
		fail()
	}

	metaCheck := h.checkMetastore(r.Context())
	checks["metadata"] = metaCheck
	if metaCheck["status"] != statusOK {
		fail()
	}

	if h.db != nil {
		status, message := h.db.CheckReady()
		checks["postgresql"] = map[string]any{
			"status":  status,
			"message": message,
		}
		if status != statusOK {
			fail()
		}
	}

	diskCheck := h.checkDisk()
	checks["disk"] = diskCheck
	if diskCheck["status"] != statusOK {
		degrade()
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность директории загрузок на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.uploadDir == "" {
		return map[string]any{
			"status":  statusOK,
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.uploadDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория загрузок недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": statusOK,
	}
}

// checkMetastore проверяет, что хранилище метаданных отвечает.
func (h *HealthHandler) checkMetastore(ctx context.Context) map[string]any {
	if h.meta == nil {
		return map[string]any{
			"status":  statusOK,
			"message": "Проверка не настроена",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, metastoreCheckTimeout)
	defer cancel()

	count, err := h.meta.Count(ctx)
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище метаданных недоступно: " + err.Error(),
		}
	}

	return map[string]any{
		"status": statusOK,
		"files":  count,
	}
}

// checkDisk проверяет свободное место в директории загрузок.
func (h *HealthHandler) checkDisk() map[string]any {
	if h.diskUsage == nil || h.uploadDir == "" {
		return map[string]any{
			"status":  statusOK,
			"message": "Проверка не настроена",
		}
	}

	total, used, available, err := h.diskUsage(h.uploadDir)
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Не удалось получить ёмкость диска: " + err.Error(),
		}
	}

	check := map[string]any{
		"status":          statusOK,
		"total_bytes":     total,
		"used_bytes":      used,
		"available_bytes": available,
	}
	if total > 0 && float64(available) < float64(total)*lowDiskRatio {
		check["status"] = statusDegraded
		check["message"] = fmt.Sprintf("Свободно менее %.0f%% диска", lowDiskRatio*100)
	}
	return check
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
