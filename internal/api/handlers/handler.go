// handler.go — APIHandler реализует openapi.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/fileshare/internal/api/openapi"
	"github.com/bigkaa/fileshare/internal/server"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	files   *FilesHandler
	health  *HealthHandler
	metrics *server.MetricsHandler
	spec    *openapi.SpecHandler
}

// Проверка реализации интерфейса на этапе компиляции.
var _ openapi.ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	files *FilesHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
	spec *openapi.SpecHandler,
) *APIHandler {
	return &APIHandler{
		files:   files,
		health:  health,
		metrics: metrics,
		spec:    spec,
	}
}

// --- Файлы ---

func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.files.UploadFile(w, r)
}

func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	h.files.DownloadFile(w, r, id)
}

// --- Health ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// --- Служебные ---

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.GetMetrics(w, r)
}

func (h *APIHandler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	h.spec.GetOpenAPI(w, r)
}
