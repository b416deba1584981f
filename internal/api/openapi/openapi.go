// Пакет openapi — описание HTTP API сервиса и привязка маршрутов к обработчикам.
//
// Документ openapi.yaml встроен в бинарник, проверяется kin-openapi при
// старте и отдаётся как JSON на GET /openapi.json. Разбор параметров пути
// выполняется через oapi-codegen/runtime так же, как в сгенерированных обёртках.
package openapi

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// Load разбирает и валидирует встроенный документ OpenAPI.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора OpenAPI документа: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI документ невалиден: %w", err)
	}
	return doc, nil
}

// SpecHandler отдаёт документ OpenAPI в формате JSON.
// Документ сериализуется один раз при создании.
type SpecHandler struct {
	body []byte
}

// NewSpecHandler создаёт обработчик GET /openapi.json.
func NewSpecHandler(doc *openapi3.T) (*SpecHandler, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации OpenAPI документа: %w", err)
	}
	return &SpecHandler{body: body}, nil
}

// GetOpenAPI реализует endpoint /openapi.json.
func (h *SpecHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.body)
}
