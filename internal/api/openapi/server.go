// server.go — интерфейс обработчиков API и монтирование маршрутов в chi.
package openapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// UploadResponse — тело успешного ответа POST /upload.
type UploadResponse struct {
	ID          openapi_types.UUID `json:"id"`
	DownloadURL string             `json:"downloadUrl"`
}

// ServerInterface — обработчики всех операций из openapi.yaml.
type ServerInterface interface {
	// POST /upload
	UploadFile(w http.ResponseWriter, r *http.Request)
	// GET /d/{id}
	DownloadFile(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// GET /openapi.json
	GetOpenAPI(w http.ResponseWriter, r *http.Request)
}

// errNonCanonicalUUID — UUID записан не в каноническом виде.
var errNonCanonicalUUID = errors.New("ожидается UUID в каноническом виде (нижний регистр, с дефисами)")

// InvalidParamFormatError — параметр запроса не удалось разобрать.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("неверный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// ChiServerOptions — параметры монтирования маршрутов.
type ChiServerOptions struct {
	BaseRouter chi.Router
	// ErrorHandlerFunc вызывается, если параметры запроса не разобраны.
	// По умолчанию — 400 простым текстом.
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// serverInterfaceWrapper разбирает параметры и вызывает обработчик.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *serverInterfaceWrapper) DownloadFile(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID

	raw := chi.URLParam(r, "id")
	err := runtime.BindStyledParameterWithOptions("simple", "id", raw, &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return
	}
	// Идентификатор — точный ключ: uuid.Parse принимает и другие записи
	// (верхний регистр, без дефисов, urn:uuid:, {...}), их не считаем тем же id.
	if raw != id.String() {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: errNonCanonicalUUID})
		return
	}

	siw.handler.DownloadFile(w, r, id)
}

// HandlerFromMux монтирует маршруты API в переданный роутер.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions монтирует маршруты API с заданными параметрами.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}

	wrapper := &serverInterfaceWrapper{
		handler:          si,
		errorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Post("/upload", si.UploadFile)
	r.Get("/d/{id}", wrapper.DownloadFile)
	r.Head("/d/{id}", wrapper.DownloadFile)
	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)
	r.Get("/openapi.json", si.GetOpenAPI)

	return r
}
