// files.go — HTTP handlers загрузки и скачивания файлов.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/fileshare/internal/api/errors"
	"github.com/bigkaa/fileshare/internal/api/openapi"
	"github.com/bigkaa/fileshare/internal/service"
)

// maxMemory — сколько байт multipart формы держим в памяти,
// остальное net/http сбрасывает во временные файлы.
const maxMemory = 32 << 20

// msgNoFile — ответ 400, если в форме нет файла.
const msgNoFile = "No file uploaded"

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
	// uploadField — имя поля multipart формы с файлом
	uploadField string
	// trustProxy — учитывать X-Forwarded-Proto при построении ссылки
	trustProxy bool
	logger     *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	downloadSvc *service.DownloadService,
	uploadField string,
	trustProxy bool,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
		uploadField: uploadField,
		trustProxy:  trustProxy,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// UploadFile обрабатывает POST /upload.
// Multipart form: файл в поле uploadField (по умолчанию image).
// Ответ: {"id": "...", "downloadUrl": "<scheme>://<host>/d/<id>"}.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.logger.Debug("Ошибка парсинга multipart", slog.String("error", err.Error()))
		apierrors.ValidationError(w, msgNoFile)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(h.uploadField)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			h.logger.Debug("Ошибка чтения поля файла",
				slog.String("field", h.uploadField),
				slog.String("error", err.Error()),
			)
		}
		apierrors.ValidationError(w, msgNoFile)
		return
	}
	defer file.Close()

	result, uploadErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
	})
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	id, err := uuid.Parse(result.Record.ID)
	if err != nil {
		// id генерируется сервисом как UUID, сюда попасть нельзя
		apierrors.InternalError(w, "Некорректный идентификатор файла")
		return
	}

	resp := openapi.UploadResponse{
		ID:          id,
		DownloadURL: h.downloadURL(r, result.Record.ID),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// DownloadFile обрабатывает GET /d/{id}.
// Поддерживает Range requests (206) и ETag (If-None-Match → 304).
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	downloadErr := h.downloadSvc.Serve(w, r, id.String())
	if downloadErr == nil {
		return
	}
	if downloadErr.Code == "" {
		apierrors.PlainText(w, downloadErr.StatusCode, downloadErr.Message)
		return
	}
	apierrors.WriteError(w, downloadErr.StatusCode, downloadErr.Code, downloadErr.Message)
}

// downloadURL строит абсолютную ссылку на скачивание из схемы и Host запроса.
func (h *FilesHandler) downloadURL(r *http.Request, id string) string {
	return service.RequestScheme(r, h.trustProxy) + "://" + r.Host + "/d/" + id
}
