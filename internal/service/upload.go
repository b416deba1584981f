// Пакет service — бизнес-логика сервиса обмена файлами.
// upload.go — сервис загрузки: файл на диск, затем запись метаданных.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/fileshare/internal/api/errors"
	"github.com/bigkaa/fileshare/internal/api/middleware"
	"github.com/bigkaa/fileshare/internal/domain/model"
	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

// maxIDAttempts — сколько раз генерируем новый id при конфликте.
const maxIDAttempts = 3

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла, переданное клиентом
	OriginalFilename string
	// ContentType — MIME-тип из заголовка multipart part
	ContentType string
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	Record *model.StoredFile
}

// UploadError — ошибка загрузки с HTTP-кодом.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	files  *filestore.FileStore
	meta   metastore.Store
	logger *slog.Logger
	// newID — генератор публичных идентификаторов (подменяется в тестах)
	newID func() string
}

// NewUploadService создаёт сервис загрузки файлов.
func NewUploadService(files *filestore.FileStore, meta metastore.Store, logger *slog.Logger) *UploadService {
	return &UploadService{
		files:  files,
		meta:   meta,
		logger: logger.With(slog.String("component", "upload_service")),
		newID:  func() string { return uuid.New().String() },
	}
}

// Upload сохраняет файл и создаёт запись метаданных.
//
// Поток:
//  1. SaveFile (streaming + SHA-256, атомарный rename)
//  2. Генерация id (UUID v4)
//  3. metastore.Put (синхронно сохраняется до ответа)
//
// Если запись метаданных не удалась, файл удаляется с диска:
// файл без записи недоступен для скачивания и только занимает место.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*UploadResult, *UploadError) {
	// 1. Сохраняем файл
	saved, err := s.files.SaveFile(params.Reader, params.OriginalFilename)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error("Ошибка сохранения файла",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	rec := &model.StoredFile{
		StoredName:   saved.StoredName,
		OriginalName: params.OriginalFilename,
		UploadedAt:   time.Now().UTC(),
		Size:         saved.Size,
		ContentType:  detectContentType(params.ContentType),
		Checksum:     saved.Checksum,
	}

	// 2-3. Генерируем id и записываем метаданные.
	// Конфликт id практически невозможен, но не должен приводить к перезаписи.
	for attempt := 1; ; attempt++ {
		rec.ID = s.newID()
		err = s.meta.Put(ctx, rec)
		if err == nil || !errors.Is(err, metastore.ErrConflict) || attempt >= maxIDAttempts {
			break
		}
		s.logger.Warn("Конфликт id при загрузке, генерируем новый",
			slog.String("file_id", rec.ID),
			slog.Int("attempt", attempt),
		)
	}
	if err != nil {
		if delErr := s.files.Delete(saved.StoredName); delErr != nil {
			s.logger.Error("Ошибка удаления файла после неудачной записи метаданных",
				slog.String("stored_name", saved.StoredName),
				slog.String("error", delErr.Error()),
			)
		}
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error("Ошибка записи метаданных",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка записи метаданных",
		}
	}

	// 4. Метрики
	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.FilesTotal.Inc()
	middleware.UploadedBytesTotal.Add(float64(saved.Size))

	s.logger.Info("Файл загружен",
		slog.String("file_id", rec.ID),
		slog.String("filename", rec.OriginalName),
		slog.String("stored_name", rec.StoredName),
		slog.Int64("size", rec.Size),
		slog.String("checksum", rec.Checksum),
	)

	return &UploadResult{Record: rec}, nil
}

// detectContentType нормализует Content-Type из заголовка multipart part.
// Если он не указан или не разбирается — application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
