// download.go — сервис скачивания файлов с записью в журнал скачиваний.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/fileshare/internal/api/errors"
	"github.com/bigkaa/fileshare/internal/api/middleware"
	"github.com/bigkaa/fileshare/internal/domain/model"
	"github.com/bigkaa/fileshare/internal/storage/accesslog"
	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

// Тексты ответов 404 при скачивании.
const (
	MsgNotFound    = "Not found"
	MsgFileMissing = "File missing"
)

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	files  *filestore.FileStore
	meta   metastore.Store
	access *accesslog.Log
	logger *slog.Logger
	// now — источник времени для журнала (подменяется в тестах)
	now func() time.Time
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(
	files *filestore.FileStore,
	meta metastore.Store,
	access *accesslog.Log,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		files:  files,
		meta:   meta,
		access: access,
		logger: logger.With(slog.String("component", "download_service")),
		now:    time.Now,
	}
}

// DownloadError — ошибка скачивания с HTTP-кодом.
// Code пустой для ответов простым текстом.
type DownloadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// Serve отдаёт файл клиенту через http.ServeContent.
//
// Поток:
//  1. Запись метаданных по id (нет — 404 "Not found")
//  2. Открытие файла (нет — 404 "File missing")
//  3. Строка в журнал скачиваний
//  4. Отдача с Content-Disposition: attachment и оригинальным именем
//
// Строка журнала пишется только когда и запись, и файл найдены.
// Ошибки при передаче тела только логируются: ответ уже начат.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, id string) *DownloadError {
	// 1. Ищем запись
	rec, err := s.meta.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
			return &DownloadError{StatusCode: http.StatusNotFound, Message: MsgNotFound}
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка чтения метаданных",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения метаданных",
		}
	}

	// 2. Открываем файл
	file, err := s.files.Open(rec.StoredName)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
			s.logger.Warn("Файл отсутствует на диске",
				slog.String("file_id", id),
				slog.String("stored_name", rec.StoredName),
			)
			return &DownloadError{StatusCode: http.StatusNotFound, Message: MsgFileMissing}
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка открытия файла",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка получения stat файла",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return &DownloadError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	// 3. Журнал скачиваний. Сбой журнала не мешает отдаче файла.
	s.logAccess(r, id)

	// 4. Заголовки и отдача
	h := w.Header()
	if rec.ContentType != "" {
		h.Set("Content-Type", rec.ContentType)
	}
	h.Set("Content-Disposition", contentDisposition(rec.OriginalName))
	h.Set("X-Content-Type-Options", "nosniff")
	if rec.Checksum != "" {
		h.Set("ETag", fmt.Sprintf("%q", rec.Checksum))
	}

	// http.ServeContent обрабатывает Range (206), If-None-Match (304),
	// If-Modified-Since и Content-Length
	sw := &streamWriter{ResponseWriter: w}
	http.ServeContent(sw, r, rec.OriginalName, stat.ModTime(), file)

	if sw.err != nil {
		middleware.OperationsTotal.WithLabelValues("download", "stream_error").Inc()
		s.logger.Warn("Ошибка передачи файла клиенту",
			slog.String("file_id", id),
			slog.Int64("bytes_sent", sw.written),
			slog.String("error", sw.err.Error()),
		)
		return nil
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Debug("Файл скачан",
		slog.String("file_id", id),
		slog.String("filename", rec.OriginalName),
		slog.Int64("bytes_sent", sw.written),
	)

	return nil
}

// logAccess пишет строку в журнал скачиваний.
func (s *DownloadService) logAccess(r *http.Request, id string) {
	entry := model.AccessEntry{
		Timestamp: s.now(),
		ID:        id,
		IP:        ClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Referer:   r.Header.Get("Referer"),
	}

	if err := s.access.Append(entry); err != nil {
		middleware.OperationsTotal.WithLabelValues("access_log", "error").Inc()
		s.logger.Error("Ошибка записи в журнал скачиваний",
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	middleware.OperationsTotal.WithLabelValues("access_log", "success").Inc()
}

// contentDisposition формирует заголовок attachment с оригинальным именем.
// Не-ASCII имена кодируются через filename* (RFC 2231).
func contentDisposition(originalName string) string {
	if originalName == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": originalName}); v != "" {
		return v
	}
	return "attachment"
}

// streamWriter запоминает первую ошибку записи тела и число отданных байт.
type streamWriter struct {
	http.ResponseWriter
	written int64
	err     error
}

func (sw *streamWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	if err != nil && sw.err == nil {
		sw.err = err
	}
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *streamWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
