// Пакет model — доменные модели сервиса обмена файлами.
// StoredFile — запись о загруженном файле, используется как
// in-memory представление и как элемент JSON-маппинга на диске.
package model

import (
	"time"
)

// StoredFile — метаданные загруженного файла.
// Запись создаётся вместе с файлом при загрузке и больше не изменяется.
type StoredFile struct {
	// ID — публичный идентификатор (UUID v4), ключ поиска при скачивании.
	// В JSON-маппинге хранится как ключ объекта, поэтому в теле записи не дублируется.
	ID string `json:"-"`

	// StoredName — имя файла на диске (относительно директории загрузок).
	// Формат: {unix_ms}-{random}{ext}
	StoredName string `json:"storedName"`

	// OriginalName — имя файла, переданное клиентом. Используется только
	// как подсказка имени при скачивании, никогда для поиска на диске.
	OriginalName string `json:"originalName"`

	// UploadedAt — время загрузки (UTC)
	UploadedAt time.Time `json:"uploadedAt"`

	// Size — размер файла в байтах
	Size int64 `json:"size,omitempty"`

	// ContentType — MIME-тип из multipart part
	ContentType string `json:"contentType,omitempty"`

	// Checksum — SHA-256 хэш содержимого
	Checksum string `json:"checksum,omitempty"`
}

// AccessEntry — строка журнала скачиваний.
type AccessEntry struct {
	Timestamp time.Time
	ID        string
	IP        string
	UserAgent string
	Referer   string
}
