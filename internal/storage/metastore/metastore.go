// Пакет metastore — хранилище метаданных загруженных файлов (id → запись).
//
// Две реализации:
//   - JSONStore — in-memory карта, целиком перезаписываемая в JSON-файл
//     при каждой вставке (бэкенд по умолчанию);
//   - PostgresStore — таблица stored_files в PostgreSQL.
//
// Записи только добавляются: обновления и удаления не поддерживаются.
package metastore

import (
	"context"
	"errors"

	"github.com/bigkaa/fileshare/internal/domain/model"
)

// Ошибки хранилища метаданных.
var (
	// ErrNotFound — запись с таким id отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким id уже существует.
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// Store — хранилище записей о загруженных файлах.
// Реализации безопасны для конкурентного использования.
type Store interface {
	// Get возвращает копию записи по id или ErrNotFound.
	Get(ctx context.Context, id string) (*model.StoredFile, error)
	// Put добавляет новую запись и синхронно сохраняет её.
	// Возвращает ErrConflict, если id уже занят.
	Put(ctx context.Context, rec *model.StoredFile) error
	// Count возвращает количество записей.
	Count(ctx context.Context) (int, error)
	// All возвращает копии всех записей (порядок не определён).
	All(ctx context.Context) ([]*model.StoredFile, error)
}
