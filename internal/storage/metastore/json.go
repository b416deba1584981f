package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bigkaa/fileshare/internal/domain/model"
)

// JSONStore — потокобезопасная in-memory карта id → запись,
// персистируемая в один JSON-файл.
//
// Каждая вставка под одной блокировкой: добавление в карту →
// сериализация всей карты → атомарная запись (temp → fsync → rename).
// Поэтому параллельные загрузки не теряют записи, а сбой посреди
// записи не портит уже сохранённый файл.
type JSONStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]*model.StoredFile
	logger  *slog.Logger
}

// diskRecord — запись в том виде, в котором она читается из файла.
// Файлы, созданные ранними версиями, хранят имя на диске в поле filename.
type diskRecord struct {
	model.StoredFile
	LegacyFilename string `json:"filename,omitempty"`
}

// NewJSONStore создаёт пустое хранилище. Для чтения файла вызовите Load.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		path:    path,
		records: make(map[string]*model.StoredFile),
		logger:  logger.With(slog.String("component", "metastore")),
	}
}

// Load читает карту из файла, заменяя текущее содержимое.
// Отсутствующий, нечитаемый или повреждённый файл даёт пустую карту:
// сервис стартует, а проблема пишется в лог с уровнем WARN.
func (s *JSONStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*model.StoredFile)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("Файл метаданных не найден, начинаем с пустого хранилища",
				slog.String("path", s.path),
			)
			return
		}
		s.logger.Warn("Ошибка чтения файла метаданных, начинаем с пустого хранилища",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return
	}

	var loaded map[string]*diskRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("Файл метаданных повреждён, начинаем с пустого хранилища",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return
	}

	for id, rec := range loaded {
		// null в JSON
		if rec == nil {
			continue
		}
		stored := rec.StoredFile
		if stored.StoredName == "" {
			stored.StoredName = rec.LegacyFilename
		}
		stored.ID = id
		s.records[id] = &stored
	}

	s.logger.Info("Метаданные загружены",
		slog.String("path", s.path),
		slog.Int("records", len(s.records)),
	)
}

// Get возвращает копию записи по id.
func (s *JSONStore) Get(_ context.Context, id string) (*model.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	copied := *rec
	return &copied, nil
}

// Put добавляет запись и перезаписывает файл целиком.
// Если сохранить файл не удалось, запись убирается из памяти,
// чтобы in-memory состояние не расходилось с диском.
func (s *JSONStore) Put(_ context.Context, rec *model.StoredFile) error {
	if rec.ID == "" {
		return errors.New("пустой id записи")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrConflict, rec.ID)
	}

	// Копия, чтобы внешние изменения не попадали в карту
	copied := *rec
	s.records[rec.ID] = &copied

	if err := s.persistLocked(); err != nil {
		delete(s.records, rec.ID)
		return err
	}
	return nil
}

// Count возвращает количество записей.
func (s *JSONStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// All возвращает копии всех записей.
func (s *JSONStore) All(_ context.Context) ([]*model.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.StoredFile, 0, len(s.records))
	for _, rec := range s.records {
		copied := *rec
		result = append(result, &copied)
	}
	return result, nil
}

// persistLocked атомарно записывает карту в файл.
// Паттерн: JSON → temp файл → fsync → atomic rename.
// Вызывается под s.mu.
func (s *JSONStore) persistLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}
