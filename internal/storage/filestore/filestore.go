// Пакет filestore — операции с загруженными файлами на диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// открытие для отдачи, удаление и листинг директории загрузок.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound — файл отсутствует в директории загрузок.
var ErrNotFound = errors.New("файл не найден")

// tmpSuffix — суффикс временных файлов, которые пишутся до атомарного rename.
const tmpSuffix = ".tmp"

// maxNameAttempts — сколько раз пробуем сгенерировать свободное имя.
const maxNameAttempts = 5

// maxExtLen — максимальная длина сохраняемого расширения (с точкой).
const maxExtLen = 16

// FileStore — управление загруженными файлами на диске.
type FileStore struct {
	// dir — директория загрузок
	dir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoredName — имя файла в директории загрузок
	StoredName string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// SaveFile записывает данные из reader на диск с подсчётом SHA-256 на лету.
// Имя на диске: {unix_ms}-{random}{ext}, расширение берётся из originalFilename.
//
// Паттерн: эксклюзивное резервирование имени → temp файл → запись + SHA-256 →
// fsync → atomic rename поверх резерва. Существующий файл никогда не
// перезаписывается: при коллизии имя генерируется заново.
// При ошибке temp файл и резерв удаляются.
func (fs *FileStore) SaveFile(reader io.Reader, originalFilename string) (*SaveResult, error) {
	storedName, err := fs.reserveName(originalFilename)
	if err != nil {
		return nil, err
	}
	fullPath := filepath.Join(fs.dir, storedName)
	tmpPath := fullPath + tmpSuffix

	cleanup := func() {
		os.Remove(tmpPath)
		os.Remove(fullPath)
	}

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		cleanup()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoredName: storedName,
		Size:       size,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// reserveName генерирует имя и создаёт пустой файл с O_EXCL,
// чтобы параллельная загрузка не могла занять то же имя.
func (fs *FileStore) reserveName(originalFilename string) (string, error) {
	for range maxNameAttempts {
		name := generateStorageName(originalFilename, time.Now())
		f, err := os.OpenFile(filepath.Join(fs.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("ошибка резервирования имени файла: %w", err)
		}
		f.Close()
		return name, nil
	}
	return "", fmt.Errorf("не удалось подобрать свободное имя файла за %d попыток", maxNameAttempts)
}

// Open открывает сохранённый файл для чтения.
// Вызывающий код обязан закрыть файл.
// Возвращает ErrNotFound, если файла нет или имя указывает за пределы директории.
func (fs *FileStore) Open(storedName string) (*os.File, error) {
	if !isPlainName(storedName) {
		return nil, fmt.Errorf("%w: недопустимое имя %q", ErrNotFound, storedName)
	}

	f, err := os.Open(filepath.Join(fs.dir, storedName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storedName)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storedName, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка stat файла %s: %w", storedName, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s является директорией", ErrNotFound, storedName)
	}

	return f, nil
}

// Delete удаляет файл с диска. Возвращает nil, если файла уже нет.
func (fs *FileStore) Delete(storedName string) error {
	if !isPlainName(storedName) {
		return fmt.Errorf("недопустимое имя файла %q", storedName)
	}
	err := os.Remove(filepath.Join(fs.dir, storedName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storedName, err)
	}
	return nil
}

// List возвращает имена всех сохранённых файлов.
// Служебные (с точкой в начале) и временные файлы пропускаются.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// ListTemp возвращает имена временных файлов (*.tmp), оставшихся
// от прерванных загрузок или записываемых прямо сейчас.
func (fs *FileStore) ListTemp() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dir, err)
	}

	names := make([]string, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Stat возвращает информацию о файле в директории загрузок.
func (fs *FileStore) Stat(name string) (os.FileInfo, error) {
	if !isPlainName(name) {
		return nil, fmt.Errorf("%w: недопустимое имя %q", ErrNotFound, name)
	}
	info, err := os.Stat(filepath.Join(fs.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("ошибка stat файла %s: %w", name, err)
	}
	return info, nil
}

// FileSize возвращает размер файла в байтах.
func (fs *FileStore) FileSize(storedName string) (int64, error) {
	info, err := fs.Stat(storedName)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ComputeChecksum вычисляет SHA-256 содержимого файла.
func (fs *FileStore) ComputeChecksum(storedName string) (string, error) {
	f, err := fs.Open(storedName)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка чтения файла %s: %w", storedName, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Dir возвращает путь к директории загрузок.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {unix_ms}-{random}{ext}
// Пример: 1760688000123-482913004.jpg
func generateStorageName(originalFilename string, now time.Time) string {
	return fmt.Sprintf("%d-%d%s", now.UnixMilli(), rand.IntN(1_000_000_000), safeExt(originalFilename))
}

// safeExt возвращает расширение исходного файла, если оно состоит
// только из букв и цифр, не длиннее maxExtLen и не совпадает с tmpSuffix.
// Иначе — пустую строку.
func safeExt(originalFilename string) string {
	// Имя от клиента может содержать путь в любой нотации
	base := originalFilename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}

	ext := filepath.Ext(base)
	if len(ext) < 2 || len(ext) > maxExtLen || strings.EqualFold(ext, tmpSuffix) {
		return ""
	}
	for _, r := range ext[1:] {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return ext
}

// isPlainName проверяет, что имя не содержит пути и не пустое.
func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
