// Пакет accesslog — журнал скачиваний в CSV-файле (только дозапись).
//
// Формат строки: timestamp,id,"ip","user_agent","referer"
// IP, User-Agent и Referer всегда в кавычках, кавычки внутри удваиваются.
// Если файла нет, перед первой строкой пишется заголовок.
package accesslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bigkaa/fileshare/internal/domain/model"
)

// Header — строка заголовка CSV.
const Header = "timestamp,id,ip,user_agent,referer\n"

// timestampLayout — ISO-8601 в UTC с миллисекундами.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Log — журнал скачиваний. Дозаписи сериализуются мьютексом.
//
// Файл открывается на каждую запись: внешний потребитель может
// ротировать или удалить журнал, и следующая запись создаст новый
// файл с заголовком.
type Log struct {
	mu   sync.Mutex
	path string
}

// New создаёт журнал. Директория файла создаётся при необходимости.
func New(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала: %w", err)
	}
	return &Log{path: path}, nil
}

// Path возвращает путь к файлу журнала.
func (l *Log) Path() string {
	return l.path
}

// Append дописывает одну строку в журнал.
func (l *Log) Append(entry model.AccessEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("ошибка открытия журнала скачиваний: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("ошибка stat журнала скачиваний: %w", err)
	}

	row := formatRow(entry)
	if info.Size() == 0 {
		row = Header + row
	}

	// Один Write на строку: с O_APPEND строка не перемешивается
	// с записями других процессов
	if _, err := f.WriteString(row); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи в журнал скачиваний: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия журнала скачиваний: %w", err)
	}
	return nil
}

// formatRow форматирует строку журнала с переводом строки в конце.
func formatRow(e model.AccessEntry) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.UTC().Format(timestampLayout))
	b.WriteByte(',')
	b.WriteString(e.ID)
	b.WriteByte(',')
	b.WriteString(quote(e.IP))
	b.WriteByte(',')
	b.WriteString(quote(e.UserAgent))
	b.WriteByte(',')
	b.WriteString(quote(e.Referer))
	b.WriteByte('\n')
	return b.String()
}

// quote заключает значение в кавычки, удваивая внутренние.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
