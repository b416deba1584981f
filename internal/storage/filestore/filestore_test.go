package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// storageNamePattern — ожидаемый формат имени на диске: {unix_ms}-{random}{ext}.
var storageNamePattern = regexp.MustCompile(`^\d+-\d+(\.[A-Za-z0-9]+)?$`)

// TestNew_CreatesDirectory проверяет создание директории загрузок.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if fs.Dir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.Dir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет сохранение файла с подсчётом SHA-256.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")

	result, err := fs.SaveFile(bytes.NewReader(content), "test-photo.jpg")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	expectedHash := sha256.Sum256(content)
	if want := hex.EncodeToString(expectedHash[:]); result.Checksum != want {
		t.Errorf("checksum: ожидалось %s, получено %s", want, result.Checksum)
	}

	if !storageNamePattern.MatchString(result.StoredName) {
		t.Errorf("имя файла не соответствует формату: %s", result.StoredName)
	}
	if !strings.HasSuffix(result.StoredName, ".jpg") {
		t.Errorf("имя файла должно сохранять расширение: %s", result.StoredName)
	}
	// Оригинальное имя не должно попадать в имя на диске
	if strings.Contains(result.StoredName, "test-photo") {
		t.Errorf("имя на диске не должно содержать оригинальное имя: %s", result.StoredName)
	}

	data, err := os.ReadFile(filepath.Join(fs.Dir(), result.StoredName))
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
}

// TestSaveFile_NoTmpFile проверяет, что temp файл удалён после сохранения.
func TestSaveFile_NoTmpFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader([]byte("data")), "file.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if _, err := os.Stat(filepath.Join(fs.Dir(), result.StoredName+tmpSuffix)); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать")
	}
}

// TestSaveFile_EmptyFile проверяет сохранение пустого файла.
func TestSaveFile_EmptyFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader(nil), "empty.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if result.Size != 0 {
		t.Errorf("ожидался размер 0, получено %d", result.Size)
	}
}

// failingReader возвращает ошибку после части данных.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		n := copy(p, "partial")
		return n, nil
	}
	return 0, errors.New("соединение оборвано")
}

// TestSaveFile_ReaderError проверяет, что при ошибке чтения на диске ничего не остаётся.
func TestSaveFile_ReaderError(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if _, err := fs.SaveFile(&failingReader{}, "broken.bin"); err == nil {
		t.Fatal("ожидалась ошибка сохранения")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ошибка чтения директории: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("после ошибки директория должна быть пустой, найдено %d файлов", len(entries))
	}
}

// TestSaveFile_ConcurrentUniqueNames проверяет уникальность имён при параллельной записи.
func TestSaveFile_ConcurrentUniqueNames(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	const n = 50
	names := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fs.SaveFile(bytes.NewReader([]byte("x")), "same.txt")
			if err != nil {
				errs[i] = err
				return
			}
			names[i] = res.StoredName
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("ошибка сохранения #%d: %v", i, errs[i])
		}
		if seen[names[i]] {
			t.Fatalf("дублирующееся имя на диске: %s", names[i])
		}
		seen[names[i]] = true
	}
}

// TestOpen проверяет открытие сохранённого файла.
func TestOpen(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("read test data")
	result, err := fs.SaveFile(bytes.NewReader(content), "read-test.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	f, err := fs.Open(result.StoredName)
	if err != nil {
		t.Fatalf("ошибка открытия для чтения: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("прочитанные данные не совпадают с записанными")
	}
}

// TestOpen_NotFound проверяет ErrNotFound для несуществующих и недопустимых имён.
func TestOpen_NotFound(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	// Файл рядом с директорией загрузок не должен быть доступен через ../
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("secret"), 0o600); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	for _, name := range []string{"nonexistent.txt", "../secret.txt", "", "..", "a/b"} {
		_, err := fs.Open(name)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): ожидалась ErrNotFound, получено %v", name, err)
		}
	}
}

// TestDelete проверяет удаление файла.
func TestDelete(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	result, err := fs.SaveFile(bytes.NewReader([]byte("delete me")), "delete.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if err := fs.Delete(result.StoredName); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if _, err := fs.Stat(result.StoredName); !errors.Is(err, ErrNotFound) {
		t.Errorf("файл должен быть удалён, Stat вернул: %v", err)
	}

	// Повторное удаление — не ошибка
	if err := fs.Delete(result.StoredName); err != nil {
		t.Errorf("удаление несуществующего файла не должно быть ошибкой: %v", err)
	}
}

// TestList проверяет, что листинг пропускает служебные и временные файлы.
func TestList(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	r1, err := fs.SaveFile(bytes.NewReader([]byte("1")), "one.txt")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	r2, err := fs.SaveFile(bytes.NewReader([]byte("2")), "two")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	for _, name := range []string{".health_check", "123-456.jpg.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("ошибка записи: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o750); err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}

	names, err := fs.List()
	if err != nil {
		t.Fatalf("ошибка листинга: %v", err)
	}
	sort.Strings(names)

	want := []string{r1.StoredName, r2.StoredName}
	sort.Strings(want)

	if len(names) != len(want) {
		t.Fatalf("ожидалось %v, получено %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ожидалось %v, получено %v", want, names)
			break
		}
	}
}

// TestGenerateStorageName проверяет генерацию имени файла.
func TestGenerateStorageName(t *testing.T) {
	now := time.UnixMilli(1760688000123)

	tests := []struct {
		original string
		wantExt  string
	}{
		{"My Photo.jpg", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{"README", ""},
		{"../../etc/passwd", ""},
		{`C:\Users\me\report.PDF`, ".PDF"},
		{"evil.j/pg", ""},
		{"weird.ex t", ""},
		{"notes.tmp", ""},
		{".hidden", ".hidden"},
		{"long.abcdefghijklmnopqrstuvwxyz", ""},
	}

	for _, tt := range tests {
		name := generateStorageName(tt.original, now)

		if !strings.HasPrefix(name, "1760688000123-") {
			t.Errorf("%q: имя должно начинаться с метки времени: %s", tt.original, name)
		}
		if !storageNamePattern.MatchString(name) {
			t.Errorf("%q: имя не соответствует формату: %s", tt.original, name)
		}
		if filepath.Ext(name) != tt.wantExt {
			t.Errorf("%q: ожидалось расширение %q, имя %s", tt.original, tt.wantExt, name)
		}
	}
}

// TestFileSizeAndChecksum проверяет размер и SHA-256 сохранённого файла.
func TestFileSizeAndChecksum(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("checksum me")
	result, err := fs.SaveFile(bytes.NewReader(content), "c.bin")
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	size, err := fs.FileSize(result.StoredName)
	if err != nil {
		t.Fatalf("ошибка FileSize: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), size)
	}

	sum, err := fs.ComputeChecksum(result.StoredName)
	if err != nil {
		t.Fatalf("ошибка ComputeChecksum: %v", err)
	}
	if sum != result.Checksum {
		t.Errorf("checksum: ожидалось %s, получено %s", result.Checksum, sum)
	}

	if _, err := fs.FileSize("missing.bin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestListTemp проверяет, что ListTemp возвращает только временные файлы.
func TestListTemp(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	for _, name := range []string{"1-1.png", "1-2.png.tmp", ".hidden.tmp", "3-3.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("ошибка записи %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.tmp"), 0o750); err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}

	names, err := fs.ListTemp()
	if err != nil {
		t.Fatalf("ошибка ListTemp: %v", err)
	}
	sort.Strings(names)
	want := []string{"1-2.png.tmp", "3-3.tmp"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("ListTemp = %v, ожидалось %v", names, want)
	}

	info, err := fs.Stat("3-3.tmp")
	if err != nil {
		t.Fatalf("ошибка Stat: %v", err)
	}
	if info.Size() != 1 {
		t.Errorf("размер: ожидалось 1, получено %d", info.Size())
	}
	if _, err := fs.Stat("../3-3.tmp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat с путём: ожидалась ErrNotFound, получено %v", err)
	}
}
