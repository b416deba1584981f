package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/fileshare/internal/domain/model"
)

// uploadForTest загружает файл через UploadService и возвращает запись.
func uploadForTest(t *testing.T, env *testEnv, name string, content []byte) *model.StoredFile {
	t.Helper()
	svc := NewUploadService(env.files, env.meta, env.logger)
	result, uploadErr := svc.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(content),
		OriginalFilename: name,
		ContentType:      "text/plain",
	})
	if uploadErr != nil {
		t.Fatalf("Upload вернул ошибку: %v", uploadErr)
	}
	return result.Record
}

// readAccessLog читает журнал скачиваний; nil, если файла нет.
func readAccessLog(t *testing.T, env *testEnv) [][]string {
	t.Helper()
	f, err := os.Open(env.access.Path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("ошибка открытия журнала: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("журнал не является валидным CSV: %v", err)
	}
	return records
}

func TestServe_Success(t *testing.T) {
	env := setupTestEnv(t)
	content := []byte("hello, world")
	rec := uploadForTest(t, env, "отчёт 2025.txt", content)

	fixed := time.Date(2025, 10, 17, 8, 0, 0, 0, time.UTC)
	svc := NewDownloadService(env.files, env.meta, env.access, env.logger)
	svc.now = func() time.Time { return fixed }

	req := httptest.NewRequest(http.MethodGet, "/d/"+rec.ID, nil)
	req.RemoteAddr = "198.51.100.4:51234"
	req.Header.Set("User-Agent", `agent "x"`)
	req.Header.Set("Referer", `https://example.com/?q="a"`)
	w := httptest.NewRecorder()

	if dlErr := svc.Serve(w, req, rec.ID); dlErr != nil {
		t.Fatalf("Serve вернул ошибку: %v", dlErr)
	}

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидали 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !bytes.Equal(body, content) {
		t.Errorf("тело ответа = %q, ожидали %q", body, content)
	}

	cd := w.Header().Get("Content-Disposition")
	if cd != "attachment; filename*=utf-8''%D0%BE%D1%82%D1%87%D1%91%D1%82%202025.txt" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, ожидали text/plain", ct)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+rec.Checksum+`"` {
		t.Errorf("ETag = %q, ожидали checksum", etag)
	}

	rows := readAccessLog(t, env)
	if len(rows) != 2 {
		t.Fatalf("в журнале %d строк, ожидали заголовок + 1", len(rows))
	}
	want := []string{"2025-10-17T08:00:00.000Z", rec.ID, "198.51.100.4", `agent "x"`, `https://example.com/?q="a"`}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("поле %d журнала = %q, ожидали %q", i, rows[1][i], want[i])
		}
	}
}

func TestServe_UnknownID(t *testing.T) {
	env := setupTestEnv(t)
	svc := NewDownloadService(env.files, env.meta, env.access, env.logger)

	w := httptest.NewRecorder()
	dlErr := svc.Serve(w, httptest.NewRequest(http.MethodGet, "/d/nope", nil), "nope")
	if dlErr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if dlErr.StatusCode != http.StatusNotFound || dlErr.Message != MsgNotFound {
		t.Errorf("ошибка = %+v, ожидали 404 %q", dlErr, MsgNotFound)
	}
	if rows := readAccessLog(t, env); rows != nil {
		t.Errorf("журнал не должен создаваться для неизвестного id: %v", rows)
	}
}

// TestServe_FileMissingNotLogged фиксирует порядок: строка журнала пишется
// только после того, как найден и файл, а не только запись.
func TestServe_FileMissingNotLogged(t *testing.T) {
	env := setupTestEnv(t)
	rec := uploadForTest(t, env, "gone.txt", []byte("bye"))

	if err := os.Remove(filepath.Join(env.files.Dir(), rec.StoredName)); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}

	svc := NewDownloadService(env.files, env.meta, env.access, env.logger)
	w := httptest.NewRecorder()
	dlErr := svc.Serve(w, httptest.NewRequest(http.MethodGet, "/d/"+rec.ID, nil), rec.ID)
	if dlErr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if dlErr.StatusCode != http.StatusNotFound || dlErr.Message != MsgFileMissing {
		t.Errorf("ошибка = %+v, ожидали 404 %q", dlErr, MsgFileMissing)
	}
	if rows := readAccessLog(t, env); rows != nil {
		t.Errorf("журнал не должен пополняться при отсутствии файла: %v", rows)
	}
}

func TestServe_MetadataError(t *testing.T) {
	env := setupTestEnv(t)
	store := &failingStore{Store: env.meta, getErr: errBackend}
	svc := NewDownloadService(env.files, store, env.access, env.logger)

	dlErr := svc.Serve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/d/x", nil), "x")
	if dlErr == nil || dlErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("ожидали 500, получили %+v", dlErr)
	}
}

func TestServe_AccessLogFailureStillServes(t *testing.T) {
	env := setupTestEnv(t)
	rec := uploadForTest(t, env, "a.txt", []byte("payload"))

	// Путь журнала занят директорией — открыть файл для записи невозможно
	if err := os.Mkdir(env.access.Path(), 0o750); err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}

	svc := NewDownloadService(env.files, env.meta, env.access, env.logger)
	w := httptest.NewRecorder()
	if dlErr := svc.Serve(w, httptest.NewRequest(http.MethodGet, "/d/"+rec.ID, nil), rec.ID); dlErr != nil {
		t.Fatalf("Serve вернул ошибку: %v", dlErr)
	}
	if w.Code != http.StatusOK || w.Body.String() != "payload" {
		t.Errorf("ожидали 200 и содержимое файла, получили %d %q", w.Code, w.Body.String())
	}
}

func TestServe_Range(t *testing.T) {
	env := setupTestEnv(t)
	rec := uploadForTest(t, env, "r.txt", []byte("0123456789"))

	svc := NewDownloadService(env.files, env.meta, env.access, env.logger)
	req := httptest.NewRequest(http.MethodGet, "/d/"+rec.ID, nil)
	req.Header.Set("Range", "bytes=2-5")
	w := httptest.NewRecorder()

	if dlErr := svc.Serve(w, req, rec.ID); dlErr != nil {
		t.Fatalf("Serve вернул ошибку: %v", dlErr)
	}
	if w.Code != http.StatusPartialContent {
		t.Fatalf("статус = %d, ожидали 206", w.Code)
	}
	if w.Body.String() != "2345" {
		t.Errorf("тело = %q, ожидали 2345", w.Body.String())
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "attachment; filename=photo.jpg"},
		{"my photo.jpg", `attachment; filename="my photo.jpg"`},
		{`say "hi".txt`, `attachment; filename="say \"hi\".txt"`},
		{"", "attachment"},
	}
	for _, tt := range tests {
		if got := contentDisposition(tt.in); got != tt.want {
			t.Errorf("contentDisposition(%q) = %q, ожидали %q", tt.in, got, tt.want)
		}
	}
}
