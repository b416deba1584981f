package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/fileshare/internal/domain/model"
	"github.com/bigkaa/fileshare/internal/storage/accesslog"
	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

// fileExists проверяет, что файл есть в директории загрузок.
func fileExists(files *filestore.FileStore, name string) bool {
	_, err := files.Stat(name)
	return err == nil
}

// testEnv — набор зависимостей сервисов во временной директории.
type testEnv struct {
	dir    string
	files  *filestore.FileStore
	meta   *metastore.JSONStore
	access *accesslog.Log
	logger *slog.Logger
}

// setupTestEnv создаёт тестовое окружение сервисов.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	files, err := filestore.New(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	meta := metastore.NewJSONStore(filepath.Join(dir, "images.json"), logger)
	meta.Load()

	access, err := accesslog.New(filepath.Join(dir, "downloads.csv"))
	if err != nil {
		t.Fatalf("Ошибка создания журнала: %v", err)
	}

	return &testEnv{dir: dir, files: files, meta: meta, access: access, logger: logger}
}

// failingStore — хранилище метаданных, отвечающее заданной ошибкой.
type failingStore struct {
	metastore.Store
	putErr error
	getErr error
	puts   int
}

func (s *failingStore) Put(ctx context.Context, rec *model.StoredFile) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	return s.Store.Put(ctx, rec)
}

func (s *failingStore) Get(ctx context.Context, id string) (*model.StoredFile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, id)
}

var errBackend = errors.New("хранилище недоступно")
