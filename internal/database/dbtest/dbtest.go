// Пакет dbtest — запуск PostgreSQL в Docker-контейнере для интеграционных тестов.
// Тесты пропускаются, если не задана переменная TEST_INTEGRATION.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/fileshare/internal/config"
)

// Setup запускает PostgreSQL через testcontainers и возвращает конфиг
// с бэкендом postgres, указывающий на контейнер.
// Контейнер останавливается в t.Cleanup.
func Setup(t *testing.T) *config.Config {
	t.Helper()

	if testing.Short() {
		t.Skip("Пропуск интеграционного теста в режиме -short")
	}
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("fileshare_test"),
		postgres.WithUsername("fileshare"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("FS_DATA_DIR", t.TempDir())
	t.Setenv("FS_METADATA_BACKEND", config.BackendPostgres)
	t.Setenv("FS_DB_HOST", host)
	t.Setenv("FS_DB_PORT", port.Port())
	t.Setenv("FS_DB_NAME", "fileshare_test")
	t.Setenv("FS_DB_USER", "fileshare")
	t.Setenv("FS_DB_PASSWORD", "test-password")
	t.Setenv("FS_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}
