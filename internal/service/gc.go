// gc.go — сервис фоновой очистки (Garbage Collection) директории загрузок.
//
// GC удаляет то, что оставляют после себя прерванные загрузки:
//  1. Временные файлы *.tmp старше maxAge (процесс упал между записью и rename)
//  2. Пустые файлы-резервы имени без записи метаданных старше maxAge
//
// Файлы с содержимым GC не трогает никогда: о них сообщает сверка.
// Запускается как горутина с периодическим тикером (FS_GC_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

// Prometheus метрики GC
var (
	// gcRunsTotal — количество запусков GC.
	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_gc_runs_total",
		Help: "Общее количество запусков GC",
	})

	// gcFilesRemovedTotal — количество удалённых файлов по виду.
	gcFilesRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_gc_files_removed_total",
		Help: "Общее количество файлов, удалённых GC",
	}, []string{"kind"})

	// gcDurationSeconds — длительность выполнения GC.
	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_gc_duration_seconds",
		Help:    "Длительность выполнения GC в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// GCResult — результат одного запуска GC.
type GCResult struct {
	// TempRemoved — количество удалённых временных файлов
	TempRemoved int
	// ReservationsRemoved — количество удалённых пустых резервов имени
	ReservationsRemoved int
	// Errors — количество ошибок при обработке файлов
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// GCService — сервис фоновой очистки директории загрузок.
type GCService struct {
	files    *filestore.FileStore
	meta     metastore.Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	// now — источник времени (подменяется в тестах)
	now func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCService создаёт сервис GC.
// maxAge — возраст, после которого временный файл считается брошенным.
func NewGCService(
	files *filestore.FileStore,
	meta metastore.Store,
	interval time.Duration,
	maxAge time.Duration,
	logger *slog.Logger,
) *GCService {
	return &GCService{
		files:    files,
		meta:     meta,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "gc")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину GC с периодическим тикером.
// Вызывается один раз при старте приложения.
func (gc *GCService) Start(ctx context.Context) {
	gcCtx, cancel := context.WithCancel(ctx)
	gc.cancel = cancel
	gc.done = make(chan struct{})

	go gc.run(gcCtx)

	gc.logger.Info("GC запущен",
		slog.String("interval", gc.interval.String()),
		slog.String("max_age", gc.maxAge.String()),
	)
}

// Stop останавливает фоновый процесс GC и дожидается его завершения.
func (gc *GCService) Stop() {
	if gc.cancel == nil {
		return
	}
	gc.cancel()
	<-gc.done
	gc.logger.Info("GC остановлен")
}

// run — основной цикл фоновой горутины.
func (gc *GCService) run(ctx context.Context) {
	defer close(gc.done)

	// Первый запуск — сразу после старта
	gc.RunOnce(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gc.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл GC.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (gc *GCService) RunOnce(ctx context.Context) *GCResult {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	start := time.Now()
	result := &GCResult{}

	gc.logger.Debug("GC запуск начат")

	cutoff := gc.now().Add(-gc.maxAge)

	// Фаза 1: брошенные временные файлы
	removed, errs := gc.removeStaleTemp(cutoff)
	result.TempRemoved = removed
	result.Errors += errs

	// Фаза 2: пустые резервы имени без записи
	removed, errs = gc.removeStaleReservations(ctx, cutoff)
	result.ReservationsRemoved = removed
	result.Errors += errs

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	gcRunsTotal.Inc()
	gcFilesRemovedTotal.WithLabelValues("temp").Add(float64(result.TempRemoved))
	gcFilesRemovedTotal.WithLabelValues("reservation").Add(float64(result.ReservationsRemoved))
	gcDurationSeconds.Observe(result.Duration.Seconds())

	gc.logger.Info("GC завершён",
		slog.Int("temp_removed", result.TempRemoved),
		slog.Int("reservations_removed", result.ReservationsRemoved),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// removeStaleTemp удаляет временные файлы, не изменявшиеся с cutoff.
// Файл, в который ещё идёт запись, имеет свежий mtime и не попадает под отбор.
func (gc *GCService) removeStaleTemp(cutoff time.Time) (removed, errors int) {
	names, err := gc.files.ListTemp()
	if err != nil {
		gc.logger.Error("GC: ошибка чтения директории загрузок", slog.String("error", err.Error()))
		return 0, 1
	}

	for _, name := range names {
		info, err := gc.files.Stat(name)
		if err != nil {
			// Файл мог исчезнуть после rename — это нормально
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := gc.files.Delete(name); err != nil {
			gc.logger.Error("GC: ошибка удаления временного файла",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			errors++
			continue
		}
		gc.logger.Debug("GC: временный файл удалён", slog.String("name", name))
		removed++
	}

	return removed, errors
}

// removeStaleReservations удаляет пустые файлы без записи метаданных,
// не изменявшиеся с cutoff. Пустые загруженные файлы имеют запись и не удаляются.
func (gc *GCService) removeStaleReservations(ctx context.Context, cutoff time.Time) (removed, errors int) {
	names, err := gc.files.List()
	if err != nil {
		gc.logger.Error("GC: ошибка чтения директории загрузок", slog.String("error", err.Error()))
		return 0, 1
	}

	var candidates []string
	for _, name := range names {
		info, err := gc.files.Stat(name)
		if err != nil || info.Size() != 0 || info.ModTime().After(cutoff) {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return 0, 0
	}

	records, err := gc.meta.All(ctx)
	if err != nil {
		gc.logger.Error("GC: ошибка чтения метаданных", slog.String("error", err.Error()))
		return 0, 1
	}
	referenced := make(map[string]bool, len(records))
	for _, rec := range records {
		referenced[rec.StoredName] = true
	}

	for _, name := range candidates {
		if referenced[name] {
			continue
		}
		if err := gc.files.Delete(name); err != nil {
			gc.logger.Error("GC: ошибка удаления резерва имени",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			errors++
			continue
		}
		gc.logger.Debug("GC: резерв имени удалён", slog.String("name", name))
		removed++
	}

	return removed, errors
}
