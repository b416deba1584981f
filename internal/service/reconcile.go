// reconcile.go — сервис сверки директории загрузок с хранилищем метаданных.
//
// Reconciliation сравнивает:
//   - Файлы на диске с записями метаданных
//   - Записи метаданных с физическими файлами
//   - Размеры и контрольные суммы файлов
//
// Обнаруживает проблемы:
//   - orphaned_file: файл на диске без записи
//   - missing_file: запись есть, файла нет
//   - size_mismatch: размер не совпадает с записью
//   - checksum_mismatch: SHA-256 не совпадает с записью
//
// Сверка только сообщает о проблемах (лог + метрики), ничего не удаляет:
// скачивание отсутствующего файла и так отвечает 404.
// Запускается при старте и, если задан FS_RECONCILE_INTERVAL, по тикеру.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fileshare/internal/storage/filestore"
	"github.com/bigkaa/fileshare/internal/storage/metastore"
)

// IssueType — тип расхождения, найденного сверкой.
type IssueType string

const (
	IssueOrphanedFile     IssueType = "orphaned_file"
	IssueMissingFile      IssueType = "missing_file"
	IssueSizeMismatch     IssueType = "size_mismatch"
	IssueChecksumMismatch IssueType = "checksum_mismatch"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	}, []string{"result"})

	// reconcileIssues — количество проблем по типу в последней сверке.
	reconcileIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fs_reconcile_issues",
		Help: "Количество проблем, обнаруженных последней сверкой",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ReconcileIssue — одно расхождение диска и метаданных.
type ReconcileIssue struct {
	Type IssueType
	// ID — идентификатор записи (пусто для orphaned_file)
	ID string
	// StoredName — имя файла в директории загрузок
	StoredName  string
	Description string
}

// ReconcileSummary — счётчики по типам проблем.
type ReconcileSummary struct {
	OK                 int
	OrphanedFiles      int
	MissingFiles       int
	SizeMismatches     int
	ChecksumMismatches int
}

// ReconcileReport — результат одной сверки.
type ReconcileReport struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	FilesChecked int
	Issues       []ReconcileIssue
	Summary      ReconcileSummary
}

// ReconcileService — сервис сверки хранилища.
type ReconcileService struct {
	files    *filestore.FileStore
	meta     metastore.Store
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис reconciliation.
// interval <= 0 — только однократная сверка при Start.
func NewReconcileService(
	files *filestore.FileStore,
	meta metastore.Store,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		files:    files,
		meta:     meta,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину: сверка сразу, затем по тикеру.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс и дожидается его завершения.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Reconciliation остановлена")
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	rs.RunOnce(ctx)

	if rs.interval <= 0 {
		return
	}

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
// При ошибке чтения метаданных или директории возвращает nil, false.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Debug("Reconciliation начата")

	issues, filesChecked, err := rs.reconcile(ctx)
	if err != nil {
		reconcileRunsTotal.WithLabelValues("error").Inc()
		rs.logger.Error("Ошибка reconciliation", slog.String("error", err.Error()))
		return nil, false
	}

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	summary := ReconcileSummary{}
	for _, issue := range issues {
		switch issue.Type {
		case IssueOrphanedFile:
			summary.OrphanedFiles++
		case IssueMissingFile:
			summary.MissingFiles++
		case IssueSizeMismatch:
			summary.SizeMismatches++
		case IssueChecksumMismatch:
			summary.ChecksumMismatches++
		}
	}
	summary.OK = filesChecked - summary.MissingFiles - summary.SizeMismatches - summary.ChecksumMismatches
	if summary.OK < 0 {
		summary.OK = 0
	}

	// Обновляем Prometheus метрики
	reconcileRunsTotal.WithLabelValues("success").Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	reconcileIssues.WithLabelValues(string(IssueOrphanedFile)).Set(float64(summary.OrphanedFiles))
	reconcileIssues.WithLabelValues(string(IssueMissingFile)).Set(float64(summary.MissingFiles))
	reconcileIssues.WithLabelValues(string(IssueSizeMismatch)).Set(float64(summary.SizeMismatches))
	reconcileIssues.WithLabelValues(string(IssueChecksumMismatch)).Set(float64(summary.ChecksumMismatches))

	for _, issue := range issues {
		rs.logger.Warn("Расхождение диска и метаданных",
			slog.String("type", string(issue.Type)),
			slog.String("file_id", issue.ID),
			slog.String("stored_name", issue.StoredName),
			slog.String("description", issue.Description),
		)
	}

	rs.logger.Info("Reconciliation завершена",
		slog.Int("files_checked", filesChecked),
		slog.Int("issues", len(issues)),
		slog.Int("ok", summary.OK),
		slog.Duration("duration", duration),
	)

	return &ReconcileReport{
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		FilesChecked: filesChecked,
		Issues:       issues,
		Summary:      summary,
	}, false
}

// reconcile сравнивает листинг директории загрузок с записями метаданных.
// Возвращает найденные проблемы и количество проверенных записей.
func (rs *ReconcileService) reconcile(ctx context.Context) ([]ReconcileIssue, int, error) {
	records, err := rs.meta.All(ctx)
	if err != nil {
		return nil, 0, err
	}

	names, err := rs.files.List()
	if err != nil {
		return nil, 0, err
	}

	onDisk := make(map[string]bool, len(names))
	for _, name := range names {
		onDisk[name] = true
	}

	var issues []ReconcileIssue
	referenced := make(map[string]bool, len(records))

	// 1. Записи без файла и целостность существующих файлов
	for _, rec := range records {
		referenced[rec.StoredName] = true

		if !onDisk[rec.StoredName] {
			issues = append(issues, ReconcileIssue{
				Type:        IssueMissingFile,
				ID:          rec.ID,
				StoredName:  rec.StoredName,
				Description: "Запись метаданных без файла на диске",
			})
			continue
		}

		// Записи без размера и checksum (старый формат) проверяем только на наличие
		if rec.Checksum == "" {
			continue
		}

		actualSize, sizeErr := rs.files.FileSize(rec.StoredName)
		if sizeErr != nil {
			rs.logger.Warn("Ошибка получения размера файла",
				slog.String("stored_name", rec.StoredName),
				slog.String("error", sizeErr.Error()),
			)
			continue
		}
		if actualSize != rec.Size {
			issues = append(issues, ReconcileIssue{
				Type:        IssueSizeMismatch,
				ID:          rec.ID,
				StoredName:  rec.StoredName,
				Description: "Размер файла на диске не совпадает с записью",
			})
			continue // Если размер не совпадает, checksum точно не совпадёт
		}

		actualChecksum, csErr := rs.files.ComputeChecksum(rec.StoredName)
		if csErr != nil {
			rs.logger.Warn("Ошибка вычисления checksum",
				slog.String("stored_name", rec.StoredName),
				slog.String("error", csErr.Error()),
			)
			continue
		}
		if actualChecksum != rec.Checksum {
			issues = append(issues, ReconcileIssue{
				Type:        IssueChecksumMismatch,
				ID:          rec.ID,
				StoredName:  rec.StoredName,
				Description: "Checksum файла на диске не совпадает с записью",
			})
		}
	}

	// 2. Файлы без записи
	orphans := make([]string, 0)
	for _, name := range names {
		if !referenced[name] {
			orphans = append(orphans, name)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		issues = append(issues, ReconcileIssue{
			Type:        IssueOrphanedFile,
			StoredName:  name,
			Description: "Файл на диске без записи метаданных",
		})
	}

	return issues, len(records), nil
}
