package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/fileshare/internal/domain/model"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore — хранилище метаданных в таблице stored_files.
// Схема создаётся миграциями пакета database.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore создаёт хранилище поверх пула или транзакции.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `id, stored_name, original_name, uploaded_at, size, content_type, checksum`

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.StoredFile, error) {
	query := `SELECT ` + selectColumns + ` FROM stored_files WHERE id = $1`

	rec, err := scanStoredFile(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *model.StoredFile) error {
	if rec.ID == "" {
		return errors.New("пустой id записи")
	}

	query := `
		INSERT INTO stored_files (id, stored_name, original_name, uploaded_at, size, content_type, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, query,
		rec.ID, rec.StoredName, rec.OriginalName, rec.UploadedAt,
		rec.Size, rec.ContentType, rec.Checksum,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, rec.ID)
		}
		return fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM stored_files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]*model.StoredFile, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM stored_files ORDER BY uploaded_at`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.StoredFile
	for rows.Next() {
		rec, err := scanStoredFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка записей: %w", err)
	}
	return result, nil
}

// scanStoredFile читает одну строку stored_files.
func scanStoredFile(row pgx.Row) (*model.StoredFile, error) {
	rec := &model.StoredFile{}
	err := row.Scan(
		&rec.ID, &rec.StoredName, &rec.OriginalName, &rec.UploadedAt,
		&rec.Size, &rec.ContentType, &rec.Checksum,
	)
	if err != nil {
		return nil, err
	}
	rec.UploadedAt = rec.UploadedAt.UTC()
	return rec, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
