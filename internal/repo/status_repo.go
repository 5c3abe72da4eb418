package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/scops/internal/domain"
)

// StatusStore принимает начальные записи статуса units.
type StatusStore interface {
	Insert(ctx context.Context, rec domain.StatusRecord) error
}

// Execer — часть pgxpool.Pool, нужная StatusRepo.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// StatusRepo — репозиторий таблицы line_status.
type StatusRepo struct {
	db Execer
}

// NewStatusRepo создаёт новый StatusRepo.
func NewStatusRepo(db Execer) *StatusRepo {
	return &StatusRepo{db: db}
}

// Insert добавляет запись. Повторная вставка той же пары (run_id, unit_id)
// ничего не меняет: запись уже могла обновить обработка линии.
func (r *StatusRepo) Insert(ctx context.Context, rec domain.StatusRecord) error {
	if rec.RunID == "" || rec.UnitID == "" {
		return fmt.Errorf("%w: run_id and unit_id are required", ErrInvalidRecord)
	}

	query := `
		INSERT INTO line_status (run_id, unit_id, status, stage, progress, filesize, bands, link, zipsize, downloaded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, unit_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		rec.RunID,
		rec.UnitID,
		string(rec.State),
		rec.Stage,
		rec.Progress,
		rec.Filesize,
		rec.Bands,
		nullString(rec.Link),
		rec.Zipsize,
		rec.Downloaded,
	)
	if err != nil {
		return fmt.Errorf("insert line status: %w", err)
	}
	return nil
}

// statusSchema — таблица line_status. Остальные колонки таблицы ведёт
// обработчик линии; движок пишет только начальную строку.
const statusSchema = `
	CREATE TABLE IF NOT EXISTS line_status (
		run_id     TEXT   NOT NULL,
		unit_id    TEXT   NOT NULL,
		status     TEXT   NOT NULL,
		stage      INT    NOT NULL DEFAULT 0,
		progress   INT    NOT NULL DEFAULT 0,
		filesize   BIGINT NOT NULL DEFAULT 0,
		bands      INT    NOT NULL DEFAULT 0,
		link       TEXT,
		zipsize    BIGINT NOT NULL DEFAULT 0,
		downloaded INT    NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, unit_id)
	)
`

// EnsureSchema создаёт таблицу line_status, если её нет.
func (r *StatusRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, statusSchema); err != nil {
		return fmt.Errorf("ensure line_status: %w", err)
	}
	return nil
}

// NopStatusStore используется без status DB: записи только логируются.
type NopStatusStore struct {
	Logger *slog.Logger
}

// Insert пишет запись в лог.
func (n NopStatusStore) Insert(_ context.Context, rec domain.StatusRecord) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("status record (no database)",
		"run_id", rec.RunID,
		"unit", rec.UnitID,
		"status", string(rec.State),
	)
	return nil
}

// nullString конвертирует пустую строку в nil для БД.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
