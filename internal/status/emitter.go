package status

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/repo"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/telemetry"
	"github.com/shaiso/scops/internal/tree"
)

const (
	statusFileMode = 0o664
	logFileMode    = 0o664
)

// Emitter пишет статус-файлы и начальные записи статуса.
type Emitter struct {
	store    repo.StatusStore
	linkTmpl string
	logger   *slog.Logger
}

// NewEmitter создаёт Emitter. linkTmpl — шаблон ссылки с {run}, {unit}, {project}.
func NewEmitter(store repo.StatusStore, linkTmpl string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, linkTmpl: linkTmpl, logger: logger}
}

// Result — итог эмиссии.
type Result struct {
	// Files — все записанные статус-файлы.
	Files []string

	// Waiting — идентификаторы units в состоянии waiting, по порядку.
	Waiting []string

	// StoreFailures — units, запись которых status DB не приняла.
	StoreFailures map[string]error
}

// Link подставляет run, unit и project в шаблон ссылки.
func Link(tmpl, runID, unitID, project string) string {
	if tmpl == "" {
		return ""
	}
	return strings.NewReplacer(
		"{run}", runID,
		"{unit}", unitID,
		"{project}", project,
	).Replace(tmpl)
}

// Emit создаёт артефакты для всех units документа.
//
// Ошибка файловой системы прерывает эмиссию. Отказ status DB
// фиксируется по unit в Result.StoreFailures и не мешает остальным.
func (e *Emitter) Emit(ctx context.Context, cfg *runconfig.RunConfig, t tree.OutputTree) (Result, error) {
	res := Result{StoreFailures: make(map[string]error)}
	runID := t.RunID()

	for _, u := range cfg.Units {
		if cfg.RunsMain(u) {
			if err := e.waiting(ctx, &res, cfg, t, u.Name); err != nil {
				return res, err
			}
		} else {
			path := t.StatusFile(u.Name)
			if err := writeStatus(path, u.Name, domain.FileStateNotProcessing); err != nil {
				return res, err
			}
			res.Files = append(res.Files, path)
		}

		for _, ext := range cfg.ActiveExtensions(u) {
			id := cfg.ExtensionUnitID(u.Name, ext)
			if err := e.waiting(ctx, &res, cfg, t, id); err != nil {
				return res, err
			}
		}
	}

	telemetry.FromContextOr(ctx, e.logger).Info("status emitted",
		"run_id", runID,
		"files", len(res.Files),
		"waiting", len(res.Waiting),
		"store_failures", len(res.StoreFailures),
	)
	return res, nil
}

func (e *Emitter) waiting(ctx context.Context, res *Result, cfg *runconfig.RunConfig, t tree.OutputTree, unitID string) error {
	runID := t.RunID()
	log := telemetry.WithUnit(telemetry.FromContextOr(ctx, e.logger), unitID)

	rec := domain.NewWaitingRecord(runID, unitID, Link(e.linkTmpl, runID, unitID, cfg.ProjectCode))
	if err := e.store.Insert(ctx, rec); err != nil {
		log.Error("failed to insert status record", "error", err)
		res.StoreFailures[unitID] = err
	}

	path := t.StatusFile(unitID)
	if err := writeStatus(path, unitID, domain.FileStateWaiting); err != nil {
		return err
	}
	if err := touchLog(t.LogFile(unitID)); err != nil {
		return err
	}

	res.Files = append(res.Files, path)
	res.Waiting = append(res.Waiting, unitID)
	log.Debug("unit waiting", "status_file", path)
	return nil
}

// writeStatus перезаписывает статус-файл unit.
func writeStatus(path, unitID string, state domain.FileState) error {
	content := fmt.Sprintf("%s = %s", unitID, state)
	if err := os.WriteFile(path, []byte(content), statusFileMode); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// touchLog создаёт лог unit, если его нет. Существующий лог не обрезается.
func touchLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		return fmt.Errorf("create unit log: %w", err)
	}
	return f.Close()
}
