package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/scops/internal/backend"
	"github.com/shaiso/scops/internal/delivery"
	"github.com/shaiso/scops/internal/dem"
	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/notify"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/status"
	"github.com/shaiso/scops/internal/telemetry"
	"github.com/shaiso/scops/internal/tree"
)

// DatasetResolver разрешает DEM run. Реализуется dem.Resolver.
type DatasetResolver interface {
	Resolve(ctx context.Context, cfg *runconfig.RunConfig, t tree.OutputTree, navFiles []string) (dem.Dataset, error)
}

// StatusEmitter создаёт артефакты статуса. Реализуется status.Emitter.
type StatusEmitter interface {
	Emit(ctx context.Context, cfg *runconfig.RunConfig, t tree.OutputTree) (status.Result, error)
}

// StatusMirror копирует статус-файлы во внешнее хранилище.
type StatusMirror interface {
	Upload(ctx context.Context, runID string, files []string) error
}

// Orchestrator — драйвер одного документа конфигурации.
type Orchestrator struct {
	trees    *tree.Builder
	resolver DatasetResolver
	emitter  StatusEmitter
	backend  backend.Backend
	notifier notify.Notifier
	mirror   StatusMirror
	metrics  *telemetry.Metrics

	deliveryGlob string
	parallel     int
	lockPoll     time.Duration

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Trees    *tree.Builder
	Resolver DatasetResolver
	Emitter  StatusEmitter
	Backend  backend.Backend
	Notifier notify.Notifier

	// Mirror и Metrics опциональны.
	Mirror  StatusMirror
	Metrics *telemetry.Metrics

	// DeliveryGlob — шаблон каталога поставки внутри sourcefolder.
	DeliveryGlob string

	// Parallel — сколько units отправляется одновременно (default: 1).
	Parallel int

	// LockPoll — интервал попыток взять блокировку (default: 200ms).
	LockPoll time.Duration

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		trees:        cfg.Trees,
		resolver:     cfg.Resolver,
		emitter:      cfg.Emitter,
		backend:      cfg.Backend,
		notifier:     cfg.Notifier,
		mirror:       cfg.Mirror,
		metrics:      cfg.Metrics,
		deliveryGlob: cfg.DeliveryGlob,
		parallel:     parallel,
		lockPoll:     cfg.LockPoll,
		logger:       logger,
	}
}

// Request — параметры одного вызова.
type Request struct {
	ConfigPath string

	// Output — принудительное расположение дерева вывода.
	Output string

	// Logger — логгер этого документа (nil — логгер Orchestrator).
	// Передаётся шагам через контекст.
	Logger *slog.Logger
}

// Run проводит документ через все шаги.
//
// Документ с has_error или submitted — чистый no-op (nil, Report.Skipped).
// Ошибка шага до отправки возвращается как есть; ошибки отдельных units
// собираются в Report.Failures, а Run возвращает ErrUnitsFailed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	base := o.logger
	if req.Logger != nil {
		base = req.Logger
	}
	log := telemetry.WithConfig(base, req.ConfigPath)
	ctx = telemetry.WithLogger(ctx, log)
	report := &Report{ConfigPath: req.ConfigPath, Phase: domain.PhaseNew}

	err := o.run(ctx, req, report, log)
	o.countRun(report, err)
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, req Request, report *Report, log *slog.Logger) error {
	log.Info("processing config")

	// 1. Быстрая проверка без блокировки.
	cfg, err := runconfig.Load(req.ConfigPath)
	if err != nil {
		return err
	}
	if o.skip(cfg, report, log) {
		return nil
	}

	lock, err := AcquireLock(ctx, req.ConfigPath, o.lockPoll)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("failed to release config lock", "error", err)
		}
	}()

	// Под блокировкой документ мог уже обработать другой процесс.
	cfg, err = runconfig.Load(req.ConfigPath)
	if err != nil {
		return err
	}
	if o.skip(cfg, report, log) {
		return nil
	}

	// 2. Дерево вывода.
	out, err := o.outputTree(cfg, req.Output, log)
	if err != nil {
		return err
	}
	cfg.OutputFolder = out.Root
	report.Output = out.Root
	report.RunID = out.RunID()
	report.NewLocation = out.Created
	report.Phase = domain.PhaseTreeReady
	log = telemetry.WithRunID(log, out.RunID())
	ctx = telemetry.WithLogger(ctx, log)

	if err := tree.LinkConfig(out, req.ConfigPath); err != nil {
		return err
	}

	// 3. DEM.
	if cfg.SourceFolder == "" {
		return ErrNoSourceFolder
	}
	d, err := delivery.Locate(cfg.SourceFolder, o.deliveryGlob)
	if err != nil {
		return err
	}

	ds, err := o.resolver.Resolve(ctx, cfg, out, d.NavFiles)
	if err != nil {
		report.Phase = domain.PhaseErrored
		log.Error("dem step failed, no units will be submitted", "error", err)
		return err
	}
	report.Dataset = ds
	report.Phase = domain.PhaseDatasetReady

	// 4. submitted сохраняется до отправки: повторный вызов после падения
	// посередине отправки не продублирует units.
	cfg.Submitted = true
	cfg.Restart = false
	if err := runconfig.Persist(cfg); err != nil {
		return fmt.Errorf("persist submitted: %w", err)
	}

	// 5. Статус.
	emitted, err := o.emitter.Emit(ctx, cfg, out)
	if err != nil {
		return err
	}
	report.Phase = domain.PhaseStatusEmitted
	if o.mirror != nil {
		if err := o.mirror.Upload(ctx, out.RunID(), emitted.Files); err != nil {
			log.Warn("failed to mirror status files", "error", err)
		}
	}

	// 6. Уведомление о принятии.
	if !cfg.StatusEmailSent || report.NewLocation {
		report.Notified = o.notifyAccepted(ctx, cfg, out, log)
	}

	// 7. Отправка units.
	hints, err := d.ReadSizeHints()
	if err != nil {
		log.Warn("size hints unavailable", "error", err)
	}
	state := o.dispatch(ctx, cfg, out, hints, log)
	state.apply(report)
	report.Phase = domain.PhaseDispatched

	// 8. Готово.
	report.Phase = domain.PhaseDone
	log.Info("all lines complete",
		"submitted", len(report.Handles),
		"failed", len(report.Failures),
	)
	if len(report.Failures) > 0 {
		return fmt.Errorf("%w: %v", ErrUnitsFailed, report.FailedUnits())
	}
	return nil
}

// skip сообщает, что документ обрабатывать не нужно.
func (o *Orchestrator) skip(cfg *runconfig.RunConfig, report *Report, log *slog.Logger) bool {
	switch {
	case cfg.HasError:
		report.Phase = domain.PhaseErrored
		report.Skipped = SkipHasError
		log.Info("not processing due to pre proc errors, inspect earlier in this log to see reason")
		return true
	case cfg.Submitted:
		report.Phase = domain.PhaseDone
		report.Skipped = SkipSubmitted
		log.Info("already submitted, nothing to do")
		return true
	}
	return false
}

// outputTree выбирает расположение дерева: принудительное, сохранённое
// в документе (если оно существует) или новое.
func (o *Orchestrator) outputTree(cfg *runconfig.RunConfig, forced string, log *slog.Logger) (tree.OutputTree, error) {
	parts := tree.NameParts{
		ProjectCode: cfg.ProjectCode,
		Year:        cfg.Year,
		JulianDay:   cfg.JulianDay,
		Sortie:      tree.SortieSuffix(cfg.Sortie),
	}

	if forced != "" {
		return o.trees.Ensure(forced, parts)
	}
	if cfg.OutputFolder != "" {
		if _, err := os.Stat(cfg.OutputFolder); err == nil {
			return o.trees.Ensure(cfg.OutputFolder, parts)
		}
		log.Warn("specified output location does not exist", "output_folder", cfg.OutputFolder)
	}
	return o.trees.Ensure("", parts)
}

func (o *Orchestrator) notifyAccepted(ctx context.Context, cfg *runconfig.RunConfig, out tree.OutputTree, log *slog.Logger) bool {
	n := domain.Notification{
		Recipient:      cfg.Email,
		OutputLocation: out.Root,
		ProjectCode:    cfg.ProjectCode,
		Reason:         domain.ReasonAccepted,
	}
	if err := o.notifier.Send(ctx, n); err != nil {
		log.Error("failed to send status email", "error", err)
		return false
	}

	cfg.StatusEmailSent = true
	if err := runconfig.Persist(cfg); err != nil {
		log.Error("failed to persist status_email_sent", "error", err)
	}
	return true
}

// dispatch отправляет runnable units. Ошибка unit логируется и
// записывается, остальные units продолжают отправляться.
func (o *Orchestrator) dispatch(ctx context.Context, cfg *runconfig.RunConfig, out tree.OutputTree, hints delivery.SizeHints, log *slog.Logger) *dispatchState {
	state := newDispatchState()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallel)

	for _, spec := range cfg.Units {
		unit := cfg.WorkUnit(spec)
		if !unit.Runnable() {
			continue
		}

		sub := backend.Submission{
			ConfigPath: cfg.Path,
			Unit:       unit,
			Tree:       out,
			SizeHint:   hints.For(unit.Line),
		}

		g.Go(func() error {
			ulog := telemetry.WithUnit(log, unit.Line)

			h, err := o.backend.Submit(gctx, sub)
			if err != nil {
				ulog.Error("failed to submit unit", "error", err)
				state.failed(unit.Line, err)
				o.countFailure()
				return nil
			}

			ulog.Info("unit submitted",
				"backend", h.Kind,
				"job_ref", h.JobRef,
				"main", unit.RunMain,
				"extension", unit.RunExtension,
			)
			state.succeeded(h)
			o.countDispatched(unit)
			return nil
		})
	}

	// горутины не возвращают ошибок
	_ = g.Wait()
	return state
}

func (o *Orchestrator) countDispatched(u domain.WorkUnit) {
	if o.metrics == nil {
		return
	}
	kind := "main"
	switch {
	case u.RunMain && u.RunExtension:
		kind = "main+extension"
	case u.RunExtension:
		kind = "extension"
	}
	o.metrics.UnitsDispatched.WithLabelValues(o.backend.Kind(), kind).Inc()
}

func (o *Orchestrator) countFailure() {
	if o.metrics == nil {
		return
	}
	o.metrics.SubmissionFailures.WithLabelValues(o.backend.Kind()).Inc()
}

func (o *Orchestrator) countRun(report *Report, err error) {
	if o.metrics == nil {
		return
	}
	outcome := "done"
	switch {
	case report.Skipped != "":
		outcome = "skipped"
	case errors.Is(err, ErrUnitsFailed):
		outcome = "partial"
	case report.Phase == domain.PhaseErrored:
		outcome = "errored"
	case err != nil:
		outcome = "failed"
	}
	o.metrics.Runs.WithLabelValues(outcome).Inc()
}
