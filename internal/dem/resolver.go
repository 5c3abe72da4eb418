package dem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaiso/scops/internal/domain"
	"github.com/shaiso/scops/internal/notify"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/telemetry"
	"github.com/shaiso/scops/internal/tree"
)

// PersistFunc атомарно сохраняет документ конфигурации.
type PersistFunc func(cfg *runconfig.RunConfig) error

// Resolver разрешает DEM для run.
type Resolver struct {
	nav       NavigationReader
	bounds    DatasetBoundsReader
	generator Generator
	notifier  notify.Notifier
	persist   PersistFunc
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Config — зависимости Resolver.
type Config struct {
	Navigation NavigationReader
	Bounds     DatasetBoundsReader
	Generator  Generator
	Notifier   notify.Notifier
	Persist    PersistFunc

	// Metrics (опционально).
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт Resolver.
func New(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		nav:       cfg.Navigation,
		bounds:    cfg.Bounds,
		generator: cfg.Generator,
		notifier:  cfg.Notifier,
		persist:   cfg.Persist,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Dataset — результат разрешения.
type Dataset struct {
	Path string

	// Generated — DEM создан этим вызовом и принадлежит run.
	Generated bool

	// CoverageChecked — покрытие навигации проверено.
	CoverageChecked bool
}

// GeneratedPath — путь DEM, генерируемого внутри дерева run.
func GeneratedPath(cfg *runconfig.RunConfig, t tree.OutputTree) string {
	name := cfg.ProjectCode + "_" + cfg.Year + "_" + cfg.JulianDay + "_" + cfg.Projection + ".dem"
	return filepath.Join(t.Dir(tree.DEMDir), strings.ReplaceAll(name, " ", "_"))
}

// Resolve находит, генерирует и проверяет DEM.
//
// При успехе путь записывается в cfg.DEMName (сохраняет вызывающий).
// Любая ошибка фатальна: cfg.HasError выставляется и сохраняется здесь же,
// чтобы следующие вызовы не повторяли дорогую работу.
func (r *Resolver) Resolve(ctx context.Context, cfg *runconfig.RunConfig, t tree.OutputTree, navFiles []string) (Dataset, error) {
	log := telemetry.FromContextOr(ctx, r.logger).With("step", "dem")
	log.Info("checking dem", "dem_name", cfg.DEMName)

	ds := Dataset{Path: cfg.DEMName}

	if !exists(ds.Path) {
		log.Warn("the DEM specified does not exist", "dem_name", cfg.DEMName)

		if cfg.FTPDEM {
			log.Error("the config says this DEM was provided by the user, confirm it exists as the system cannot find it")
			return Dataset{}, r.failNotify(ctx, cfg, t, domain.ReasonDEMMissing,
				fmt.Errorf("%w: %q", ErrMissingDataset, cfg.DEMName))
		}

		ds.Path = GeneratedPath(cfg, t)
		log.Info("generating dem", "source", cfg.DEMSource, "output", ds.Path)

		start := time.Now()
		if err := r.generator.Generate(ctx, ds.Path, cfg.DEMSource, navFiles); err != nil {
			return Dataset{}, r.fail(ctx, cfg, fmt.Errorf("%w: %w", ErrGeneration, err))
		}
		r.metrics.ObserveDEM(time.Since(start))
		ds.Generated = true
	}

	if !cfg.ForceDEM && cfg.UploadedDEM() {
		ds.CoverageChecked = true
		if err := r.checkCoverage(ctx, ds.Path, navFiles); err != nil {
			if errors.Is(err, ErrDatasetCoverage) {
				log.Error("the DEM provided by the user does not cover the navigation area, entering an error state")
				return Dataset{}, r.failNotify(ctx, cfg, t, domain.ReasonDEMCoverage, err)
			}
			return Dataset{}, r.fail(ctx, cfg, err)
		}
	}

	cfg.DEMName = ds.Path
	log.Info("dem ready", "dem_name", ds.Path, "generated", ds.Generated, "coverage_checked", ds.CoverageChecked)
	return ds, nil
}

func (r *Resolver) checkCoverage(ctx context.Context, demPath string, navFiles []string) error {
	demBox, err := r.bounds.DatasetBounds(ctx, demPath)
	if err != nil {
		return fmt.Errorf("read dem bounds: %w", err)
	}
	navBox, err := r.nav.NavigationBounds(ctx, navFiles)
	if err != nil {
		return fmt.Errorf("read navigation bounds: %w", err)
	}
	if !demBox.Contains(navBox) {
		return fmt.Errorf("%w: dem %s, navigation %s", ErrDatasetCoverage, demBox, navBox)
	}
	return nil
}

// fail переводит run в состояние ошибки: has_error сохраняется,
// пользователь не уведомляется.
func (r *Resolver) fail(ctx context.Context, cfg *runconfig.RunConfig, cause error) error {
	cfg.HasError = true
	if err := r.persist(cfg); err != nil {
		telemetry.FromContextOr(ctx, r.logger).Error("failed to persist error state", "error", err)
		cause = errors.Join(cause, fmt.Errorf("persist has_error: %w", err))
	}
	return cause
}

// failNotify делает то же, что fail, и отправляет пользователю
// уведомление с причиной. Ошибка отправки только логируется.
func (r *Resolver) failNotify(ctx context.Context, cfg *runconfig.RunConfig, t tree.OutputTree, reason domain.Reason, cause error) error {
	cause = r.fail(ctx, cfg, cause)
	if r.notifier == nil {
		return cause
	}

	n := domain.Notification{
		Recipient:      cfg.Email,
		OutputLocation: t.Root,
		ProjectCode:    cfg.ProjectCode,
		Reason:         reason,
	}
	if err := r.notifier.Send(ctx, n); err != nil {
		telemetry.FromContextOr(ctx, r.logger).Error("failed to send error notification", "reason", string(reason), "error", err)
	}
	return cause
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
