package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/scops/internal/orchestrator"
	"github.com/shaiso/scops/internal/runconfig"
)

const configExt = ".cfg"

// Runner запускает драйвер для одного документа. Реализуется orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Report, error)
}

// Watcher — обход каталога документов по расписанию и по событиям.
type Watcher struct {
	dir      string
	schedule string
	runner   Runner
	timeout  time.Duration
	logger   *slog.Logger
}

// Config — конфигурация Watcher.
type Config struct {
	ConfigDir string
	Schedule  string
	Runner    Runner

	// RunTimeout — верхняя граница одного документа (0 — без ограничения).
	RunTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт Watcher и проверяет расписание.
func New(cfg Config) (*Watcher, error) {
	if cfg.ConfigDir == "" {
		return nil, errors.New("config dir is required")
	}
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dir:      cfg.ConfigDir,
		schedule: cfg.Schedule,
		runner:   cfg.Runner,
		timeout:  cfg.RunTimeout,
		logger:   logger,
	}, nil
}

// TickResult — итог одного обхода.
type TickResult struct {
	Scanned   int
	Skipped   int
	Processed int
	Failed    int
}

// Tick обходит каталог один раз.
//
// Документы с submitted или has_error пропускаются без запуска драйвера.
// Ошибки одного документа не блокируют обработку остальных.
func (w *Watcher) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	paths, err := w.configs()
	if err != nil {
		return res, err
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++

		cfg, err := runconfig.Load(path)
		if err != nil {
			w.logger.Error("failed to load config", "config", path, "error", err)
			res.Failed++
			continue
		}
		if cfg.Submitted || cfg.HasError {
			res.Skipped++
			continue
		}

		if err := w.runOne(ctx, path); err != nil {
			w.logger.Error("failed to process config", "config", path, "error", err)
			res.Failed++
			continue
		}
		res.Processed++
	}

	w.logger.Info("watch tick completed",
		"scanned", res.Scanned,
		"skipped", res.Skipped,
		"processed", res.Processed,
		"failed", res.Failed,
	)
	return res, nil
}

func (w *Watcher) runOne(ctx context.Context, path string) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	_, err := w.runner.Run(ctx, orchestrator.Request{ConfigPath: path})
	return err
}

// configs возвращает документы каталога по алфавиту.
func (w *Watcher) configs() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isConfig(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// isConfig отсекает блокировки и временные файлы атомарной записи.
func isConfig(name string) bool {
	return strings.HasSuffix(name, configExt) && !strings.HasPrefix(name, ".")
}

// Start запускает обход по cron и по событиям каталога.
// Блокирует до отмены ctx.
func (w *Watcher) Start(ctx context.Context) error {
	trigger := make(chan struct{}, 1)
	poke := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(w.schedule, poke); err != nil {
		return fmt.Errorf("schedule watch: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	c.Start()
	defer func() { <-c.Stop().Done() }()

	w.logger.Info("watching configs", "dir", w.dir, "schedule", w.schedule)

	// первый обход сразу, не дожидаясь расписания
	poke()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if isConfig(filepath.Base(ev.Name)) {
					w.logger.Debug("config changed", "config", ev.Name, "op", ev.Op.String())
					poke()
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-trigger:
			if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("watch tick failed", "error", err)
			}
		}
	}
}
