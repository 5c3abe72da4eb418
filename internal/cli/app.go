package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/shaiso/scops/internal/backend"
	"github.com/shaiso/scops/internal/command"
	"github.com/shaiso/scops/internal/dem"
	"github.com/shaiso/scops/internal/mq"
	"github.com/shaiso/scops/internal/notify"
	"github.com/shaiso/scops/internal/objectstore"
	"github.com/shaiso/scops/internal/orchestrator"
	"github.com/shaiso/scops/internal/repo"
	"github.com/shaiso/scops/internal/runconfig"
	"github.com/shaiso/scops/internal/settings"
	"github.com/shaiso/scops/internal/status"
	"github.com/shaiso/scops/internal/telemetry"
	"github.com/shaiso/scops/internal/tree"
)

// SettingsEnv — переменная окружения с путём к файлу настроек.
const SettingsEnv = "SCOPS_SETTINGS"

// Options — глобальные флаги команд.
type Options struct {
	SettingsPath string
	Local        bool
	Timeout      time.Duration
	Parallel     int
	MetricsFile  string
	JSON         bool
}

// LoadSettings читает настройки и применяет к ним флаги.
func (o Options) LoadSettings() (settings.Settings, error) {
	path := o.SettingsPath
	if path == "" {
		path = os.Getenv(SettingsEnv)
	}

	s, err := settings.Load(path)
	if err != nil {
		return settings.Settings{}, err
	}
	if o.Timeout > 0 {
		s.Timeout = o.Timeout
	}
	if o.Parallel > 0 {
		s.Parallel = o.Parallel
	}
	return s, nil
}

// BackendName возвращает backend: --local имеет приоритет над настройками.
func (o Options) BackendName(s settings.Settings) string {
	if o.Local {
		return backend.KindLocal
	}
	return s.Backend
}

// app — собранные зависимости одной команды.
type app struct {
	settings    settings.Settings
	orch        *orchestrator.Orchestrator
	metrics     *telemetry.Metrics
	metricsFile string
	logger      *slog.Logger
	closers     []func()
}

// newApp подключает внешние сервисы и собирает Orchestrator.
// Ошибка подключения фатальна: частично собранные ресурсы закрываются.
func newApp(ctx context.Context, opts Options, s settings.Settings, logger *slog.Logger) (*app, error) {
	a := &app{
		settings:    s,
		metrics:     telemetry.NewMetrics(),
		metricsFile: opts.MetricsFile,
		logger:      logger,
	}
	if err := a.wire(ctx, opts.BackendName(s)); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, backendName string) error {
	s := a.settings
	logger := a.logger
	runner := command.Exec{}

	store, err := a.statusStore(ctx)
	if err != nil {
		return err
	}

	var sender mq.Sender
	if backendName == backend.KindAMQP || s.Notify.Mode == "amqp" {
		if sender, err = a.broker(ctx); err != nil {
			return err
		}
	}

	var kube kubernetes.Interface
	if backendName == backend.KindK8s {
		if kube, err = backend.Connect(s.K8s.Kubeconfig); err != nil {
			return err
		}
	}

	b, err := backend.New(backendName, backend.Deps{
		Settings: s,
		Runner:   runner,
		Sender:   sender,
		Kube:     kube,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notifier := newNotifier(s.Notify, sender, logger)

	resolver := dem.New(dem.Config{
		Navigation: dem.CommandNavigationReader{Command: s.Tools.NavBounds, Runner: runner},
		Bounds:     dem.GDALBoundsReader{Binary: s.Tools.GDALInfo, Runner: runner},
		Generator:  dem.CommandGenerator{Command: s.Tools.DEMGenerate, Runner: runner},
		Notifier:   notifier,
		Persist:    runconfig.Persist,
		Metrics:    a.metrics,
		Logger:     logger,
	})

	cfg := orchestrator.Config{
		Trees:        tree.NewBuilder(s.OutputRoot),
		Resolver:     resolver,
		Emitter:      status.NewEmitter(store, s.LineLink, logger),
		Backend:      b,
		Notifier:     notifier,
		Metrics:      a.metrics,
		DeliveryGlob: s.DeliveryGlob,
		Parallel:     s.Parallel,
		Logger:       logger,
	}
	if s.ObjectStore.Enabled() {
		mirror, err := a.mirror(ctx)
		if err != nil {
			return err
		}
		cfg.Mirror = mirror
	}

	a.orch = orchestrator.New(cfg)
	return nil
}

func (a *app) statusStore(ctx context.Context) (repo.StatusStore, error) {
	if a.settings.Database.URL == "" {
		a.logger.Warn("status database not configured, records will only be logged")
		return repo.NopStatusStore{Logger: a.logger}, nil
	}

	pool, err := repo.NewPool(ctx, a.settings.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect status database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	r := repo.NewStatusRepo(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure status schema: %w", err)
	}
	return r, nil
}

func (a *app) broker(ctx context.Context) (mq.Sender, error) {
	conn, err := mq.NewConnection(a.settings.AMQP.URL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect broker: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := conn.Close(); err != nil {
			a.logger.Warn("failed to close broker connection", "error", err)
		}
	})

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return nil, fmt.Errorf("setup broker topology: %w", err)
	}
	return mq.NewPublisher(conn, a.logger), nil
}

func (a *app) mirror(ctx context.Context) (*objectstore.Mirror, error) {
	store := a.settings.ObjectStore
	client, err := objectstore.NewMinIOClient(store)
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	if err := objectstore.EnsureBucket(ctx, client, store.Bucket, store.Region); err != nil {
		return nil, fmt.Errorf("ensure status bucket: %w", err)
	}
	return objectstore.NewMirror(client, store.Bucket, a.logger), nil
}

func newNotifier(ns settings.NotifySettings, sender mq.Sender, logger *slog.Logger) notify.Notifier {
	switch ns.Mode {
	case "smtp":
		return notify.SMTPNotifier{
			Addr:     ns.SMTPAddr,
			From:     ns.From,
			Username: ns.Username,
			Password: ns.Password,
		}
	case "amqp":
		return notify.BrokerNotifier{Sender: sender}
	default:
		return notify.LogNotifier{Logger: logger}
	}
}

// flushMetrics пишет метрики в textfile, если он задан.
func (a *app) flushMetrics() {
	if a.metricsFile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
		a.logger.Warn("failed to write metrics", "path", a.metricsFile, "error", err)
	}
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// runLogRunner ведёт отдельный лог на каждый документ,
// как при одиночном запуске по конфигурации.
type runLogRunner struct {
	app    *app
	stderr io.Writer
}

func (r runLogRunner) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Report, error) {
	defer r.app.flushMetrics()

	runLog, err := telemetry.OpenRunLog(r.app.settings.QsubLogDir, req.ConfigPath)
	if err != nil {
		r.app.logger.Warn("config log unavailable", "config", req.ConfigPath, "error", err)
		return r.app.orch.Run(ctx, req)
	}
	defer runLog.Close()

	req.Logger = telemetry.NewLogger(io.MultiWriter(r.stderr, runLog))
	return r.app.orch.Run(ctx, req)
}
