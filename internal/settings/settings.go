// Package settings загружает настройки окружения движка: пути, внешние
// команды, параметры планировщиков, хранилища и уведомлений.
//
// Настройки читаются из YAML-файла, секреты и адреса сервисов
// переопределяются переменными окружения.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings — файл настроек не прошёл валидацию.
var ErrInvalidSettings = errors.New("invalid settings")

// Значения по умолчанию.
const (
	defaultBackend      = "qsub"
	defaultDeliveryGlob = "delivery/*hyperspectral*"
	defaultLineLink     = "https://arsf-dan.nerc.ac.uk/processing/status/{run}/{unit}?project={project}"
	defaultTimeout      = 2 * time.Hour
)

// Settings — настройки одного экземпляра scops-qsub.
type Settings struct {
	// OutputRoot — корень, в котором создаются деревья новых runs.
	OutputRoot string `yaml:"output_root"`

	// QsubLogDir — каталог логов конфигураций (<config>_log.txt).
	QsubLogDir string `yaml:"qsub_log_dir"`

	// Backend — backend по умолчанию, если не указан --local.
	Backend string `yaml:"backend"`

	// DeliveryGlob — шаблон каталога delivery внутри sourcefolder.
	DeliveryGlob string `yaml:"delivery_glob"`

	// LineLink — шаблон ссылки на статус ({run}, {unit}, {project}).
	LineLink string `yaml:"line_link"`

	// Timeout — верхняя граница одного запуска драйвера.
	Timeout time.Duration `yaml:"timeout"`

	// Parallel — количество одновременных отправок units.
	Parallel int `yaml:"parallel"`

	Processor   ProcessorSettings   `yaml:"processor"`
	Tools       ToolSettings        `yaml:"tools"`
	Qsub        GridSettings        `yaml:"qsub"`
	Bsub        GridSettings        `yaml:"bsub"`
	AMQP        AMQPSettings        `yaml:"amqp"`
	K8s         K8sSettings         `yaml:"k8s"`
	Database    DatabaseSettings    `yaml:"database"`
	Notify      NotifySettings      `yaml:"notify"`
	ObjectStore ObjectStoreSettings `yaml:"object_store"`
	Watch       WatchSettings       `yaml:"watch"`
}

// ProcessorSettings — команда, обрабатывающая одну линию.
type ProcessorSettings struct {
	Command []string `yaml:"command"`
}

// ToolSettings — внешние геопространственные утилиты.
type ToolSettings struct {
	// DEMGenerate — команда генерации DEM из мозаики.
	DEMGenerate []string `yaml:"dem_generate"`
	// NavBounds — команда, печатающая "minx maxx miny maxy" по nav-файлам.
	NavBounds []string `yaml:"nav_bounds"`
	// GDALInfo — путь к gdalinfo.
	GDALInfo string `yaml:"gdalinfo"`
}

// GridSettings — параметры qsub/bsub.
type GridSettings struct {
	Binary    string   `yaml:"binary"`
	Queue     string   `yaml:"queue"`
	Project   string   `yaml:"project"`
	MinMemGB  int      `yaml:"min_mem_gb"`
	ExtraArgs []string `yaml:"extra_args"`
}

// AMQPSettings — параметры RabbitMQ.
type AMQPSettings struct {
	URL string `yaml:"url"`
}

// K8sSettings — параметры backend'а Kubernetes Jobs.
type K8sSettings struct {
	Kubeconfig     string `yaml:"kubeconfig"`
	Namespace      string `yaml:"namespace"`
	Image          string `yaml:"image"`
	ServiceAccount string `yaml:"service_account"`
}

// DatabaseSettings — подключение к status DB.
type DatabaseSettings struct {
	URL string `yaml:"url"`
}

// NotifySettings — способ отправки уведомлений: smtp | amqp | log.
type NotifySettings struct {
	Mode     string `yaml:"mode"`
	SMTPAddr string `yaml:"smtp_addr"`
	From     string `yaml:"from"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ObjectStoreSettings — зеркало статус-файлов в S3-совместимом хранилище.
type ObjectStoreSettings struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled сообщает, настроено ли зеркало.
func (o ObjectStoreSettings) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// WatchSettings — параметры команды watch.
type WatchSettings struct {
	ConfigDir string `yaml:"config_dir"`
	Schedule  string `yaml:"schedule"`
}

// Default возвращает настройки по умолчанию.
func Default() Settings {
	return Settings{
		Backend:      defaultBackend,
		DeliveryGlob: defaultDeliveryGlob,
		LineLink:     defaultLineLink,
		Timeout:      defaultTimeout,
		Parallel:     1,
		Tools:        ToolSettings{GDALInfo: "gdalinfo"},
		Qsub:         GridSettings{Binary: "qsub", MinMemGB: 2},
		Bsub:         GridSettings{Binary: "bsub", MinMemGB: 2},
		Notify:       NotifySettings{Mode: "log"},
		Watch:        WatchSettings{Schedule: "*/5 * * * *"},
	}
}

// Load читает YAML-файл поверх значений по умолчанию и применяет
// переопределения из окружения. Пустой path — только defaults + env.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}

	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	s.Database.URL = envString("DB_URL", s.Database.URL)
	s.AMQP.URL = envString("RABBITMQ_URL", s.AMQP.URL)
	s.Notify.SMTPAddr = envString("SMTP_ADDR", s.Notify.SMTPAddr)
	s.Notify.Username = envString("SMTP_USERNAME", s.Notify.Username)
	s.Notify.Password = envString("SMTP_PASSWORD", s.Notify.Password)
	s.ObjectStore.Endpoint = envString("S3_ENDPOINT", s.ObjectStore.Endpoint)
	s.ObjectStore.AccessKey = envString("S3_ACCESS_KEY", s.ObjectStore.AccessKey)
	s.ObjectStore.SecretKey = envString("S3_SECRET_KEY", s.ObjectStore.SecretKey)
	s.K8s.Kubeconfig = envString("KUBECONFIG", s.K8s.Kubeconfig)

	useSSL, err := envBool("S3_USE_SSL", s.ObjectStore.UseSSL)
	if err != nil {
		return err
	}
	s.ObjectStore.UseSSL = useSSL
	return nil
}

// Validate проверяет согласованность настроек.
func (s Settings) Validate() error {
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidSettings)
	}
	if s.Parallel <= 0 {
		return fmt.Errorf("%w: parallel must be positive", ErrInvalidSettings)
	}
	switch s.Notify.Mode {
	case "log", "amqp":
	case "smtp":
		if s.Notify.SMTPAddr == "" || s.Notify.From == "" {
			return fmt.Errorf("%w: smtp notify requires smtp_addr and from", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown notify mode %q", ErrInvalidSettings, s.Notify.Mode)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}
