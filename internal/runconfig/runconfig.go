package runconfig

import (
	"strings"

	"github.com/go-ini/ini"

	"github.com/shaiso/scops/internal/domain"
)

// Префиксы ключей расширений.
const (
	EquationPrefix = "eq_"
	PluginPrefix   = "plugin_"

	// pluginDirectoryKey — настройка плагинов, а не расширение.
	pluginDirectoryKey = "plugin_directory"
)

// Bounds — границы области запроса (n e s w).
type Bounds struct {
	North, East, South, West float64
}

// RunConfig — документ конфигурации одного run.
type RunConfig struct {
	// Path — путь, из которого загружен документ.
	Path string

	JulianDay   string
	Year        string
	ProjectCode string
	Sortie      string // пусто, если в документе "None"

	OutputFolder string

	// DEMSource — описание источника DEM (ключ dem).
	DEMSource string
	// DEMName — путь к готовому DEM (ключ dem_name).
	DEMName string
	// FTPDEM — пользователь обещал DEM (загрузка по ftp).
	FTPDEM bool
	// ForceDEM — принять DEM без проверки покрытия (ключ задан).
	ForceDEM bool

	Projection    string
	ProjString    string
	Bounds        Bounds
	PixelSize     [2]float64
	Interpolation string
	Masking       string
	Email         string
	SourceFolder  string

	// Флаги состояния.
	HasError        bool
	Submitted       bool
	Restart         bool
	StatusEmailSent bool

	// ProcessAll — process_all_lines: обрабатывать все линии.
	ProcessAll bool

	// Extensions — объявленные ключи расширений (eq_*, plugin_*) в порядке появления.
	Extensions []string

	Units []UnitSpec

	// Revision — номер ревизии документа на момент загрузки.
	Revision int

	file *ini.File
}

// UnitSpec — секция одной линии.
type UnitSpec struct {
	Name      string
	Process   bool
	BandStart int
	BandStop  int

	// Toggles — значения расширений для линии (с учётом [DEFAULT]).
	// Неразборчивые значения не попадают в карту: такое расширение неактивно.
	Toggles map[string]bool
}

// UploadedDEM сообщает, что DEM загружен пользователем.
// Только такие DEM проверяются на покрытие навигации.
func (c *RunConfig) UploadedDEM() bool {
	return strings.Contains(c.DEMSource, "upload")
}

// RunsMain сообщает, обрабатывается ли основная линия unit.
func (c *RunConfig) RunsMain(u UnitSpec) bool {
	return u.Process || c.ProcessAll
}

// ActiveExtensions возвращает активные ключи расширений линии в порядке объявления.
func (c *RunConfig) ActiveExtensions(u UnitSpec) []string {
	var active []string
	for _, ext := range c.Extensions {
		if u.Toggles[ext] {
			active = append(active, ext)
		}
	}
	return active
}

// ExtensionUnitID возвращает идентификатор статуса производного unit.
//
// Префикс eq_/plugin_ заменяется разделителем: L1 + eq_ratio → L1_ratio.
// Если то же имя объявлено и как уравнение, и как плагин,
// плагин сохраняет префикс (L1_plugin_ratio), чтобы идентификаторы не совпали.
func (c *RunConfig) ExtensionUnitID(line, ext string) string {
	switch {
	case strings.HasPrefix(ext, EquationPrefix):
		return line + "_" + strings.TrimPrefix(ext, EquationPrefix)
	case strings.HasPrefix(ext, PluginPrefix):
		name := strings.TrimPrefix(ext, PluginPrefix)
		if c.declares(EquationPrefix + name) {
			return line + "_" + ext
		}
		return line + "_" + name
	default:
		return line + "_" + ext
	}
}

// WorkUnit собирает описание отправки для линии.
func (c *RunConfig) WorkUnit(u UnitSpec) domain.WorkUnit {
	wu := domain.WorkUnit{
		Line:    u.Name,
		RunMain: c.RunsMain(u),
	}
	for _, ext := range c.ActiveExtensions(u) {
		wu.Extensions = append(wu.Extensions, c.ExtensionUnitID(u.Name, ext))
	}
	wu.RunExtension = len(wu.Extensions) > 0
	return wu
}

func (c *RunConfig) declares(ext string) bool {
	for _, e := range c.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func isExtensionKey(name string) bool {
	if name == pluginDirectoryKey {
		return false
	}
	return strings.HasPrefix(name, EquationPrefix) || strings.HasPrefix(name, PluginPrefix)
}
