package runconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
)

// DefaultFileMode — права нового документа (как у web front end).
const DefaultFileMode os.FileMode = 0o664

// Ключи [DEFAULT].
const (
	keyJulianDay       = "julianday"
	keyYear            = "year"
	keyProjectCode     = "project_code"
	keySortie          = "sortie"
	keyOutputFolder    = "output_folder"
	keyDEM             = "dem"
	keyDEMName         = "dem_name"
	keyFTPDEM          = "ftp_dem"
	keyForceDEM        = "force_dem"
	keyProjection      = "projection"
	keyProjString      = "projstring"
	keyBounds          = "bounds"
	keyPixelSize       = "pixelsize"
	keyInterpolation   = "interpolation"
	keyMasking         = "masking"
	keyEmail           = "email"
	keySourceFolder    = "sourcefolder"
	keyHasError        = "has_error"
	keySubmitted       = "submitted"
	keyRestart         = "restart"
	keyStatusEmailSent = "status_email_sent"
	keyProcessAll      = "process_all_lines"
	keyRevision        = "revision"

	keyProcess   = "process"
	keyBandRange = "band_range"
)

var requiredKeys = []string{keyJulianDay, keyYear, keyProjectCode, keyDEM, keyProjection, keyEmail}

func init() {
	// ConfigParser не читает ключи без заголовка секции.
	ini.DefaultHeader = true
	ini.PrettyFormat = false
	ini.PrettyEqual = true
}

var loadOptions = ini.LoadOptions{
	InsensitiveKeys:     true,
	IgnoreInlineComment: true,
}

// Load читает документ с диска.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// Parse разбирает документ из памяти.
func Parse(data []byte) (*RunConfig, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}

	def := f.Section(ini.DefaultSection)
	for _, k := range requiredKeys {
		if !def.HasKey(k) {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedConfig, k)
		}
	}

	cfg := &RunConfig{
		JulianDay:     def.Key(keyJulianDay).String(),
		Year:          def.Key(keyYear).String(),
		ProjectCode:   def.Key(keyProjectCode).String(),
		Sortie:        optional(def, keySortie),
		OutputFolder:  optional(def, keyOutputFolder),
		DEMSource:     def.Key(keyDEM).String(),
		DEMName:       optional(def, keyDEMName),
		ForceDEM:      def.HasKey(keyForceDEM),
		Projection:    def.Key(keyProjection).String(),
		ProjString:    optional(def, keyProjString),
		Interpolation: optional(def, keyInterpolation),
		Masking:       optional(def, keyMasking),
		Email:         def.Key(keyEmail).String(),
		SourceFolder:  optional(def, keySourceFolder),
		file:          f,
	}
	if cfg.Sortie == "None" {
		cfg.Sortie = ""
	}
	for _, k := range []string{keyJulianDay, keyYear, keyProjectCode} {
		if strings.TrimSpace(def.Key(k).String()) == "" {
			return nil, fmt.Errorf("%w: empty %s", ErrMalformedConfig, k)
		}
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{keyHasError, &cfg.HasError},
		{keySubmitted, &cfg.Submitted},
		{keyRestart, &cfg.Restart},
		{keyStatusEmailSent, &cfg.StatusEmailSent},
		{keyFTPDEM, &cfg.FTPDEM},
	}
	for _, fl := range flags {
		v, err := optionalBool(def, fl.key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fl.key, err)
		}
		*fl.dst = v
	}

	// process_all_lines приходит из формы ("on"); мусор трактуем как выключено.
	cfg.ProcessAll, _ = optionalBool(def, keyProcessAll)

	if cfg.Bounds, err = parseBounds(optional(def, keyBounds)); err != nil {
		return nil, err
	}
	if cfg.PixelSize, err = parsePixelSize(optional(def, keyPixelSize)); err != nil {
		return nil, err
	}
	if rev := optional(def, keyRevision); rev != "" {
		if cfg.Revision, err = strconv.Atoi(rev); err != nil {
			return nil, fmt.Errorf("%w: revision %q", ErrMalformedConfig, rev)
		}
	}

	cfg.Extensions = collectExtensions(f)

	for _, name := range f.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		unit, err := parseUnit(cfg, f.Section(name), def)
		if err != nil {
			return nil, err
		}
		cfg.Units = append(cfg.Units, unit)
	}

	return cfg, nil
}

func parseUnit(cfg *RunConfig, sec, def *ini.Section) (UnitSpec, error) {
	u := UnitSpec{Name: sec.Name(), Toggles: make(map[string]bool)}

	if !sec.HasKey(keyProcess) {
		return UnitSpec{}, fmt.Errorf("%w: section %s has no process", ErrMalformedConfig, u.Name)
	}
	process, err := ParseBool(sec.Key(keyProcess).String())
	if err != nil {
		return UnitSpec{}, fmt.Errorf("%w: section %s: %v", ErrMalformedConfig, u.Name, err)
	}
	u.Process = process

	if br := optional(sec, keyBandRange); br != "" {
		start, stop, ok := strings.Cut(br, "-")
		if !ok {
			return UnitSpec{}, fmt.Errorf("%w: section %s: band_range %q", ErrMalformedConfig, u.Name, br)
		}
		if u.BandStart, err = strconv.Atoi(strings.TrimSpace(start)); err != nil {
			return UnitSpec{}, fmt.Errorf("%w: section %s: band_range %q", ErrMalformedConfig, u.Name, br)
		}
		if u.BandStop, err = strconv.Atoi(strings.TrimSpace(stop)); err != nil {
			return UnitSpec{}, fmt.Errorf("%w: section %s: band_range %q", ErrMalformedConfig, u.Name, br)
		}
	}

	for _, ext := range cfg.Extensions {
		var raw string
		switch {
		case sec.HasKey(ext):
			raw = sec.Key(ext).String()
		case def.HasKey(ext):
			raw = def.Key(ext).String()
		default:
			continue
		}
		on, err := ParseBool(raw)
		if err != nil {
			// Не булево значение (например, текст уравнения) — расширение неактивно.
			continue
		}
		u.Toggles[ext] = on
	}

	return u, nil
}

func collectExtensions(f *ini.File) []string {
	seen := make(map[string]bool)
	var exts []string
	for _, sec := range f.Sections() {
		for _, k := range sec.KeyStrings() {
			if isExtensionKey(k) && !seen[k] {
				seen[k] = true
				exts = append(exts, k)
			}
		}
	}
	return exts
}

func parseBounds(raw string) (Bounds, error) {
	if raw == "" {
		return Bounds{}, nil
	}
	v, err := parseFloats(raw, 4)
	if err != nil {
		return Bounds{}, fmt.Errorf("%w: bounds: %v", ErrMalformedConfig, err)
	}
	return Bounds{North: v[0], East: v[1], South: v[2], West: v[3]}, nil
}

func parsePixelSize(raw string) ([2]float64, error) {
	if raw == "" {
		return [2]float64{}, nil
	}
	v, err := parseFloats(raw, 2)
	if err != nil {
		return [2]float64{}, fmt.Errorf("%w: pixelsize: %v", ErrMalformedConfig, err)
	}
	return [2]float64{v[0], v[1]}, nil
}

func parseFloats(raw string, n int) ([]float64, error) {
	fields := strings.Fields(raw)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %q", n, raw)
	}
	out := make([]float64, n)
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func optional(sec *ini.Section, key string) string {
	if !sec.HasKey(key) {
		return ""
	}
	return strings.TrimSpace(sec.Key(key).String())
}

func optionalBool(sec *ini.Section, key string) (bool, error) {
	raw := optional(sec, key)
	if raw == "" {
		return false, nil
	}
	return ParseBool(raw)
}

// Save атомарно записывает состояние run в path.
//
// Перед записью ревизия документа на диске сравнивается с cfg.Revision;
// расхождение означает, что документ изменил кто-то другой (ErrRevisionConflict).
// После успешной записи cfg.Revision увеличивается.
func Save(cfg *RunConfig, path string) error {
	current, err := diskRevision(path)
	if err != nil {
		return err
	}
	if current != cfg.Revision {
		return fmt.Errorf("%w: on disk %d, loaded %d", ErrRevisionConflict, current, cfg.Revision)
	}

	if cfg.file == nil {
		cfg.file = ini.Empty(loadOptions)
	}
	next := cfg.Revision + 1
	cfg.apply(next)

	if err := writeAtomic(path, cfg.file); err != nil {
		cfg.apply(cfg.Revision)
		return err
	}
	cfg.Revision = next
	return nil
}

// Persist сохраняет документ по пути, из которого он загружен.
func Persist(cfg *RunConfig) error {
	if cfg.Path == "" {
		return fmt.Errorf("%w: document has no path", ErrMalformedConfig)
	}
	return Save(cfg, cfg.Path)
}

// apply переносит поля, которыми владеет движок, в INI-документ.
func (c *RunConfig) apply(revision int) {
	def := c.file.Section(ini.DefaultSection)
	def.Key(keyOutputFolder).SetValue(c.OutputFolder)
	if c.DEMName != "" {
		def.Key(keyDEMName).SetValue(c.DEMName)
	}
	def.Key(keyHasError).SetValue(FormatBool(c.HasError))
	def.Key(keySubmitted).SetValue(FormatBool(c.Submitted))
	def.Key(keyRestart).SetValue(FormatBool(c.Restart))
	def.Key(keyStatusEmailSent).SetValue(FormatBool(c.StatusEmailSent))
	def.Key(keyRevision).SetValue(strconv.Itoa(revision))
}

func diskRevision(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read config: %w", err)
	}
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	raw := optional(f.Section(ini.DefaultSection), keyRevision)
	if raw == "" {
		return 0, nil
	}
	rev, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: revision %q", ErrMalformedConfig, raw)
	}
	return rev, nil
}

func writeAtomic(path string, f *ini.File) error {
	mode := DefaultFileMode
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
