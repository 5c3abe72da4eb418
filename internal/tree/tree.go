// Package tree создаёт дерево выходных каталогов run.
package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Ошибки построения дерева.
var (
	// ErrPermissionDenied — родительский каталог недоступен на запись.
	ErrPermissionDenied = errors.New("permission denied")
)

// Подкаталоги дерева.
const (
	MaskDir   = "masks"
	IGMDir    = "igm"
	MappedDir = "mapped"
	DEMDir    = "dem"
	StatusDir = "status"
	LogDir    = "log"
)

// Subdirs — все подкаталоги в порядке создания.
var Subdirs = []string{MaskDir, IGMDir, MappedDir, DEMDir, StatusDir, LogDir}

const dirMode = 0o775

// OutputTree — дерево выходных каталогов одного run.
type OutputTree struct {
	Root string

	// Created — дерево создано этим вызовом (а не найдено готовым).
	Created bool
}

// RunID — идентификатор run в status DB: имя корня дерева.
func (t OutputTree) RunID() string {
	return filepath.Base(filepath.Clean(t.Root))
}

// Dir возвращает путь подкаталога.
func (t OutputTree) Dir(sub string) string {
	return filepath.Join(t.Root, sub)
}

// StatusFile — путь статус-файла unit.
func (t OutputTree) StatusFile(unitID string) string {
	return filepath.Join(t.Root, StatusDir, unitID+".txt")
}

// LogFile — путь лог-файла unit.
func (t OutputTree) LogFile(unitID string) string {
	return filepath.Join(t.Root, LogDir, unitID+".log")
}

// NameParts — данные для синтеза имени run.
type NameParts struct {
	ProjectCode string
	Year        string
	JulianDay   string
	Sortie      string
}

// RunName синтезирует имя каталога run:
// <project>_<year>_<jday><sortie><YYYYmmddHHMMSS>.
// Метка времени различает повторные запросы одного дня.
func RunName(p NameParts, now time.Time) string {
	return p.ProjectCode + "_" + p.Year + "_" + p.JulianDay + p.Sortie + now.Format("20060102150405")
}

// Builder создаёт деревья внутри корня base.
type Builder struct {
	base string
	now  func() time.Time
}

// NewBuilder создаёт Builder.
func NewBuilder(base string) *Builder {
	return &Builder{base: base, now: time.Now}
}

// Ensure создаёт (или находит) дерево run.
//
// Пустой runName — имя синтезируется из parts и текущего времени.
// Абсолютный runName используется как есть, относительный — внутри base.
// Права на запись в родительский каталог проверяются до создания корня;
// для существующего дерева родитель не проверяется, и повторный вызов
// ничего не ломает.
func (b *Builder) Ensure(runName string, parts NameParts) (OutputTree, error) {
	if runName == "" {
		runName = RunName(parts, b.now())
	}
	root := runName
	if !filepath.IsAbs(root) {
		root = filepath.Join(b.base, runName)
	}
	root = filepath.Clean(root)

	tree := OutputTree{Root: root}

	if st, err := os.Stat(root); err == nil {
		if !st.IsDir() {
			return OutputTree{}, fmt.Errorf("create %s: not a directory", root)
		}
	} else {
		parent := filepath.Dir(root)
		if err := unix.Access(parent, unix.W_OK); err != nil {
			return OutputTree{}, fmt.Errorf("%w: no write permissions at %s: %v", ErrPermissionDenied, parent, err)
		}
		if err := os.Mkdir(root, dirMode); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return OutputTree{}, fmt.Errorf("create %s: %w", root, err)
			}
		} else {
			tree.Created = true
		}
	}

	for _, sub := range Subdirs {
		if err := os.MkdirAll(tree.Dir(sub), dirMode); err != nil {
			return OutputTree{}, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	return tree, nil
}

// LinkConfig создаёт в корне дерева symlink на документ конфигурации,
// чтобы по дереву было видно его источник. Существующая ссылка не трогается.
func LinkConfig(t OutputTree, configPath string) error {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	link := filepath.Join(t.Root, filepath.Base(configPath))

	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.Symlink(abs, link); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("link config: %w", err)
	}
	return nil
}

// SortieSuffix нормализует sortie для имени: "None" и пустая строка дают "".
func SortieSuffix(sortie string) string {
	if strings.EqualFold(sortie, "none") {
		return ""
	}
	return sortie
}
