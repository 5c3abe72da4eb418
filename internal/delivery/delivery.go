// Package delivery находит файлы поставки гиперспектральных данных:
// навигацию для DEM и размеры линий для планировщиков.
package delivery

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Ошибки поставки.
var (
	// ErrNotFound — каталог поставки или навигации не найден.
	ErrNotFound = errors.New("delivery not found")
)

const (
	navigationDir  = "flightlines/navigation"
	navigationGlob = "*_nav_post_processed.bil"
	sizeHintsFile  = "flightlines/mapped/unzipped_filesize.csv"
)

// Delivery — найденная поставка.
type Delivery struct {
	Root          string
	NavigationDir string
	NavFiles      []string
}

// Locate ищет каталог поставки по шаблону внутри sourceFolder.
// При нескольких совпадениях берётся первое в лексикографическом порядке.
func Locate(sourceFolder, deliveryGlob string) (Delivery, error) {
	if sourceFolder == "" {
		return Delivery{}, fmt.Errorf("%w: source folder not set", ErrNotFound)
	}

	matches, err := filepath.Glob(filepath.Join(sourceFolder, deliveryGlob))
	if err != nil {
		return Delivery{}, fmt.Errorf("glob delivery: %w", err)
	}
	if len(matches) == 0 {
		return Delivery{}, fmt.Errorf("%w: no %s in %s", ErrNotFound, deliveryGlob, sourceFolder)
	}
	sort.Strings(matches)

	d := Delivery{Root: matches[0], NavigationDir: filepath.Join(matches[0], navigationDir)}
	if st, err := os.Stat(d.NavigationDir); err != nil || !st.IsDir() {
		return Delivery{}, fmt.Errorf("%w: navigation folder %s", ErrNotFound, d.NavigationDir)
	}

	d.NavFiles, err = filepath.Glob(filepath.Join(d.NavigationDir, navigationGlob))
	if err != nil {
		return Delivery{}, fmt.Errorf("glob navigation: %w", err)
	}
	sort.Strings(d.NavFiles)
	return d, nil
}

// SizeHints — размеры распакованных линий в байтах, по имени линии.
type SizeHints map[string]int64

// For возвращает размер линии или 0, если он неизвестен.
func (h SizeHints) For(line string) int64 {
	if h == nil {
		return 0
	}
	return h[line]
}

// ReadSizeHints читает unzipped_filesize.csv поставки.
// Отсутствие файла — не ошибка: размеры просто неизвестны.
func (d Delivery) ReadSizeHints() (SizeHints, error) {
	f, err := os.Open(filepath.Join(d.Root, sizeHintsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open size hints: %w", err)
	}
	defer f.Close()
	return ParseSizeHints(f)
}

// ParseSizeHints разбирает строки "line,bytes". Строки, где размер не число
// (например, заголовок), пропускаются.
func ParseSizeHints(r io.Reader) (SizeHints, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	hints := make(SizeHints)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse size hints: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		size, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(rec[0])
		name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		hints[name] = size
	}
	return hints, nil
}
