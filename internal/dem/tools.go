package dem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shaiso/scops/internal/command"
	"github.com/shaiso/scops/internal/domain"
)

// NavigationReader возвращает bbox, заметаемый траекторией.
type NavigationReader interface {
	NavigationBounds(ctx context.Context, navFiles []string) (domain.BoundingBox, error)
}

// DatasetBoundsReader возвращает bbox растра.
type DatasetBoundsReader interface {
	DatasetBounds(ctx context.Context, path string) (domain.BoundingBox, error)
}

// Generator создаёт DEM из источника, ограниченный навигацией.
type Generator interface {
	Generate(ctx context.Context, output, source string, navFiles []string) error
}

// CommandGenerator вызывает внешнюю утилиту генерации DEM:
//
//	<command...> --demmosaic <source> --bil_navigation <navdir> -o <output>
type CommandGenerator struct {
	Command []string
	Runner  command.Runner
}

// Generate запускает генератор.
func (g CommandGenerator) Generate(ctx context.Context, output, source string, navFiles []string) error {
	name, args, err := command.Split(g.Command)
	if err != nil {
		return fmt.Errorf("dem generator: %w", err)
	}
	if len(navFiles) == 0 {
		return ErrNoNavigation
	}

	args = append(args,
		"--demmosaic", source,
		"--bil_navigation", filepath.Dir(navFiles[0]),
		"-o", output,
	)
	if _, err := g.Runner.Run(ctx, name, args...); err != nil {
		return err
	}
	return nil
}

// CommandNavigationReader вызывает утилиту, печатающую "minx maxx miny maxy"
// по списку nav-файлов.
type CommandNavigationReader struct {
	Command []string
	Runner  command.Runner
}

// NavigationBounds запускает утилиту и разбирает ответ.
func (r CommandNavigationReader) NavigationBounds(ctx context.Context, navFiles []string) (domain.BoundingBox, error) {
	name, args, err := command.Split(r.Command)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("nav bounds: %w", err)
	}
	if len(navFiles) == 0 {
		return domain.BoundingBox{}, ErrNoNavigation
	}

	out, err := r.Runner.Run(ctx, name, append(args, navFiles...)...)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	return ParseBounds(string(out))
}

// ParseBounds разбирает "minx maxx miny maxy" (последняя непустая строка).
func ParseBounds(out string) (domain.BoundingBox, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) != 4 {
		return domain.BoundingBox{}, fmt.Errorf("%w: %q", ErrBadToolOutput, out)
	}

	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("%w: %q", ErrBadToolOutput, out)
		}
		v[i] = n
	}
	return domain.BoundingBox{MinX: v[0], MaxX: v[1], MinY: v[2], MaxY: v[3]}, nil
}

// GDALBoundsReader читает bbox растра через `gdalinfo -json`.
type GDALBoundsReader struct {
	Binary string
	Runner command.Runner
}

type gdalInfo struct {
	CornerCoordinates map[string][]float64 `json:"cornerCoordinates"`
}

// DatasetBounds запускает gdalinfo.
func (r GDALBoundsReader) DatasetBounds(ctx context.Context, path string) (domain.BoundingBox, error) {
	binary := r.Binary
	if binary == "" {
		binary = "gdalinfo"
	}
	out, err := r.Runner.Run(ctx, binary, "-json", path)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	return ParseGDALInfo(out)
}

// ParseGDALInfo извлекает bbox из cornerCoordinates.
func ParseGDALInfo(data []byte) (domain.BoundingBox, error) {
	var info gdalInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.BoundingBox{}, fmt.Errorf("%w: %v", ErrBadToolOutput, err)
	}
	if len(info.CornerCoordinates) == 0 {
		return domain.BoundingBox{}, fmt.Errorf("%w: no cornerCoordinates", ErrBadToolOutput)
	}

	var box domain.BoundingBox
	first := true
	for corner, xy := range info.CornerCoordinates {
		if len(xy) < 2 {
			return domain.BoundingBox{}, fmt.Errorf("%w: corner %s", ErrBadToolOutput, corner)
		}
		x, y := xy[0], xy[1]
		if first {
			box = domain.BoundingBox{MinX: x, MaxX: x, MinY: y, MaxY: y}
			first = false
			continue
		}
		box.MinX = min(box.MinX, x)
		box.MaxX = max(box.MaxX, x)
		box.MinY = min(box.MinY, y)
		box.MaxY = max(box.MaxY, y)
	}
	return box, nil
}
