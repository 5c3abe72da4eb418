package domain

import "fmt"

// BoundingBox — прямоугольник в координатах проекции.
// Порядок полей совпадает с выводом утилит: minx maxx miny maxy.
type BoundingBox struct {
	MinX float64
	MaxX float64
	MinY float64
	MaxY float64
}

// Contains сообщает, лежит ли inner целиком внутри b (границы включительно).
func (b BoundingBox) Contains(inner BoundingBox) bool {
	return inner.MinX >= b.MinX &&
		inner.MaxX <= b.MaxX &&
		inner.MinY >= b.MinY &&
		inner.MaxY <= b.MaxY
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.MinX, b.MaxX, b.MinY, b.MaxY)
}
