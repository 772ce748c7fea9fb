package field

import "fmt"

// ShapeKind enumerates the primitive shapes the shape rasterizer node
// understands.
type ShapeKind uint8

const (
	ShapeCircle ShapeKind = iota
	ShapeRectangle
	ShapeTriangle
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeCircle:
		return "circle"
	case ShapeRectangle:
		return "rectangle"
	case ShapeTriangle:
		return "triangle"
	default:
		return fmt.Sprintf("shape_kind(%d)", uint8(k))
	}
}

// Shape describes a primitive in texture-normalized units (1.0 spans the
// full texture edge). The parameter meaning depends on the kind:
//
//	circle:    A = radius
//	rectangle: A = width, B = height
//	triangle:  A = height, B = base
type Shape struct {
	Kind ShapeKind
	A    float32
	B    float32
}

// DefaultShape is the shape a fresh shape node starts with.
func DefaultShape() Shape {
	return Shape{Kind: ShapeCircle, A: 0.4}
}

func (s Shape) String() string {
	switch s.Kind {
	case ShapeCircle:
		return fmt.Sprintf("circle(r=%g)", s.A)
	case ShapeRectangle:
		return fmt.Sprintf("rectangle(%gx%g)", s.A, s.B)
	case ShapeTriangle:
		return fmt.Sprintf("triangle(h=%g, b=%g)", s.A, s.B)
	default:
		return "shape(?)"
	}
}
