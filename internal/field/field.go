package field

import (
	"fmt"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
)

// Kind identifies which variant a Field currently holds. The set of kinds is
// closed; adding a value type means adding a Kind constant plus its
// constructor, accessor, equality and conversion arms.
type Kind uint8

const (
	KindU32 Kind = iota
	KindF32
	KindVec4
	KindLinearRGBA
	KindExtent3D
	KindTextureFormat
	KindImage
	KindShape
)

func (k Kind) String() string {
	switch k {
	case KindU32:
		return "u32"
	case KindF32:
		return "f32"
	case KindVec4:
		return "vec4"
	case KindLinearRGBA:
		return "linear_rgba"
	case KindExtent3D:
		return "extent3d"
	case KindTextureFormat:
		return "texture_format"
	case KindImage:
		return "image"
	case KindShape:
		return "shape"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Vec4 is a plain 4-component vector carried between ports.
type Vec4 struct {
	X, Y, Z, W float32
}

// ConversionError reports a failed cross-variant conversion.
type ConversionError struct {
	From Kind
	To   Kind
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
}

// Field is a tagged union of the value types that flow between node ports.
// The zero value is U32(0). Fields are value types: copying one copies the
// payload, except for the image variant whose pixel buffer is shared (image
// fields are opaque and never compared by content).
type Field struct {
	kind   Kind
	u32    uint32
	f32    float32
	vec4   Vec4
	rgba   gg.RGBA
	extent gputypes.Extent3D
	format gputypes.TextureFormat
	image  *gg.ImageBuf
	shape  Shape
}

func NewU32(v uint32) Field           { return Field{kind: KindU32, u32: v} }
func NewF32(v float32) Field          { return Field{kind: KindF32, f32: v} }
func NewVec4(v Vec4) Field            { return Field{kind: KindVec4, vec4: v} }
func NewColor(c gg.RGBA) Field        { return Field{kind: KindLinearRGBA, rgba: c} }
func NewExtent(e gputypes.Extent3D) Field {
	return Field{kind: KindExtent3D, extent: e}
}
func NewFormat(f gputypes.TextureFormat) Field {
	return Field{kind: KindTextureFormat, format: f}
}

// NewImage wraps an image buffer. A nil buffer is a valid, empty image field
// (the sentinel output of a node that has not been processed yet).
func NewImage(img *gg.ImageBuf) Field { return Field{kind: KindImage, image: img} }

func NewShape(s Shape) Field { return Field{kind: KindShape, shape: s} }

// Kind reports the variant this field holds.
func (f Field) Kind() Kind { return f.kind }

// U32 extracts an unsigned integer, coercing from f32 if needed.
func (f Field) U32() (uint32, error) {
	c, err := f.TryConvert(KindU32)
	if err != nil {
		return 0, err
	}
	return c.u32, nil
}

// F32 extracts a float, coercing from u32 if needed.
func (f Field) F32() (float32, error) {
	c, err := f.TryConvert(KindF32)
	if err != nil {
		return 0, err
	}
	return c.f32, nil
}

func (f Field) Vec4() (Vec4, error) {
	if f.kind != KindVec4 {
		return Vec4{}, &ConversionError{From: f.kind, To: KindVec4}
	}
	return f.vec4, nil
}

func (f Field) Color() (gg.RGBA, error) {
	if f.kind != KindLinearRGBA {
		return gg.RGBA{}, &ConversionError{From: f.kind, To: KindLinearRGBA}
	}
	return f.rgba, nil
}

func (f Field) Extent() (gputypes.Extent3D, error) {
	if f.kind != KindExtent3D {
		return gputypes.Extent3D{}, &ConversionError{From: f.kind, To: KindExtent3D}
	}
	return f.extent, nil
}

func (f Field) Format() (gputypes.TextureFormat, error) {
	if f.kind != KindTextureFormat {
		var zero gputypes.TextureFormat
		return zero, &ConversionError{From: f.kind, To: KindTextureFormat}
	}
	return f.format, nil
}

// Image extracts the image buffer; nil is a valid result for an empty image
// field.
func (f Field) Image() (*gg.ImageBuf, error) {
	if f.kind != KindImage {
		return nil, &ConversionError{From: f.kind, To: KindImage}
	}
	return f.image, nil
}

func (f Field) Shape() (Shape, error) {
	if f.kind != KindShape {
		return Shape{}, &ConversionError{From: f.kind, To: KindShape}
	}
	return f.shape, nil
}

// TryConvert returns this field re-expressed as the target kind. Same-kind
// conversion is identity. The only cross-kind conversion is numeric coercion
// between u32 and f32 (floats truncate toward zero, negatives clamp to zero).
// Everything else fails with a ConversionError.
func (f Field) TryConvert(to Kind) (Field, error) {
	if f.kind == to {
		return f, nil
	}
	switch {
	case f.kind == KindU32 && to == KindF32:
		return NewF32(float32(f.u32)), nil
	case f.kind == KindF32 && to == KindU32:
		if f.f32 <= 0 {
			return NewU32(0), nil
		}
		return NewU32(uint32(f.f32)), nil
	}
	return Field{}, &ConversionError{From: f.kind, To: to}
}

// CanConvert reports whether from's value could be assigned to a port
// currently holding to. It agrees with TryConvert by construction.
func CanConvert(from, to Field) bool {
	_, err := from.TryConvert(to.kind)
	return err == nil
}

// Equal compares two fields. Fields of different kinds are never equal.
// Image fields are opaque and never equal, not even to themselves: two runs
// that produced buffers with identical pixels are still distinct values.
func (f Field) Equal(other Field) bool {
	if f.kind != other.kind {
		return false
	}
	switch f.kind {
	case KindU32:
		return f.u32 == other.u32
	case KindF32:
		return f.f32 == other.f32
	case KindVec4:
		return f.vec4 == other.vec4
	case KindLinearRGBA:
		return f.rgba == other.rgba
	case KindExtent3D:
		return f.extent == other.extent
	case KindTextureFormat:
		return f.format == other.format
	case KindImage:
		return false
	case KindShape:
		return f.shape == other.shape
	default:
		return false
	}
}

func (f Field) String() string {
	switch f.kind {
	case KindU32:
		return fmt.Sprintf("u32(%d)", f.u32)
	case KindF32:
		return fmt.Sprintf("f32(%g)", f.f32)
	case KindVec4:
		return fmt.Sprintf("vec4(%g, %g, %g, %g)", f.vec4.X, f.vec4.Y, f.vec4.Z, f.vec4.W)
	case KindLinearRGBA:
		return fmt.Sprintf("linear_rgba(%g, %g, %g, %g)", f.rgba.R, f.rgba.G, f.rgba.B, f.rgba.A)
	case KindExtent3D:
		return fmt.Sprintf("extent3d(%dx%dx%d)", f.extent.Width, f.extent.Height, f.extent.DepthOrArrayLayers)
	case KindTextureFormat:
		return fmt.Sprintf("texture_format(%v)", f.format)
	case KindImage:
		if f.image == nil {
			return "image(none)"
		}
		return fmt.Sprintf("image(%dx%d)", f.image.Width(), f.image.Height())
	case KindShape:
		return f.shape.String()
	default:
		return "field(?)"
	}
}

// PortColor maps a field variant to the display color its port is drawn
// with. The mapping is consumed by the display collaborator; the engine only
// defines it so ports of the same type look the same everywhere.
func PortColor(f Field) gg.RGBA {
	switch f.kind {
	case KindU32, KindF32:
		return gg.RGB(0.4, 0.6, 1.0)
	case KindVec4, KindLinearRGBA:
		return gg.RGB(1.0, 0.65, 0.0)
	case KindExtent3D, KindTextureFormat:
		return gg.RGB(0.8, 0.8, 0.2)
	case KindImage:
		return gg.RGB(0.0, 0.8, 0.8)
	case KindShape:
		return gg.RGB(0.3, 0.9, 0.4)
	default:
		return gg.RGB(0.6, 0.6, 0.6)
	}
}
