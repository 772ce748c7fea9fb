package field

import (
	"encoding/json"
	"fmt"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
)

// fieldJSON is the wire form of a Field. Image payloads are intentionally
// dropped: image buffers are recomputed by the pipeline after load, so the
// persisted form only records that the port is image-typed and empty.
type fieldJSON struct {
	Kind   string      `json:"kind"`
	U32    *uint32     `json:"u32,omitempty"`
	F32    *float32    `json:"f32,omitempty"`
	Vec4   *[4]float32 `json:"vec4,omitempty"`
	RGBA   *[4]float64 `json:"rgba,omitempty"`
	Extent *[3]uint32  `json:"extent,omitempty"`
	Format *uint32     `json:"format,omitempty"`
	Shape  *shapeJSON  `json:"shape,omitempty"`
}

type shapeJSON struct {
	Kind string  `json:"kind"`
	A    float32 `json:"a"`
	B    float32 `json:"b,omitempty"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	out := fieldJSON{Kind: f.kind.String()}
	switch f.kind {
	case KindU32:
		out.U32 = &f.u32
	case KindF32:
		out.F32 = &f.f32
	case KindVec4:
		out.Vec4 = &[4]float32{f.vec4.X, f.vec4.Y, f.vec4.Z, f.vec4.W}
	case KindLinearRGBA:
		out.RGBA = &[4]float64{f.rgba.R, f.rgba.G, f.rgba.B, f.rgba.A}
	case KindExtent3D:
		out.Extent = &[3]uint32{f.extent.Width, f.extent.Height, f.extent.DepthOrArrayLayers}
	case KindTextureFormat:
		v := uint32(f.format)
		out.Format = &v
	case KindImage:
		// kind only
	case KindShape:
		out.Shape = &shapeJSON{Kind: f.shape.Kind.String(), A: f.shape.A, B: f.shape.B}
	}
	return json.Marshal(out)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var in fieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "u32":
		if in.U32 == nil {
			return fmt.Errorf("u32 field missing value")
		}
		*f = NewU32(*in.U32)
	case "f32":
		if in.F32 == nil {
			return fmt.Errorf("f32 field missing value")
		}
		*f = NewF32(*in.F32)
	case "vec4":
		if in.Vec4 == nil {
			return fmt.Errorf("vec4 field missing value")
		}
		*f = NewVec4(Vec4{X: in.Vec4[0], Y: in.Vec4[1], Z: in.Vec4[2], W: in.Vec4[3]})
	case "linear_rgba":
		if in.RGBA == nil {
			return fmt.Errorf("linear_rgba field missing value")
		}
		*f = NewColor(gg.RGBA{R: in.RGBA[0], G: in.RGBA[1], B: in.RGBA[2], A: in.RGBA[3]})
	case "extent3d":
		if in.Extent == nil {
			return fmt.Errorf("extent3d field missing value")
		}
		*f = NewExtent(gputypes.Extent3D{
			Width:              in.Extent[0],
			Height:             in.Extent[1],
			DepthOrArrayLayers: in.Extent[2],
		})
	case "texture_format":
		if in.Format == nil {
			return fmt.Errorf("texture_format field missing value")
		}
		*f = NewFormat(gputypes.TextureFormat(*in.Format))
	case "image":
		*f = NewImage(nil)
	case "shape":
		if in.Shape == nil {
			return fmt.Errorf("shape field missing value")
		}
		kind, err := parseShapeKind(in.Shape.Kind)
		if err != nil {
			return err
		}
		*f = NewShape(Shape{Kind: kind, A: in.Shape.A, B: in.Shape.B})
	default:
		return fmt.Errorf("unknown field kind %q", in.Kind)
	}
	return nil
}

func parseShapeKind(s string) (ShapeKind, error) {
	switch s {
	case "circle":
		return ShapeCircle, nil
	case "rectangle":
		return ShapeRectangle, nil
	case "triangle":
		return ShapeTriangle, nil
	default:
		return 0, fmt.Errorf("unknown shape kind %q", s)
	}
}
