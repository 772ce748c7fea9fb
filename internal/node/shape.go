package node

import (
	"context"
	"fmt"

	"github.com/gogpu/gg"
	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// KindShape rasterizes a parametric shape into a texture.
const KindShape = "Shape"

var (
	ShapeShape       = field.InputID{Node: KindShape, Field: "shape"}
	ShapeTextureSize = field.InputID{Node: KindShape, Field: "texture_size"}
	ShapeColor       = field.InputID{Node: KindShape, Field: "color"}
	ShapeOutput      = field.OutputID{Node: KindShape, Field: "output_image"}
)

// ShapeNode fills a circle, rectangle, or triangle into a square texture.
// Shape parameters are in texture-normalized units so the result is
// resolution independent. The raster context is cached between runs and
// rebuilt when texture_size changes.
type ShapeNode struct {
	portMeta
	entity uuid.UUID
	dev    Device

	shape       field.Shape
	textureSize uint32
	color       gg.RGBA
	output      *gg.ImageBuf

	dc *gg.Context
}

func NewShapeNode(entity uuid.UUID, dev Device) *ShapeNode {
	n := &ShapeNode{
		portMeta: newPortMeta(
			[]field.InputID{ShapeShape, ShapeTextureSize, ShapeColor},
			[]field.OutputID{ShapeOutput},
		),
		entity:      entity,
		dev:         dev,
		shape:       field.DefaultShape(),
		textureSize: DefaultTextureSize,
		color:       gg.RGB(1, 1, 1),
	}
	n.inMeta[ShapeShape] = field.Meta{Visible: false, Storage: field.NewShape(field.DefaultShape())}
	n.inMeta[ShapeTextureSize] = field.Meta{Visible: false, Storage: field.NewU32(DefaultTextureSize)}
	n.inMeta[ShapeColor] = field.Meta{Visible: false, Storage: field.NewColor(gg.RGB(1, 1, 1))}
	n.outMeta[ShapeOutput] = field.Meta{Visible: true, Storage: field.NewImage(nil)}
	return n
}

func (n *ShapeNode) Kind() string      { return KindShape }
func (n *ShapeNode) Entity() uuid.UUID { return n.entity }

func (n *ShapeNode) GetInput(id field.InputID) (field.Field, bool) {
	switch id {
	case ShapeShape:
		return field.NewShape(n.shape), true
	case ShapeTextureSize:
		return field.NewU32(n.textureSize), true
	case ShapeColor:
		return field.NewColor(n.color), true
	}
	return field.Field{}, false
}

func (n *ShapeNode) GetOutput(id field.OutputID) (field.Field, bool) {
	if id != ShapeOutput {
		return field.Field{}, false
	}
	return field.NewImage(n.output), true
}

func (n *ShapeNode) SetInput(id field.InputID, value field.Field) error {
	switch id {
	case ShapeShape:
		s, err := value.Shape()
		if err != nil {
			return err
		}
		n.shape = s
	case ShapeTextureSize:
		v, err := value.U32()
		if err != nil {
			return err
		}
		if v == 0 {
			v = 1
		}
		if v != n.textureSize {
			n.dc = nil
		}
		n.textureSize = v
	case ShapeColor:
		c, err := value.Color()
		if err != nil {
			return err
		}
		n.color = c
	default:
		return fmt.Errorf("set input %s: %w", id, ErrUnknownPort)
	}
	return nil
}

func (n *ShapeNode) SetOutput(id field.OutputID, value field.Field) error {
	if id != ShapeOutput {
		return fmt.Errorf("set output %s: %w", id, ErrUnknownPort)
	}
	img, err := value.Image()
	if err != nil {
		return err
	}
	n.output = img
	return nil
}

func (n *ShapeNode) Process(ctx context.Context) error {
	var fillErr error
	err := n.dev.Submit(ctx, func() {
		size := float64(n.textureSize)
		if n.dc == nil {
			n.dc = gg.NewContext(int(n.textureSize), int(n.textureSize))
		}
		dc := n.dc
		dc.Clear()
		dc.SetRGBA(n.color.R, n.color.G, n.color.B, n.color.A)

		cx, cy := size/2, size/2
		switch n.shape.Kind {
		case field.ShapeCircle:
			dc.DrawCircle(cx, cy, float64(n.shape.A)*size)
		case field.ShapeRectangle:
			w := float64(n.shape.A) * size
			h := float64(n.shape.B) * size
			dc.DrawRectangle(cx-w/2, cy-h/2, w, h)
		case field.ShapeTriangle:
			h := float64(n.shape.A) * size
			base := float64(n.shape.B) * size
			dc.MoveTo(cx, cy-h/2)
			dc.LineTo(cx-base/2, cy+h/2)
			dc.LineTo(cx+base/2, cy+h/2)
			dc.ClosePath()
		}
		if err := dc.Fill(); err != nil {
			n.output = nil
			fillErr = err
			return
		}
		n.output = gg.ImageBufFromImage(dc.Image())
	})
	if err != nil {
		return err
	}
	if fillErr != nil {
		return &ProcessError{Kind: KindShape, Entity: n.entity, Err: fillErr}
	}
	return nil
}

func (n *ShapeNode) Clone() Node {
	c := *n
	c.portMeta = n.portMeta.clone()
	c.dc = nil
	if n.output != nil {
		c.output = n.output.Clone()
	}
	return &c
}
