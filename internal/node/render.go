package node

import (
	"context"
	"fmt"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// KindRender renders the built-in demo scene at a requested extent.
const KindRender = "Render"

var (
	RenderExtents = field.InputID{Node: KindRender, Field: "texture_extents"}
	RenderFormat  = field.InputID{Node: KindRender, Field: "texture_format"}
	RenderOutput  = field.OutputID{Node: KindRender, Field: "output_image"}
)

// RenderNode produces a fixed test card, a dark blue background with a cyan
// triangle. It exists to give downstream nodes a deterministic image source
// whose extent and format are edge-drivable.
type RenderNode struct {
	portMeta
	entity uuid.UUID
	dev    Device

	extents gputypes.Extent3D
	format  gputypes.TextureFormat
	output  *gg.ImageBuf
}

func NewRenderNode(entity uuid.UUID, dev Device) *RenderNode {
	ext := gputypes.Extent3D{
		Width:              DefaultTextureSize,
		Height:             DefaultTextureSize,
		DepthOrArrayLayers: 1,
	}
	n := &RenderNode{
		portMeta: newPortMeta(
			[]field.InputID{RenderExtents, RenderFormat},
			[]field.OutputID{RenderOutput},
		),
		entity:  entity,
		dev:     dev,
		extents: ext,
		format:  dev.Format(),
	}
	n.inMeta[RenderExtents] = field.Meta{Visible: false, Storage: field.NewExtent(ext)}
	n.inMeta[RenderFormat] = field.Meta{Visible: false, Storage: field.NewFormat(dev.Format())}
	n.outMeta[RenderOutput] = field.Meta{Visible: true, Storage: field.NewImage(nil)}
	return n
}

func (n *RenderNode) Kind() string      { return KindRender }
func (n *RenderNode) Entity() uuid.UUID { return n.entity }

func (n *RenderNode) GetInput(id field.InputID) (field.Field, bool) {
	switch id {
	case RenderExtents:
		return field.NewExtent(n.extents), true
	case RenderFormat:
		return field.NewFormat(n.format), true
	}
	return field.Field{}, false
}

func (n *RenderNode) GetOutput(id field.OutputID) (field.Field, bool) {
	if id != RenderOutput {
		return field.Field{}, false
	}
	return field.NewImage(n.output), true
}

func (n *RenderNode) SetInput(id field.InputID, value field.Field) error {
	switch id {
	case RenderExtents:
		e, err := value.Extent()
		if err != nil {
			return err
		}
		n.extents = e
	case RenderFormat:
		f, err := value.Format()
		if err != nil {
			return err
		}
		n.format = f
	default:
		return fmt.Errorf("set input %s: %w", id, ErrUnknownPort)
	}
	return nil
}

func (n *RenderNode) SetOutput(id field.OutputID, value field.Field) error {
	if id != RenderOutput {
		return fmt.Errorf("set output %s: %w", id, ErrUnknownPort)
	}
	img, err := value.Image()
	if err != nil {
		return err
	}
	n.output = img
	return nil
}

func (n *RenderNode) Process(ctx context.Context) error {
	w := int(n.extents.Width)
	h := int(n.extents.Height)
	if w == 0 || h == 0 {
		n.output = nil
		return nil
	}
	return n.dev.Submit(ctx, func() {
		dc := gg.NewContext(w, h)
		dc.ClearWithColor(gg.RGB(0.1, 0.2, 0.3))
		dc.SetRGB(0, 1, 1)
		fw, fh := float64(w), float64(h)
		dc.MoveTo(fw/2, fh*0.2)
		dc.LineTo(fw*0.2, fh*0.8)
		dc.LineTo(fw*0.8, fh*0.8)
		dc.ClosePath()
		if err := dc.Fill(); err != nil {
			n.output = nil
			return
		}
		n.output = gg.ImageBufFromImage(dc.Image())
	})
}

func (n *RenderNode) Clone() Node {
	c := *n
	c.portMeta = n.portMeta.clone()
	if n.output != nil {
		c.output = n.output.Clone()
	}
	return &c
}
