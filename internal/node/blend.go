package node

import (
	"context"
	"fmt"

	"github.com/gogpu/gg"
	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// KindBlend composites two images with a selectable blend mode.
const KindBlend = "Blend"

var (
	BlendInputA = field.InputID{Node: KindBlend, Field: "input_image_a"}
	BlendInputB = field.InputID{Node: KindBlend, Field: "input_image_b"}
	BlendMode   = field.InputID{Node: KindBlend, Field: "blend_mode"}
	BlendOutput = field.OutputID{Node: KindBlend, Field: "output_image"}
)

// Blend mode values accepted on the blend_mode port.
const (
	BlendModeNormal uint32 = iota
	BlendModeMultiply
	BlendModeScreen
	BlendModeOverlay
)

// BlendNode draws operand B over operand A. Either operand may be an image
// or a solid color; solid colors are rasterized to the output extent at
// composite time, so a color source can drive an image port directly.
type BlendNode struct {
	portMeta
	entity uuid.UUID
	dev    Device

	inputA field.Field
	inputB field.Field
	mode   uint32
	output *gg.ImageBuf
}

func NewBlendNode(entity uuid.UUID, dev Device) *BlendNode {
	n := &BlendNode{
		portMeta: newPortMeta(
			[]field.InputID{BlendInputA, BlendInputB, BlendMode},
			[]field.OutputID{BlendOutput},
		),
		entity: entity,
		dev:    dev,
		inputA: field.NewImage(nil),
		inputB: field.NewImage(nil),
	}
	n.inMeta[BlendInputA] = field.Meta{Visible: true, Storage: field.NewImage(nil)}
	n.inMeta[BlendInputB] = field.Meta{Visible: true, Storage: field.NewImage(nil)}
	n.inMeta[BlendMode] = field.Meta{Visible: false, Storage: field.NewU32(BlendModeNormal)}
	n.outMeta[BlendOutput] = field.Meta{Visible: true, Storage: field.NewImage(nil)}
	return n
}

func (n *BlendNode) Kind() string      { return KindBlend }
func (n *BlendNode) Entity() uuid.UUID { return n.entity }

// AcceptsInput widens the operand ports to take solid colors as well as
// images. The mode port keeps plain conversion rules.
func (n *BlendNode) AcceptsInput(id field.InputID, value field.Field) bool {
	switch id {
	case BlendInputA, BlendInputB:
		return value.Kind() == field.KindImage || value.Kind() == field.KindLinearRGBA
	case BlendMode:
		return field.CanConvert(value, field.NewU32(0))
	}
	return false
}

func (n *BlendNode) GetInput(id field.InputID) (field.Field, bool) {
	switch id {
	case BlendInputA:
		return n.inputA, true
	case BlendInputB:
		return n.inputB, true
	case BlendMode:
		return field.NewU32(n.mode), true
	}
	return field.Field{}, false
}

func (n *BlendNode) GetOutput(id field.OutputID) (field.Field, bool) {
	if id != BlendOutput {
		return field.Field{}, false
	}
	return field.NewImage(n.output), true
}

func (n *BlendNode) SetInput(id field.InputID, value field.Field) error {
	switch id {
	case BlendInputA, BlendInputB:
		if k := value.Kind(); k != field.KindImage && k != field.KindLinearRGBA {
			return &field.ConversionError{From: k, To: field.KindImage}
		}
		if id == BlendInputA {
			n.inputA = value
		} else {
			n.inputB = value
		}
	case BlendMode:
		v, err := value.U32()
		if err != nil {
			return err
		}
		n.mode = v
	default:
		return fmt.Errorf("set input %s: %w", id, ErrUnknownPort)
	}
	return nil
}

func (n *BlendNode) SetOutput(id field.OutputID, value field.Field) error {
	if id != BlendOutput {
		return fmt.Errorf("set output %s: %w", id, ErrUnknownPort)
	}
	img, err := value.Image()
	if err != nil {
		return err
	}
	n.output = img
	return nil
}

func (n *BlendNode) Process(ctx context.Context) error {
	w, h := n.outputExtent()
	if w == 0 || h == 0 {
		n.output = nil
		return nil
	}
	return n.dev.Submit(ctx, func() {
		a := n.operandImage(n.inputA, w, h)
		b := n.operandImage(n.inputB, w, h)

		dc := gg.NewContext(w, h)
		dc.Clear()
		if a != nil {
			dc.DrawImageEx(a, gg.DrawImageOptions{
				DstWidth:  float64(w),
				DstHeight: float64(h),
				Opacity:   1,
				BlendMode: gg.BlendNormal,
			})
		}
		if b != nil {
			dc.DrawImageEx(b, gg.DrawImageOptions{
				DstWidth:  float64(w),
				DstHeight: float64(h),
				Opacity:   1,
				BlendMode: blendMode(n.mode),
			})
		}
		n.output = gg.ImageBufFromImage(dc.Image())
	})
}

// outputExtent picks the composite size: the first image operand wins, a
// pair of solid colors falls back to the default texture size, and missing
// operands yield a zero extent (nothing to composite).
func (n *BlendNode) outputExtent() (int, int) {
	for _, op := range []field.Field{n.inputA, n.inputB} {
		if img, err := op.Image(); err == nil && img != nil {
			return img.Width(), img.Height()
		}
	}
	if n.inputA.Kind() == field.KindLinearRGBA || n.inputB.Kind() == field.KindLinearRGBA {
		return int(DefaultTextureSize), int(DefaultTextureSize)
	}
	return 0, 0
}

func (n *BlendNode) operandImage(op field.Field, w, h int) *gg.ImageBuf {
	if img, err := op.Image(); err == nil {
		return img
	}
	c, err := op.Color()
	if err != nil {
		return nil
	}
	buf, err := gg.NewImageBuf(w, h, gg.FormatRGBA8)
	if err != nil {
		return nil
	}
	buf.Fill(
		uint8(clamp01(c.R)*255+0.5),
		uint8(clamp01(c.G)*255+0.5),
		uint8(clamp01(c.B)*255+0.5),
		uint8(clamp01(c.A)*255+0.5),
	)
	return buf
}

func blendMode(mode uint32) gg.BlendMode {
	switch mode {
	case BlendModeMultiply:
		return gg.BlendMultiply
	case BlendModeScreen:
		return gg.BlendScreen
	case BlendModeOverlay:
		return gg.BlendOverlay
	default:
		return gg.BlendNormal
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (n *BlendNode) Clone() Node {
	c := *n
	c.portMeta = n.portMeta.clone()
	if img, err := n.inputA.Image(); err == nil && img != nil {
		c.inputA = field.NewImage(img.Clone())
	}
	if img, err := n.inputB.Image(); err == nil && img != nil {
		c.inputB = field.NewImage(img.Clone())
	}
	if n.output != nil {
		c.output = n.output.Clone()
	}
	return &c
}
