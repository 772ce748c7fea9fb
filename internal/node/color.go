package node

import (
	"context"
	"fmt"

	"github.com/gogpu/gg"
	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// KindColor is a source node emitting a solid color.
const KindColor = "Color"

var (
	ColorIn  = field.InputID{Node: KindColor, Field: "in_color"}
	ColorOut = field.OutputID{Node: KindColor, Field: "out_color"}
)

// ColorNode passes its input color through to its output. The input is
// hidden by default, so the stored value acts as the node's parameter until
// an edge drives it.
type ColorNode struct {
	portMeta
	entity   uuid.UUID
	inColor  gg.RGBA
	outColor gg.RGBA
}

func NewColorNode(entity uuid.UUID) *ColorNode {
	n := &ColorNode{
		portMeta: newPortMeta(
			[]field.InputID{ColorIn},
			[]field.OutputID{ColorOut},
		),
		entity: entity,
	}
	n.inMeta[ColorIn] = field.Meta{Visible: false, Storage: field.NewColor(gg.RGBA{})}
	n.outMeta[ColorOut] = field.Meta{Visible: true, Storage: field.NewColor(gg.RGBA{})}
	return n
}

func (n *ColorNode) Kind() string      { return KindColor }
func (n *ColorNode) Entity() uuid.UUID { return n.entity }

func (n *ColorNode) GetInput(id field.InputID) (field.Field, bool) {
	if id != ColorIn {
		return field.Field{}, false
	}
	return field.NewColor(n.inColor), true
}

func (n *ColorNode) GetOutput(id field.OutputID) (field.Field, bool) {
	if id != ColorOut {
		return field.Field{}, false
	}
	return field.NewColor(n.outColor), true
}

func (n *ColorNode) SetInput(id field.InputID, value field.Field) error {
	if id != ColorIn {
		return fmt.Errorf("set input %s: %w", id, ErrUnknownPort)
	}
	c, err := value.Color()
	if err != nil {
		return err
	}
	n.inColor = c
	return nil
}

func (n *ColorNode) SetOutput(id field.OutputID, value field.Field) error {
	if id != ColorOut {
		return fmt.Errorf("set output %s: %w", id, ErrUnknownPort)
	}
	c, err := value.Color()
	if err != nil {
		return err
	}
	n.outColor = c
	return nil
}

func (n *ColorNode) Process(ctx context.Context) error {
	n.outColor = n.inColor
	return nil
}

func (n *ColorNode) Clone() Node {
	c := *n
	c.portMeta = n.portMeta.clone()
	return &c
}
