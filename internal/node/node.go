package node

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
)

// ErrUnknownPort is returned when a port id does not belong to the node kind
// it was used against.
var ErrUnknownPort = errors.New("unknown port")

// ProcessError wraps a node-internal failure during Process. The scheduler
// treats it as recoverable: the failing node keeps its sentinel outputs and
// the rest of the run continues.
type ProcessError struct {
	Kind   string
	Entity uuid.UUID
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s node %s: process failed: %v", e.Kind, e.Entity, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Node is the capability every node kind implements. The set of ports
// (InputFields/OutputFields) is fixed per kind and never changes after
// construction. Process is the only long-running operation; it reads the
// current input values and writes the node's outputs, suspending on the
// device queue, and must observe ctx cancellation. The scheduler guarantees
// at most one Process per node instance at a time.
type Node interface {
	Kind() string
	Entity() uuid.UUID

	GetInput(id field.InputID) (field.Field, bool)
	GetOutput(id field.OutputID) (field.Field, bool)
	SetInput(id field.InputID, value field.Field) error
	SetOutput(id field.OutputID, value field.Field) error
	InputFields() []field.InputID
	OutputFields() []field.OutputID

	InputMeta(id field.InputID) (field.Meta, bool)
	SetInputMeta(id field.InputID, meta field.Meta) error
	OutputMeta(id field.OutputID) (field.Meta, bool)
	SetOutputMeta(id field.OutputID, meta field.Meta) error

	Process(ctx context.Context) error

	// Clone returns a deep copy suitable for handing to a concurrent run:
	// mutable state is copied, the device handle is shared.
	Clone() Node
}

// InputAccepter widens edge validation for kinds whose ports accept more
// variants than plain field conversion allows (the blend node takes either
// an image or a solid color on its operand ports). The graph consults it
// when present; otherwise field.CanConvert decides.
type InputAccepter interface {
	AcceptsInput(id field.InputID, value field.Field) bool
}

// New constructs a fresh node of the named kind with its default state.
// The kind set is closed; unknown names are an error.
func New(kind string, entity uuid.UUID, dev Device) (Node, error) {
	switch kind {
	case KindColor:
		return NewColorNode(entity), nil
	case KindShape:
		return NewShapeNode(entity, dev), nil
	case KindBlend:
		return NewBlendNode(entity, dev), nil
	case KindRender:
		return NewRenderNode(entity, dev), nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

// Kinds lists every constructible node kind.
func Kinds() []string {
	return []string{KindColor, KindShape, KindBlend, KindRender}
}

// portMeta carries the fixed port lists of a node kind plus the per-port
// metadata table. Every kind embeds one; the invariant that every port has
// a meta entry is established at construction.
type portMeta struct {
	ins     []field.InputID
	outs    []field.OutputID
	inMeta  map[field.InputID]field.Meta
	outMeta map[field.OutputID]field.Meta
}

func newPortMeta(ins []field.InputID, outs []field.OutputID) portMeta {
	return portMeta{
		ins:     ins,
		outs:    outs,
		inMeta:  make(map[field.InputID]field.Meta, len(ins)),
		outMeta: make(map[field.OutputID]field.Meta, len(outs)),
	}
}

func (p *portMeta) InputFields() []field.InputID   { return slices.Clone(p.ins) }
func (p *portMeta) OutputFields() []field.OutputID { return slices.Clone(p.outs) }

func (p *portMeta) InputMeta(id field.InputID) (field.Meta, bool) {
	m, ok := p.inMeta[id]
	return m, ok
}

func (p *portMeta) SetInputMeta(id field.InputID, meta field.Meta) error {
	if !slices.Contains(p.ins, id) {
		return fmt.Errorf("set input meta %s: %w", id, ErrUnknownPort)
	}
	p.inMeta[id] = meta
	return nil
}

func (p *portMeta) OutputMeta(id field.OutputID) (field.Meta, bool) {
	m, ok := p.outMeta[id]
	return m, ok
}

func (p *portMeta) SetOutputMeta(id field.OutputID, meta field.Meta) error {
	if !slices.Contains(p.outs, id) {
		return fmt.Errorf("set output meta %s: %w", id, ErrUnknownPort)
	}
	p.outMeta[id] = meta
	return nil
}

func (p *portMeta) clone() portMeta {
	c := newPortMeta(p.ins, p.outs)
	for id, m := range p.inMeta {
		c.inMeta[id] = m
	}
	for id, m := range p.outMeta {
		c.outMeta[id] = m
	}
	return c
}
