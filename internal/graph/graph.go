package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/node"
)

var (
	// ErrStaleIndex reports an Index whose slot has been reused or freed
	// since the Index was handed out.
	ErrStaleIndex = errors.New("stale graph index")

	// ErrPortAlreadyConnected reports a second edge into an input port.
	ErrPortAlreadyConnected = errors.New("input port already connected")

	// ErrWouldCycle reports an edge that would make the graph cyclic.
	ErrWouldCycle = errors.New("edge would close a cycle")
)

// Index is a stable reference to a node in the graph. It stays valid until
// that node is removed; afterwards every use fails with ErrStaleIndex or a
// lookup miss, never a silent hit on a different node.
type Index struct {
	slot       int
	generation uint64
}

func (i Index) String() string {
	return fmt.Sprintf("%d.v%d", i.slot, i.generation)
}

// Edge connects a source output port to a destination input port.
type Edge struct {
	From field.OutputID
	To   field.InputID
}

func (e Edge) String() string {
	return e.From.String() + " -> " + e.To.String()
}

// EdgeRef is an edge together with the indices of its endpoint nodes.
type EdgeRef struct {
	Source Index
	Target Index
	Edge   Edge
}

// Direction selects which incident edges of a node to enumerate.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

type slotEntry struct {
	node       node.Node
	generation uint64
	live       bool
}

// Graph is the arena of nodes plus the edges between them. The zero value
// is not usable; construct with New. Not safe for concurrent use.
type Graph struct {
	slots []slotEntry
	free  []int
	edges []EdgeRef
}

func New() *Graph {
	return &Graph{}
}

// Len reports the number of live nodes.
func (g *Graph) Len() int {
	n := 0
	for i := range g.slots {
		if g.slots[i].live {
			n++
		}
	}
	return n
}

// AddNode inserts n and returns its index. Freed slots are reused with a
// bumped generation so indices to the removed occupant stay dead.
func (g *Graph) AddNode(n node.Node) Index {
	if len(g.free) > 0 {
		slot := g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		e := &g.slots[slot]
		e.generation++
		e.node = n
		e.live = true
		return Index{slot: slot, generation: e.generation}
	}
	g.slots = append(g.slots, slotEntry{node: n, live: true})
	return Index{slot: len(g.slots) - 1}
}

// Node resolves idx to its node. A stale or never-issued index reports false.
func (g *Graph) Node(idx Index) (node.Node, bool) {
	if !g.valid(idx) {
		return nil, false
	}
	return g.slots[idx.slot].node, true
}

// SetNode replaces the node stored at idx, keeping its edges.
func (g *Graph) SetNode(idx Index, n node.Node) error {
	if !g.valid(idx) {
		return fmt.Errorf("set node %s: %w", idx, ErrStaleIndex)
	}
	g.slots[idx.slot].node = n
	return nil
}

// RemoveNode deletes the node at idx along with every incident edge and
// returns the removed node so callers can capture it for undo.
func (g *Graph) RemoveNode(idx Index) (node.Node, bool) {
	if !g.valid(idx) {
		return nil, false
	}
	kept := g.edges[:0]
	for _, ref := range g.edges {
		if ref.Source != idx && ref.Target != idx {
			kept = append(kept, ref)
		}
	}
	g.edges = kept

	e := &g.slots[idx.slot]
	removed := e.node
	e.node = nil
	e.live = false
	g.free = append(g.free, idx.slot)
	return removed, true
}

// Indices lists every live node index in slot order.
func (g *Graph) Indices() []Index {
	out := make([]Index, 0, len(g.slots))
	for slot := range g.slots {
		if g.slots[slot].live {
			out = append(out, Index{slot: slot, generation: g.slots[slot].generation})
		}
	}
	return out
}

// FindByEntity locates the node carrying the given entity id. Entity ids
// outlive indices (a removed and re-added node keeps its entity), so this
// is how the editor re-binds after resurrection.
func (g *Graph) FindByEntity(entity uuid.UUID) (Index, bool) {
	for slot := range g.slots {
		if g.slots[slot].live && g.slots[slot].node.Entity() == entity {
			return Index{slot: slot, generation: g.slots[slot].generation}, true
		}
	}
	return Index{}, false
}

// AddEdgeChecked validates and inserts an edge. It enforces port existence,
// value compatibility, the one-incoming-edge-per-input invariant, and
// acyclicity. On success it also snapshots the destination port's current
// value into its meta storage, so disconnecting later can restore it.
func (g *Graph) AddEdgeChecked(source, target Index, e Edge) error {
	src, ok := g.Node(source)
	if !ok {
		return fmt.Errorf("add edge %s: source: %w", e, ErrStaleIndex)
	}
	dst, ok := g.Node(target)
	if !ok {
		return fmt.Errorf("add edge %s: target: %w", e, ErrStaleIndex)
	}

	outVal, ok := src.GetOutput(e.From)
	if !ok {
		return fmt.Errorf("add edge %s: output %s: %w", e, e.From, node.ErrUnknownPort)
	}
	inVal, ok := dst.GetInput(e.To)
	if !ok {
		return fmt.Errorf("add edge %s: input %s: %w", e, e.To, node.ErrUnknownPort)
	}

	if acc, widened := dst.(node.InputAccepter); widened {
		if !acc.AcceptsInput(e.To, outVal) {
			return fmt.Errorf("add edge %s: %w", e, &field.ConversionError{From: outVal.Kind(), To: inVal.Kind()})
		}
	} else if !field.CanConvert(outVal, inVal) {
		return fmt.Errorf("add edge %s: %w", e, &field.ConversionError{From: outVal.Kind(), To: inVal.Kind()})
	}

	for _, ref := range g.edges {
		if ref.Target == target && ref.Edge.To == e.To {
			return fmt.Errorf("add edge %s: %w", e, ErrPortAlreadyConnected)
		}
	}

	if source == target || g.WouldCycle(source, target) {
		return fmt.Errorf("add edge %s: %w", e, ErrWouldCycle)
	}

	meta, ok := dst.InputMeta(e.To)
	if ok {
		meta.Storage = inVal
		if err := dst.SetInputMeta(e.To, meta); err != nil {
			return err
		}
	}

	g.edges = append(g.edges, EdgeRef{Source: source, Target: target, Edge: e})
	return nil
}

// RemoveEdge deletes the matching edge if present. Removing an absent edge
// is a no-op; the return value reports whether anything was removed.
func (g *Graph) RemoveEdge(source, target Index, e Edge) bool {
	for i, ref := range g.edges {
		if ref.Source == source && ref.Target == target && ref.Edge == e {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return true
		}
	}
	return false
}

// EdgesDirected lists the edges incident to idx in the given direction.
func (g *Graph) EdgesDirected(idx Index, dir Direction) []EdgeRef {
	var out []EdgeRef
	for _, ref := range g.edges {
		if (dir == Incoming && ref.Target == idx) || (dir == Outgoing && ref.Source == idx) {
			out = append(out, ref)
		}
	}
	return out
}

// Edges lists every edge in insertion order.
func (g *Graph) Edges() []EdgeRef {
	out := make([]EdgeRef, len(g.edges))
	copy(out, g.edges)
	return out
}

// WouldCycle reports whether an edge from source to target would close a
// cycle, by walking downstream from target looking for source.
func (g *Graph) WouldCycle(source, target Index) bool {
	if source == target {
		return true
	}
	seen := map[Index]bool{}
	stack := []Index{target}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == source {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, ref := range g.edges {
			if ref.Source == cur {
				stack = append(stack, ref.Target)
			}
		}
	}
	return false
}

// Clone produces a deep snapshot: node state is cloned, indices and edges
// carry over unchanged, so an Index resolves to the same logical node in
// both graphs.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		slots: make([]slotEntry, len(g.slots)),
		free:  append([]int(nil), g.free...),
		edges: append([]EdgeRef(nil), g.edges...),
	}
	for i, e := range g.slots {
		c.slots[i] = slotEntry{generation: e.generation, live: e.live}
		if e.live {
			c.slots[i].node = e.node.Clone()
		}
	}
	return c
}

func (g *Graph) valid(idx Index) bool {
	return idx.slot >= 0 && idx.slot < len(g.slots) &&
		g.slots[idx.slot].live &&
		g.slots[idx.slot].generation == idx.generation
}
