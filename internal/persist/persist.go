// Package persist reads and writes the JSON document form of a graph:
// per-node kind, entity, position, port values and metadata, plus the
// edge list keyed by entity ids and port id strings.
package persist

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/history"
	"github.com/vk/pipegraph/internal/node"
)

// Document is the serialized form of a graph.
type Document struct {
	Nodes []NodeSnapshot `json:"nodes"`
	Edges []EdgeSnapshot `json:"edges"`
}

// NodeSnapshot captures one node. Port maps are keyed by the port id
// string ("Kind.field"). Image values serialize as their kind only and
// come back empty; they are recomputed by the first run.
type NodeSnapshot struct {
	Kind       string                  `json:"kind"`
	Entity     uuid.UUID               `json:"entity"`
	Position   history.Position        `json:"position"`
	Inputs     map[string]field.Field  `json:"inputs"`
	Outputs    map[string]field.Field  `json:"outputs"`
	InputMeta  map[string]MetaSnapshot `json:"input_meta"`
	OutputMeta map[string]MetaSnapshot `json:"output_meta"`
}

// MetaSnapshot captures one port's metadata.
type MetaSnapshot struct {
	Visible bool        `json:"visible"`
	Storage field.Field `json:"storage"`
}

// EdgeSnapshot captures one edge by entity identity, which survives
// save/load while graph indices do not.
type EdgeSnapshot struct {
	FromEntity uuid.UUID `json:"from_entity"`
	Output     string    `json:"output"`
	ToEntity   uuid.UUID `json:"to_entity"`
	Input      string    `json:"input"`
}

// Save serializes the graph and node positions into a document.
func Save(g *graph.Graph, positions map[uuid.UUID]history.Position) ([]byte, error) {
	var doc Document
	for _, idx := range g.Indices() {
		n, ok := g.Node(idx)
		if !ok {
			continue
		}
		snap := NodeSnapshot{
			Kind:       n.Kind(),
			Entity:     n.Entity(),
			Position:   positions[n.Entity()],
			Inputs:     make(map[string]field.Field),
			Outputs:    make(map[string]field.Field),
			InputMeta:  make(map[string]MetaSnapshot),
			OutputMeta: make(map[string]MetaSnapshot),
		}
		for _, id := range n.InputFields() {
			if v, ok := n.GetInput(id); ok {
				snap.Inputs[id.String()] = v
			}
			if m, ok := n.InputMeta(id); ok {
				snap.InputMeta[id.String()] = MetaSnapshot{Visible: m.Visible, Storage: m.Storage}
			}
		}
		for _, id := range n.OutputFields() {
			if v, ok := n.GetOutput(id); ok {
				snap.Outputs[id.String()] = v
			}
			if m, ok := n.OutputMeta(id); ok {
				snap.OutputMeta[id.String()] = MetaSnapshot{Visible: m.Visible, Storage: m.Storage}
			}
		}
		doc.Nodes = append(doc.Nodes, snap)
	}
	for _, ref := range g.Edges() {
		src, ok := g.Node(ref.Source)
		if !ok {
			continue
		}
		dst, ok := g.Node(ref.Target)
		if !ok {
			continue
		}
		doc.Edges = append(doc.Edges, EdgeSnapshot{
			FromEntity: src.Entity(),
			Output:     ref.Edge.From.String(),
			ToEntity:   dst.Entity(),
			Input:      ref.Edge.To.String(),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Load reconstructs a graph and the position table from a document.
// Nodes are rebuilt through their kind constructors, then re-fed their
// saved port values and metadata, then re-wired.
func Load(data []byte, dev node.Device) (*graph.Graph, map[uuid.UUID]history.Position, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	g := graph.New()
	positions := make(map[uuid.UUID]history.Position, len(doc.Nodes))
	byEntity := make(map[uuid.UUID]graph.Index, len(doc.Nodes))

	for _, snap := range doc.Nodes {
		n, err := node.New(snap.Kind, snap.Entity, dev)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", snap.Entity, err)
		}
		for key, v := range snap.Inputs {
			id, err := field.ParseInputID(key)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: %w", snap.Entity, err)
			}
			if v.Kind() == field.KindImage {
				continue
			}
			if err := n.SetInput(id, v); err != nil {
				return nil, nil, fmt.Errorf("node %s: input %s: %w", snap.Entity, id, err)
			}
		}
		for key, v := range snap.Outputs {
			id, err := field.ParseOutputID(key)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: %w", snap.Entity, err)
			}
			if v.Kind() == field.KindImage {
				continue
			}
			if err := n.SetOutput(id, v); err != nil {
				return nil, nil, fmt.Errorf("node %s: output %s: %w", snap.Entity, id, err)
			}
		}
		byEntity[snap.Entity] = g.AddNode(n)
		positions[snap.Entity] = snap.Position
	}

	for _, es := range doc.Edges {
		src, ok := byEntity[es.FromEntity]
		if !ok {
			return nil, nil, fmt.Errorf("edge %s -> %s: unknown source entity %s", es.Output, es.Input, es.FromEntity)
		}
		dst, ok := byEntity[es.ToEntity]
		if !ok {
			return nil, nil, fmt.Errorf("edge %s -> %s: unknown target entity %s", es.Output, es.Input, es.ToEntity)
		}
		output, err := field.ParseOutputID(es.Output)
		if err != nil {
			return nil, nil, err
		}
		input, err := field.ParseInputID(es.Input)
		if err != nil {
			return nil, nil, err
		}
		if err := g.AddEdgeChecked(src, dst, graph.Edge{From: output, To: input}); err != nil {
			return nil, nil, err
		}
	}

	// Metadata last, so edge insertion does not clobber the saved storage.
	for _, snap := range doc.Nodes {
		n, _ := g.Node(byEntity[snap.Entity])
		for key, ms := range snap.InputMeta {
			id, err := field.ParseInputID(key)
			if err != nil {
				return nil, nil, err
			}
			if err := n.SetInputMeta(id, field.Meta{Visible: ms.Visible, Storage: ms.Storage}); err != nil {
				return nil, nil, fmt.Errorf("node %s: meta %s: %w", snap.Entity, id, err)
			}
		}
		for key, ms := range snap.OutputMeta {
			id, err := field.ParseOutputID(key)
			if err != nil {
				return nil, nil, err
			}
			if err := n.SetOutputMeta(id, field.Meta{Visible: ms.Visible, Storage: ms.Storage}); err != nil {
				return nil, nil, fmt.Errorf("node %s: meta %s: %w", snap.Entity, id, err)
			}
		}
	}

	return g, positions, nil
}
