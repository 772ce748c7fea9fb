// Package editor is the mutation-handling layer. It translates high-level
// intents (add a node, connect two ports, set a field, undo) into graph
// mutations, undo-log events, and reprocess triggers.
//
// Mutations inside one editing tick are buffered and committed by EndFrame
// as a single undoable transaction. Failed mutations abort without partial
// state and without a recorded event.
//
// Removed nodes are parked in a limbo table keyed by entity id instead of
// being destroyed, so undoing a removal resurrects the exact node state by
// identity rather than rebuilding it from scratch.
package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/history"
	"github.com/vk/pipegraph/internal/node"
	"github.com/vk/pipegraph/internal/pipeline"
)

// ErrUnknownEntity reports an intent referencing an entity id that is not
// in the graph.
var ErrUnknownEntity = errors.New("unknown entity")

// Editor owns the history log, the limbo table, and node positions, and
// mutates the live graph through the runner's lock.
type Editor struct {
	runner *pipeline.Runner
	hist   *history.History
	dev    node.Device

	buffer    history.Transaction
	replaying bool
	limbo     map[uuid.UUID]node.Node
	positions map[uuid.UUID]history.Position
}

func New(runner *pipeline.Runner, dev node.Device) *Editor {
	return &Editor{
		runner:    runner,
		hist:      history.New(),
		dev:       dev,
		limbo:     make(map[uuid.UUID]node.Node),
		positions: make(map[uuid.UUID]history.Position),
	}
}

// Runner exposes the pipeline runner driving this editor's graph.
func (e *Editor) Runner() *pipeline.Runner { return e.runner }

// Position reports a node's last known position.
func (e *Editor) Position(entity uuid.UUID) (history.Position, bool) {
	p, ok := e.positions[entity]
	return p, ok
}

// Positions returns the position table, keyed by entity id.
func (e *Editor) Positions() map[uuid.UUID]history.Position {
	out := make(map[uuid.UUID]history.Position, len(e.positions))
	for k, v := range e.positions {
		out[k] = v
	}
	return out
}

// SetPosition seeds a node's position without recording an event. Used
// when positions come from a loaded document rather than a user drag.
func (e *Editor) SetPosition(entity uuid.UUID, pos history.Position) {
	e.positions[entity] = pos
}

// History exposes the undo log, mainly for inspection in tests.
func (e *Editor) History() *history.History { return e.hist }

// AddNode creates a fresh node of the given kind at a position and returns
// its entity id.
func (e *Editor) AddNode(ctx context.Context, kind string, pos history.Position) (uuid.UUID, error) {
	entity := uuid.New()
	ev := history.AddNode{Entity: entity, Kind: kind, Position: pos}
	if err := e.applyAddNode(ev); err != nil {
		return uuid.Nil, err
	}
	ctxlog.FromContext(ctx).Debug("node added", "kind", kind, "entity", entity)
	e.record(ev)
	e.runner.RequestProcess()
	return entity, nil
}

// AddSerializedNode inserts an already-constructed node, keeping its entity
// identity and state. Document loading and node duplication both land here.
func (e *Editor) AddSerializedNode(ctx context.Context, n node.Node, pos history.Position) error {
	entity := n.Entity()
	if _, ok := e.findByEntity(entity); ok {
		return fmt.Errorf("add serialized node: entity %s already present", entity)
	}
	e.runner.WithGraph(func(g *graph.Graph) {
		g.AddNode(n)
	})
	e.positions[entity] = pos
	ctxlog.FromContext(ctx).Debug("node added from snapshot", "kind", n.Kind(), "entity", entity)
	e.record(history.AddNode{Entity: entity, Kind: n.Kind(), Position: pos})
	e.runner.RequestProcess()
	return nil
}

// RemoveNode disconnects every incident edge, then parks the node in limbo.
// All of it lands in the current transaction, so one undo restores the node
// and its edges.
func (e *Editor) RemoveNode(ctx context.Context, entity uuid.UUID) error {
	log := ctxlog.FromContext(ctx)
	idx, ok := e.findByEntity(entity)
	if !ok {
		return fmt.Errorf("remove node %s: %w", entity, ErrUnknownEntity)
	}

	var incident []removedEdge
	e.runner.WithGraph(func(g *graph.Graph) {
		for _, ref := range g.EdgesDirected(idx, graph.Incoming) {
			incident = append(incident, e.describeEdge(g, ref))
		}
		for _, ref := range g.EdgesDirected(idx, graph.Outgoing) {
			incident = append(incident, e.describeEdge(g, ref))
		}
	})
	for _, re := range incident {
		if err := e.Disconnect(ctx, re.from, re.output, re.to, re.input); err != nil {
			return err
		}
	}

	var kind string
	pos := e.positions[entity]
	e.runner.WithGraph(func(g *graph.Graph) {
		if n, removed := g.RemoveNode(idx); removed {
			kind = n.Kind()
			e.limbo[entity] = n
		}
	})
	log.Debug("node removed", "kind", kind, "entity", entity)
	e.record(history.RemoveNode{Entity: entity, Kind: kind, Position: pos})
	e.runner.RequestProcess()
	return nil
}

type removedEdge struct {
	from   uuid.UUID
	output field.OutputID
	to     uuid.UUID
	input  field.InputID
}

func (e *Editor) describeEdge(g *graph.Graph, ref graph.EdgeRef) removedEdge {
	var re removedEdge
	if n, ok := g.Node(ref.Source); ok {
		re.from = n.Entity()
	}
	if n, ok := g.Node(ref.Target); ok {
		re.to = n.Entity()
	}
	re.output = ref.Edge.From
	re.input = ref.Edge.To
	return re
}

// Connect adds an edge between two ports. Type-incompatible, occupied, or
// cycle-closing edges are rejected before anything changes.
func (e *Editor) Connect(ctx context.Context, from uuid.UUID, output field.OutputID, to uuid.UUID, input field.InputID) error {
	log := ctxlog.FromContext(ctx)
	ev := history.AddEdge{From: from, Output: output, To: to, Input: input}
	if err := e.applyAddEdge(ev); err != nil {
		log.Warn("connect rejected", "from", output, "to", input, "error", err)
		return err
	}
	log.Debug("edge added", "from", output, "to", input)
	e.record(ev)
	e.runner.RequestProcess()
	return nil
}

// Disconnect removes an edge and restores the destination input to its
// stored pre-connection value. Absent edges are a no-op.
func (e *Editor) Disconnect(ctx context.Context, from uuid.UUID, output field.OutputID, to uuid.UUID, input field.InputID) error {
	ev := history.RemoveEdge{From: from, Output: output, To: to, Input: input}
	removed, err := e.applyRemoveEdge(ev)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	ctxlog.FromContext(ctx).Debug("edge removed", "from", output, "to", input)
	e.record(ev)
	e.runner.RequestProcess()
	return nil
}

// SetInputField sets an input port's value. On an unconnected port the
// stored fallback follows the value, so later hide or disconnect reverts
// to what the user last set.
func (e *Editor) SetInputField(ctx context.Context, entity uuid.UUID, port field.InputID, value field.Field) error {
	var (
		ev     history.SetInputField
		setErr error
	)
	err := e.withNode(entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
		old, ok := n.GetInput(port)
		if !ok {
			setErr = fmt.Errorf("set input %s: %w", port, node.ErrUnknownPort)
			return
		}
		if setErr = n.SetInput(port, value); setErr != nil {
			return
		}
		applied, _ := n.GetInput(port)
		if !inputConnected(g, idx, port) {
			if meta, ok := n.InputMeta(port); ok {
				meta.Storage = applied
				_ = n.SetInputMeta(port, meta)
			}
		}
		ev = history.SetInputField{Entity: entity, Port: port, Old: old, New: applied}
	})
	if err != nil {
		return err
	}
	if setErr != nil {
		ctxlog.FromContext(ctx).Warn("set input rejected", "port", port, "error", setErr)
		return setErr
	}
	e.record(ev)
	e.runner.RequestProcess()
	return nil
}

// SetOutputField sets an output port's value directly.
func (e *Editor) SetOutputField(ctx context.Context, entity uuid.UUID, port field.OutputID, value field.Field) error {
	var (
		ev     history.SetOutputField
		setErr error
	)
	err := e.withNode(entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
		old, ok := n.GetOutput(port)
		if !ok {
			setErr = fmt.Errorf("set output %s: %w", port, node.ErrUnknownPort)
			return
		}
		if setErr = n.SetOutput(port, value); setErr != nil {
			return
		}
		applied, _ := n.GetOutput(port)
		ev = history.SetOutputField{Entity: entity, Port: port, Old: old, New: applied}
	})
	if err != nil {
		return err
	}
	if setErr != nil {
		ctxlog.FromContext(ctx).Warn("set output rejected", "port", port, "error", setErr)
		return setErr
	}
	e.record(ev)
	e.runner.RequestProcess()
	return nil
}

// SetInputVisibility exposes or hides an input port. Hiding reverts the
// port to its stored value; the revert is its own event in the same
// transaction so undo restores both.
func (e *Editor) SetInputVisibility(ctx context.Context, entity uuid.UUID, port field.InputID, visible bool) error {
	var (
		events []history.Event
		setErr error
	)
	err := e.withNode(entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
		meta, ok := n.InputMeta(port)
		if !ok {
			setErr = fmt.Errorf("set input visibility %s: %w", port, node.ErrUnknownPort)
			return
		}
		if meta.Visible == visible {
			return
		}
		if !visible {
			cur, _ := n.GetInput(port)
			if !cur.Equal(meta.Storage) {
				if err := n.SetInput(port, meta.Storage); err == nil {
					events = append(events, history.SetInputField{Entity: entity, Port: port, Old: cur, New: meta.Storage})
				}
			}
		}
		old := meta.Visible
		meta.Visible = visible
		if setErr = n.SetInputMeta(port, meta); setErr != nil {
			return
		}
		events = append(events, history.SetInputVisibility{Entity: entity, Port: port, Old: old, New: visible})
	})
	if err != nil {
		return err
	}
	if setErr != nil {
		return setErr
	}
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		e.record(ev)
	}
	e.runner.RequestProcess()
	return nil
}

// SetOutputVisibility exposes or hides an output port.
func (e *Editor) SetOutputVisibility(ctx context.Context, entity uuid.UUID, port field.OutputID, visible bool) error {
	var (
		changed bool
		setErr  error
	)
	err := e.withNode(entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
		meta, ok := n.OutputMeta(port)
		if !ok {
			setErr = fmt.Errorf("set output visibility %s: %w", port, node.ErrUnknownPort)
			return
		}
		if meta.Visible == visible {
			return
		}
		old := meta.Visible
		meta.Visible = visible
		if setErr = n.SetOutputMeta(port, meta); setErr != nil {
			return
		}
		changed = old != visible
	})
	if err != nil {
		return err
	}
	if setErr != nil {
		return setErr
	}
	if !changed {
		return nil
	}
	e.record(history.SetOutputVisibility{Entity: entity, Port: port, Old: !visible, New: visible})
	e.runner.RequestProcess()
	return nil
}

// DragNode moves a node. Positions do not affect evaluation, so no
// reprocess is requested.
func (e *Editor) DragNode(ctx context.Context, entity uuid.UUID, from, to history.Position) error {
	if _, ok := e.findByEntity(entity); !ok {
		return fmt.Errorf("drag node %s: %w", entity, ErrUnknownEntity)
	}
	e.positions[entity] = to
	e.record(history.DragNode{Entity: entity, Old: from, New: to})
	return nil
}

// EndFrame commits the tick's buffered events as one transaction. Replay
// ticks never commit; their events were intentionally not buffered.
func (e *Editor) EndFrame() {
	if e.replaying || len(e.buffer) == 0 {
		e.buffer = nil
		return
	}
	e.hist.Record(e.buffer)
	e.buffer = nil
}

// Undo steps one transaction back. Past the beginning of history it is a
// no-op reporting false.
func (e *Editor) Undo(ctx context.Context) bool {
	tx, ok := e.hist.Undo()
	if !ok {
		return false
	}
	e.replay(ctx, tx)
	ctxlog.FromContext(ctx).Debug("undo applied", "events", len(tx))
	return true
}

// Redo re-applies the next undone transaction, if any.
func (e *Editor) Redo(ctx context.Context) bool {
	tx, ok := e.hist.Redo()
	if !ok {
		return false
	}
	e.replay(ctx, tx)
	ctxlog.FromContext(ctx).Debug("redo applied", "events", len(tx))
	return true
}

func (e *Editor) replay(ctx context.Context, tx history.Transaction) {
	log := ctxlog.FromContext(ctx)
	e.replaying = true
	defer func() { e.replaying = false }()
	for _, ev := range tx {
		if err := e.applyEvent(ev); err != nil {
			log.Warn("replay event failed", "event", fmt.Sprintf("%T", ev), "error", err)
		}
	}
	e.runner.RequestProcess()
}

// applyEvent is the single interpreter for replayed events. Forward intents
// go through the same apply helpers so replay cannot drift from live edits.
func (e *Editor) applyEvent(ev history.Event) error {
	switch ev := ev.(type) {
	case history.AddEdge:
		return e.applyAddEdge(ev)
	case history.RemoveEdge:
		_, err := e.applyRemoveEdge(ev)
		return err
	case history.SetInputField:
		return e.withNode(ev.Entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
			if err := n.SetInput(ev.Port, ev.New); err != nil {
				return
			}
			if !inputConnected(g, idx, ev.Port) {
				if meta, ok := n.InputMeta(ev.Port); ok {
					meta.Storage = ev.New
					_ = n.SetInputMeta(ev.Port, meta)
				}
			}
		})
	case history.SetOutputField:
		return e.withNode(ev.Entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
			_ = n.SetOutput(ev.Port, ev.New)
		})
	case history.SetInputVisibility:
		return e.withNode(ev.Entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
			if meta, ok := n.InputMeta(ev.Port); ok {
				meta.Visible = ev.New
				_ = n.SetInputMeta(ev.Port, meta)
			}
		})
	case history.SetOutputVisibility:
		return e.withNode(ev.Entity, func(g *graph.Graph, idx graph.Index, n node.Node) {
			if meta, ok := n.OutputMeta(ev.Port); ok {
				meta.Visible = ev.New
				_ = n.SetOutputMeta(ev.Port, meta)
			}
		})
	case history.AddNode:
		return e.applyAddNode(ev)
	case history.RemoveNode:
		idx, ok := e.findByEntity(ev.Entity)
		if !ok {
			return fmt.Errorf("remove node %s: %w", ev.Entity, ErrUnknownEntity)
		}
		e.runner.WithGraph(func(g *graph.Graph) {
			if n, removed := g.RemoveNode(idx); removed {
				e.limbo[ev.Entity] = n
			}
		})
		return nil
	case history.DragNode:
		e.positions[ev.Entity] = ev.New
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

// applyAddNode inserts the event's node: resurrected from limbo when the
// entity is parked there, freshly constructed otherwise.
func (e *Editor) applyAddNode(ev history.AddNode) error {
	n, ok := e.limbo[ev.Entity]
	if ok {
		delete(e.limbo, ev.Entity)
	} else {
		var err error
		n, err = node.New(ev.Kind, ev.Entity, e.dev)
		if err != nil {
			return err
		}
	}
	e.runner.WithGraph(func(g *graph.Graph) {
		g.AddNode(n)
	})
	e.positions[ev.Entity] = ev.Position
	return nil
}

func (e *Editor) applyAddEdge(ev history.AddEdge) error {
	var err error
	e.runner.WithGraph(func(g *graph.Graph) {
		src, ok := g.FindByEntity(ev.From)
		if !ok {
			err = fmt.Errorf("connect: source %s: %w", ev.From, ErrUnknownEntity)
			return
		}
		dst, ok := g.FindByEntity(ev.To)
		if !ok {
			err = fmt.Errorf("connect: target %s: %w", ev.To, ErrUnknownEntity)
			return
		}
		err = g.AddEdgeChecked(src, dst, graph.Edge{From: ev.Output, To: ev.Input})
	})
	return err
}

func (e *Editor) applyRemoveEdge(ev history.RemoveEdge) (bool, error) {
	var (
		removed bool
		err     error
	)
	e.runner.WithGraph(func(g *graph.Graph) {
		src, ok := g.FindByEntity(ev.From)
		if !ok {
			err = fmt.Errorf("disconnect: source %s: %w", ev.From, ErrUnknownEntity)
			return
		}
		dst, ok := g.FindByEntity(ev.To)
		if !ok {
			err = fmt.Errorf("disconnect: target %s: %w", ev.To, ErrUnknownEntity)
			return
		}
		removed = g.RemoveEdge(src, dst, graph.Edge{From: ev.Output, To: ev.Input})
		if !removed {
			return
		}
		n, ok := g.Node(dst)
		if !ok {
			return
		}
		if meta, ok := n.InputMeta(ev.Input); ok {
			_ = n.SetInput(ev.Input, meta.Storage)
		}
	})
	return removed, err
}

// withNode resolves an entity and hands its node to fn under the graph lock.
func (e *Editor) withNode(entity uuid.UUID, fn func(g *graph.Graph, idx graph.Index, n node.Node)) error {
	var err error
	e.runner.WithGraph(func(g *graph.Graph) {
		idx, ok := g.FindByEntity(entity)
		if !ok {
			err = fmt.Errorf("node %s: %w", entity, ErrUnknownEntity)
			return
		}
		n, ok := g.Node(idx)
		if !ok {
			err = fmt.Errorf("node %s: %w", entity, ErrUnknownEntity)
			return
		}
		fn(g, idx, n)
	})
	return err
}

func (e *Editor) findByEntity(entity uuid.UUID) (graph.Index, bool) {
	var (
		idx graph.Index
		ok  bool
	)
	e.runner.WithGraph(func(g *graph.Graph) {
		idx, ok = g.FindByEntity(entity)
	})
	return idx, ok
}

func (e *Editor) record(ev history.Event) {
	if e.replaying {
		return
	}
	e.buffer = append(e.buffer, ev)
}

func inputConnected(g *graph.Graph, idx graph.Index, port field.InputID) bool {
	for _, ref := range g.EdgesDirected(idx, graph.Incoming) {
		if ref.Edge.To == port {
			return true
		}
	}
	return false
}
