package editor

import (
	"context"
	"testing"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/history"
	"github.com/vk/pipegraph/internal/node"
	"github.com/vk/pipegraph/internal/pipeline"
)

func newTestEditor() *Editor {
	dev := node.NewDevice(gputypes.TextureFormatRGBA8Unorm, 2)
	return New(pipeline.NewRunner(graph.New()), dev)
}

func nodeByEntity(t *testing.T, e *Editor, entity uuid.UUID) node.Node {
	t.Helper()
	var found node.Node
	e.Runner().WithGraph(func(g *graph.Graph) {
		idx, ok := g.FindByEntity(entity)
		require.True(t, ok, "entity %s not in graph", entity)
		found, _ = g.Node(idx)
	})
	return found
}

func edgeCount(e *Editor) int {
	var n int
	e.Runner().WithGraph(func(g *graph.Graph) {
		n = len(g.Edges())
	})
	return n
}

func TestAddNode_Undoable(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	entity, err := e.AddNode(ctx, node.KindColor, history.Position{X: 10, Y: 20})
	require.NoError(t, err)
	e.EndFrame()

	nodeByEntity(t, e, entity)
	pos, ok := e.Position(entity)
	require.True(t, ok)
	assert.Equal(t, history.Position{X: 10, Y: 20}, pos)

	require.True(t, e.Undo(ctx))
	e.Runner().WithGraph(func(g *graph.Graph) {
		_, ok := g.FindByEntity(entity)
		assert.False(t, ok, "undoing an add must remove the node")
	})

	require.True(t, e.Redo(ctx))
	nodeByEntity(t, e, entity)
}

func TestRemoveNode_UndoResurrectsStateByEntity(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	entity, err := e.AddNode(ctx, node.KindColor, history.Position{})
	require.NoError(t, err)
	magenta := field.NewColor(gg.RGB(1, 0, 1))
	require.NoError(t, e.SetOutputField(ctx, entity, node.ColorOut, magenta))
	e.EndFrame()

	require.NoError(t, e.RemoveNode(ctx, entity))
	e.EndFrame()
	e.Runner().WithGraph(func(g *graph.Graph) {
		_, ok := g.FindByEntity(entity)
		require.False(t, ok)
	})

	require.True(t, e.Undo(ctx))

	// Same entity, same state: the node came back from limbo, not from a
	// fresh construction.
	n := nodeByEntity(t, e, entity)
	out, ok := n.GetOutput(node.ColorOut)
	require.True(t, ok)
	assert.True(t, magenta.Equal(out), "resurrected node must keep its edited output")
}

func TestRemoveNode_DisconnectsEdgesAndUndoRestoresThem(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	color, err := e.AddNode(ctx, node.KindColor, history.Position{})
	require.NoError(t, err)
	blend, err := e.AddNode(ctx, node.KindBlend, history.Position{})
	require.NoError(t, err)
	require.NoError(t, e.Connect(ctx, color, node.ColorOut, blend, node.BlendInputA))
	e.EndFrame()

	require.NoError(t, e.RemoveNode(ctx, color))
	e.EndFrame()
	assert.Zero(t, edgeCount(e))

	// One undo restores the node and its incident edge together.
	require.True(t, e.Undo(ctx))
	nodeByEntity(t, e, color)
	assert.Equal(t, 1, edgeCount(e))
}

func TestConnect_RejectedEdgeRecordsNothing(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	color, err := e.AddNode(ctx, node.KindColor, history.Position{})
	require.NoError(t, err)
	blend, err := e.AddNode(ctx, node.KindBlend, history.Position{})
	require.NoError(t, err)

	// A color cannot feed the numeric blend mode port.
	err = e.Connect(ctx, color, node.ColorOut, blend, node.BlendMode)
	require.Error(t, err)
	e.EndFrame()

	assert.Zero(t, edgeCount(e))
	require.True(t, e.Undo(ctx), "the add-node frame is still undoable")
	e.Runner().WithGraph(func(g *graph.Graph) {
		assert.Zero(t, g.Len(), "no edge event may linger in the transaction")
	})
}

func TestDisconnect_RestoresStoredValue(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	color, err := e.AddNode(ctx, node.KindColor, history.Position{})
	require.NoError(t, err)
	blend, err := e.AddNode(ctx, node.KindBlend, history.Position{})
	require.NoError(t, err)

	// The user sets an operand by hand, then wires a source over it.
	cyan := field.NewColor(gg.RGB(0, 1, 1))
	require.NoError(t, e.SetInputField(ctx, blend, node.BlendInputA, cyan))
	require.NoError(t, e.SetInputField(ctx, color, node.ColorIn, field.NewColor(gg.RGB(1, 0, 1))))
	require.NoError(t, e.Connect(ctx, color, node.ColorOut, blend, node.BlendInputA))
	e.EndFrame()

	// A run propagates the upstream color into the connected port.
	_, err = e.Runner().RunOnce(ctx)
	require.NoError(t, err)
	got, _ := nodeByEntity(t, e, blend).GetInput(node.BlendInputA)
	propagated, convErr := got.Color()
	require.NoError(t, convErr)
	assert.Equal(t, gg.RGB(1, 0, 1), propagated)

	// Disconnecting reverts to the last hand-set value.
	require.NoError(t, e.Disconnect(ctx, color, node.ColorOut, blend, node.BlendInputA))
	got, _ = nodeByEntity(t, e, blend).GetInput(node.BlendInputA)
	assert.True(t, cyan.Equal(got))
}

func TestSetInputField_UndoRestoresOldValue(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	shape, err := e.AddNode(ctx, node.KindShape, history.Position{})
	require.NoError(t, err)
	e.EndFrame()

	require.NoError(t, e.SetInputField(ctx, shape, node.ShapeTextureSize, field.NewU32(64)))
	e.EndFrame()

	require.True(t, e.Undo(ctx))
	got, _ := nodeByEntity(t, e, shape).GetInput(node.ShapeTextureSize)
	v, convErr := got.U32()
	require.NoError(t, convErr)
	assert.EqualValues(t, 512, v)

	require.True(t, e.Redo(ctx))
	got, _ = nodeByEntity(t, e, shape).GetInput(node.ShapeTextureSize)
	v, convErr = got.U32()
	require.NoError(t, convErr)
	assert.EqualValues(t, 64, v)
}

func TestHideInput_RevertsValueWithPairedEvent(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	shape, err := e.AddNode(ctx, node.KindShape, history.Position{})
	require.NoError(t, err)
	require.NoError(t, e.SetInputVisibility(ctx, shape, node.ShapeTextureSize, true))
	require.NoError(t, e.SetInputField(ctx, shape, node.ShapeTextureSize, field.NewU32(64)))
	e.EndFrame()

	// Drift the live value away from the stored one, the way propagation
	// over a connection would.
	e.Runner().WithGraph(func(g *graph.Graph) {
		idx, ok := g.FindByEntity(shape)
		require.True(t, ok)
		n, _ := g.Node(idx)
		require.NoError(t, n.SetInput(node.ShapeTextureSize, field.NewU32(32)))
	})

	require.NoError(t, e.SetInputVisibility(ctx, shape, node.ShapeTextureSize, false))

	// Two buffered events: the value revert, then the visibility change.
	require.Len(t, e.buffer, 2)
	assert.IsType(t, history.SetInputField{}, e.buffer[0])
	assert.IsType(t, history.SetInputVisibility{}, e.buffer[1])
	e.EndFrame()

	n := nodeByEntity(t, e, shape)
	got, _ := n.GetInput(node.ShapeTextureSize)
	v, convErr := got.U32()
	require.NoError(t, convErr)
	assert.EqualValues(t, 64, v, "hiding reverts to the stored value")
	meta, _ := n.InputMeta(node.ShapeTextureSize)
	assert.False(t, meta.Visible)

	// Undo restores both the drifted value and the visibility.
	require.True(t, e.Undo(ctx))
	n = nodeByEntity(t, e, shape)
	got, _ = n.GetInput(node.ShapeTextureSize)
	v, convErr = got.U32()
	require.NoError(t, convErr)
	assert.EqualValues(t, 32, v)
	meta, _ = n.InputMeta(node.ShapeTextureSize)
	assert.True(t, meta.Visible)
}

func TestDragNode_UndoRestoresPosition(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	entity, err := e.AddNode(ctx, node.KindColor, history.Position{X: 1, Y: 1})
	require.NoError(t, err)
	e.EndFrame()

	require.NoError(t, e.DragNode(ctx, entity, history.Position{X: 1, Y: 1}, history.Position{X: 8, Y: 2}))
	e.EndFrame()

	pos, _ := e.Position(entity)
	assert.Equal(t, history.Position{X: 8, Y: 2}, pos)

	require.True(t, e.Undo(ctx))
	pos, _ = e.Position(entity)
	assert.Equal(t, history.Position{X: 1, Y: 1}, pos)
}

func TestUndoThenEdit_TruncatesRedo(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	entity, err := e.AddNode(ctx, node.KindShape, history.Position{})
	require.NoError(t, err)
	e.EndFrame()

	require.NoError(t, e.SetInputField(ctx, entity, node.ShapeTextureSize, field.NewU32(64)))
	e.EndFrame()

	require.True(t, e.Undo(ctx))
	require.True(t, e.History().CanRedo())

	// Committing a fresh edit discards the redo branch.
	require.NoError(t, e.SetInputField(ctx, entity, node.ShapeTextureSize, field.NewU32(128)))
	e.EndFrame()
	assert.False(t, e.History().CanRedo())
	assert.False(t, e.Redo(ctx))
}

func TestUndoAtBeginningIsNoOp(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()
	assert.False(t, e.Undo(ctx))
	assert.False(t, e.Redo(ctx))
}

func TestReplayedTransactionsAreNotReRecorded(t *testing.T) {
	ctx := context.Background()
	e := newTestEditor()

	_, err := e.AddNode(ctx, node.KindColor, history.Position{})
	require.NoError(t, err)
	e.EndFrame()
	require.Equal(t, 1, e.History().Len())

	require.True(t, e.Undo(ctx))
	e.EndFrame()
	require.True(t, e.Redo(ctx))
	e.EndFrame()

	assert.Equal(t, 1, e.History().Len(), "undo and redo must not grow the log")
}
