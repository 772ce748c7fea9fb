package persist

import (
	"context"
	"encoding/json"
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
)

func testDevice() node.Device {
	return node.NewDevice(gputypes.TextureFormatRGBA8Unorm, 2)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dev := testDevice()
	g := graph.New()

	color, err := node.New(node.KindColor, uuid.New(), dev)
	require.NoError(t, err)
	magenta := field.NewColor(gg.RGB(1, 0, 1))
	require.NoError(t, color.SetInput(node.ColorIn, magenta))
	colorIdx := g.AddNode(color)

	shape, err := node.New(node.KindShape, uuid.New(), dev)
	require.NoError(t, err)
	require.NoError(t, shape.SetInput(node.ShapeTextureSize, field.NewU32(64)))
	meta, ok := shape.InputMeta(node.ShapeTextureSize)
	require.True(t, ok)
	meta.Visible = true
	meta.Storage = field.NewU32(64)
	require.NoError(t, shape.SetInputMeta(node.ShapeTextureSize, meta))
	shapeIdx := g.AddNode(shape)

	blend, err := node.New(node.KindBlend, uuid.New(), dev)
	require.NoError(t, err)
	blendIdx := g.AddNode(blend)

	require.NoError(t, g.AddEdgeChecked(colorIdx, blendIdx, graph.Edge{From: node.ColorOut, To: node.BlendInputA}))
	require.NoError(t, g.AddEdgeChecked(shapeIdx, blendIdx, graph.Edge{From: node.ShapeOutput, To: node.BlendInputB}))

	positions := map[uuid.UUID]history.Position{
		color.Entity(): {X: 10, Y: 20},
		shape.Entity(): {X: 30, Y: 40},
		blend.Entity(): {X: 50, Y: 60},
	}

	data, err := Save(g, positions)
	require.NoError(t, err)

	loaded, loadedPositions, err := Load(data, dev)
	require.NoError(t, err)

	assert.Equal(t, positions, loadedPositions)
	require.Equal(t, 3, loaded.Len())
	require.Len(t, loaded.Edges(), 2)

	// Entities survive the round trip and carry their edited state.
	colorIdx2, ok := loaded.FindByEntity(color.Entity())
	require.True(t, ok)
	loadedColor, _ := loaded.Node(colorIdx2)
	assert.Equal(t, node.KindColor, loadedColor.Kind())
	got, _ := loadedColor.GetInput(node.ColorIn)
	assert.True(t, magenta.Equal(got))

	shapeIdx2, ok := loaded.FindByEntity(shape.Entity())
	require.True(t, ok)
	loadedShape, _ := loaded.Node(shapeIdx2)
	got, _ = loadedShape.GetInput(node.ShapeTextureSize)
	v, convErr := got.U32()
	require.NoError(t, convErr)
	assert.EqualValues(t, 64, v)

	// Metadata round trip: the edited meta landed after rewiring, so the
	// saved storage was not clobbered by edge insertion.
	loadedMeta, ok := loadedShape.InputMeta(node.ShapeTextureSize)
	require.True(t, ok)
	assert.True(t, loadedMeta.Visible)
	assert.True(t, field.NewU32(64).Equal(loadedMeta.Storage))

	// Edges came back by entity identity.
	blendIdx2, ok := loaded.FindByEntity(blend.Entity())
	require.True(t, ok)
	var incoming int
	for _, ref := range loaded.EdgesDirected(blendIdx2, graph.Incoming) {
		incoming++
		assert.Equal(t, blendIdx2, ref.Target)
	}
	assert.Equal(t, 2, incoming)
}

func TestSaveLoad_ImageValuesComeBackEmpty(t *testing.T) {
	dev := testDevice()
	g := graph.New()

	shape, err := node.New(node.KindShape, uuid.New(), dev)
	require.NoError(t, err)
	require.NoError(t, shape.SetInput(node.ShapeTextureSize, field.NewU32(8)))
	g.AddNode(shape)

	// Process so the output holds a real buffer before saving.
	require.NoError(t, shape.Process(context.Background()))
	out, _ := shape.GetOutput(node.ShapeOutput)
	img, err := out.Image()
	require.NoError(t, err)
	require.NotNil(t, img)

	data, err := Save(g, nil)
	require.NoError(t, err)

	loaded, _, err := Load(data, dev)
	require.NoError(t, err)
	idx2, ok := loaded.FindByEntity(shape.Entity())
	require.True(t, ok)

	n, _ := loaded.Node(idx2)
	out, _ = n.GetOutput(node.ShapeOutput)
	img, err = out.Image()
	require.NoError(t, err)
	assert.Nil(t, img, "pixel data is not persisted; the first run recomputes it")
}

func TestLoad_RejectsMalformedInput(t *testing.T) {
	dev := testDevice()

	_, _, err := Load([]byte("{nope"), dev)
	require.ErrorContains(t, err, "parse document")

	_, _, err = Load([]byte(`{"nodes":[{"kind":"Nope","entity":"7c9e6679-7425-40de-944b-e07fc1f90ae7"}]}`), dev)
	require.ErrorContains(t, err, "unknown node kind")
}

func TestLoad_RejectsEdgeWithUnknownEntity(t *testing.T) {
	dev := testDevice()
	g := graph.New()
	color, err := node.New(node.KindColor, uuid.New(), dev)
	require.NoError(t, err)
	g.AddNode(color)

	data, err := Save(g, nil)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	doc.Edges = append(doc.Edges, EdgeSnapshot{
		FromEntity: color.Entity(),
		Output:     node.ColorOut.String(),
		ToEntity:   uuid.New(),
		Input:      node.BlendInputA.String(),
	})
	mutated, err := json.Marshal(doc)
	require.NoError(t, err)

	_, _, err = Load(mutated, dev)
	require.ErrorContains(t, err, "unknown target entity")
}
