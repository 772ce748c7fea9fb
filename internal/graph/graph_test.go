package graph

import (
	"testing"

	"github.com/gogpu/gg"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/node"
)

func testDevice() node.Device {
	return node.NewDevice(gputypes.TextureFormatRGBA8Unorm, 2)
}

func addColor(t *testing.T, g *Graph) (Index, uuid.UUID) {
	t.Helper()
	entity := uuid.New()
	n, err := node.New(node.KindColor, entity, testDevice())
	require.NoError(t, err)
	return g.AddNode(n), entity
}

func addBlend(t *testing.T, g *Graph) (Index, uuid.UUID) {
	t.Helper()
	entity := uuid.New()
	n, err := node.New(node.KindBlend, entity, testDevice())
	require.NoError(t, err)
	return g.AddNode(n), entity
}

func TestAddRemoveNode(t *testing.T) {
	g := New()
	require.Equal(t, 0, g.Len())

	idx, entity := addColor(t, g)
	assert.Equal(t, 1, g.Len())

	n, ok := g.Node(idx)
	require.True(t, ok)
	assert.Equal(t, entity, n.Entity())

	found, ok := g.FindByEntity(entity)
	require.True(t, ok)
	assert.Equal(t, idx, found)

	removed, ok := g.RemoveNode(idx)
	require.True(t, ok)
	assert.Equal(t, entity, removed.Entity())
	assert.Equal(t, 0, g.Len())

	_, ok = g.Node(idx)
	assert.False(t, ok)
}

func TestStaleIndexAfterSlotReuse(t *testing.T) {
	g := New()
	idx, _ := addColor(t, g)
	_, ok := g.RemoveNode(idx)
	require.True(t, ok)

	// The new node reuses the slot with a bumped generation.
	idx2, _ := addColor(t, g)
	require.Equal(t, 1, g.Len())

	_, ok = g.Node(idx)
	assert.False(t, ok, "old index must not resolve to the new occupant")
	_, ok = g.Node(idx2)
	assert.True(t, ok)

	err := g.SetNode(idx, nil)
	assert.ErrorIs(t, err, ErrStaleIndex)
}

func TestAddEdgeChecked(t *testing.T) {
	t.Run("valid edge", func(t *testing.T) {
		g := New()
		src, _ := addColor(t, g)
		dst, _ := addBlend(t, g)

		err := g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: node.BlendInputA})
		require.NoError(t, err)
		assert.Len(t, g.EdgesDirected(dst, Incoming), 1)
		assert.Len(t, g.EdgesDirected(src, Outgoing), 1)
	})

	t.Run("unknown ports", func(t *testing.T) {
		g := New()
		src, _ := addColor(t, g)
		dst, _ := addBlend(t, g)

		err := g.AddEdgeChecked(src, dst, Edge{
			From: field.OutputID{Node: node.KindColor, Field: "nope"},
			To:   node.BlendInputA,
		})
		assert.ErrorIs(t, err, node.ErrUnknownPort)
	})

	t.Run("occupied input rejected and graph unchanged", func(t *testing.T) {
		g := New()
		a, _ := addColor(t, g)
		b, _ := addColor(t, g)
		dst, _ := addBlend(t, g)

		require.NoError(t, g.AddEdgeChecked(a, dst, Edge{From: node.ColorOut, To: node.BlendInputA}))
		err := g.AddEdgeChecked(b, dst, Edge{From: node.ColorOut, To: node.BlendInputA})
		assert.ErrorIs(t, err, ErrPortAlreadyConnected)
		assert.Len(t, g.EdgesDirected(dst, Incoming), 1)
	})

	t.Run("incompatible field kinds rejected", func(t *testing.T) {
		g := New()
		src, _ := addColor(t, g)
		dst, _ := addBlend(t, g)

		// A color output cannot drive the numeric blend_mode port.
		err := g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: node.BlendMode})
		var convErr *field.ConversionError
		assert.ErrorAs(t, err, &convErr)
		assert.Empty(t, g.EdgesDirected(dst, Incoming))
	})

	t.Run("self edge rejected", func(t *testing.T) {
		g := New()
		idx, _ := addBlend(t, g)
		err := g.AddEdgeChecked(idx, idx, Edge{From: node.BlendOutput, To: node.BlendInputA})
		assert.ErrorIs(t, err, ErrWouldCycle)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		g := New()
		a, _ := addBlend(t, g)
		b, _ := addBlend(t, g)

		require.NoError(t, g.AddEdgeChecked(a, b, Edge{From: node.BlendOutput, To: node.BlendInputA}))
		err := g.AddEdgeChecked(b, a, Edge{From: node.BlendOutput, To: node.BlendInputA})
		assert.ErrorIs(t, err, ErrWouldCycle)
	})

	t.Run("stale endpoints rejected", func(t *testing.T) {
		g := New()
		src, _ := addColor(t, g)
		dst, _ := addBlend(t, g)
		_, ok := g.RemoveNode(src)
		require.True(t, ok)

		err := g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: node.BlendInputA})
		assert.ErrorIs(t, err, ErrStaleIndex)
	})
}

func TestAddEdgeChecked_SeedsMetaStorage(t *testing.T) {
	g := New()
	src, _ := addColor(t, g)
	dst, _ := addBlend(t, g)

	dstNode, ok := g.Node(dst)
	require.True(t, ok)
	preConnect, ok := dstNode.GetInput(node.BlendInputA)
	require.True(t, ok)

	require.NoError(t, g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: node.BlendInputA}))

	meta, ok := dstNode.InputMeta(node.BlendInputA)
	require.True(t, ok)
	assert.Equal(t, preConnect.Kind(), meta.Storage.Kind())
}

func TestRemoveEdgeIdempotent(t *testing.T) {
	g := New()
	src, _ := addColor(t, g)
	dst, _ := addBlend(t, g)
	e := Edge{From: node.ColorOut, To: node.BlendInputA}

	require.NoError(t, g.AddEdgeChecked(src, dst, e))
	assert.True(t, g.RemoveEdge(src, dst, e))
	assert.False(t, g.RemoveEdge(src, dst, e))
	assert.Empty(t, g.EdgesDirected(dst, Incoming))
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	g := New()
	src, _ := addColor(t, g)
	dst, _ := addBlend(t, g)
	require.NoError(t, g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: node.BlendInputA}))

	_, ok := g.RemoveNode(src)
	require.True(t, ok)
	assert.Empty(t, g.EdgesDirected(dst, Incoming))
	assert.Empty(t, g.Edges())
}

func TestCloneIsDeep(t *testing.T) {
	g := New()
	idx, entity := addColor(t, g)
	n, ok := g.Node(idx)
	require.True(t, ok)
	require.NoError(t, n.SetOutput(node.ColorOut, field.NewColor(gg.RGB(1, 0, 1))))

	clone := g.Clone()

	// Mutating the original must not leak into the clone.
	require.NoError(t, n.SetOutput(node.ColorOut, field.NewColor(gg.RGB(0, 1, 0))))

	cloned, ok := clone.Node(idx)
	require.True(t, ok)
	assert.Equal(t, entity, cloned.Entity())
	out, ok := cloned.GetOutput(node.ColorOut)
	require.True(t, ok)
	c, err := out.Color()
	require.NoError(t, err)
	assert.Equal(t, gg.RGB(1, 0, 1), c)

	// Edges and indices carry over.
	assert.Equal(t, g.Len(), clone.Len())
}

// Any sequence of edge insertions leaves every input port with at most one
// incoming edge.
func TestAtMostOneIncomingEdgeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	inputs := []field.InputID{node.BlendInputA, node.BlendInputB, node.BlendMode}

	properties.Property("inputs keep at most one incoming edge", prop.ForAll(
		func(attempts []int) bool {
			g := New()
			var sources []Index
			for i := 0; i < 3; i++ {
				n, err := node.New(node.KindColor, uuid.New(), testDevice())
				if err != nil {
					return false
				}
				sources = append(sources, g.AddNode(n))
			}
			blend, err := node.New(node.KindBlend, uuid.New(), testDevice())
			if err != nil {
				return false
			}
			dst := g.AddNode(blend)

			for _, a := range attempts {
				src := sources[a%len(sources)]
				in := inputs[(a/len(sources))%len(inputs)]
				_ = g.AddEdgeChecked(src, dst, Edge{From: node.ColorOut, To: in})
			}

			counts := map[field.InputID]int{}
			for _, ref := range g.EdgesDirected(dst, Incoming) {
				counts[ref.Edge.To]++
				if counts[ref.Edge.To] > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 32)),
	))

	properties.TestingRun(t)
}
