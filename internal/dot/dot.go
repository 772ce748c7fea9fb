// Package dot renders a graph as Graphviz DOT for inspection outside the
// editor.
package dot

import (
	"fmt"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
	"github.com/vk/pipegraph/internal/graph"
)

// Export renders the graph. Nodes are labelled with their kind and a short
// entity prefix; edges carry the port pair they connect.
func Export(g *graph.Graph) (string, error) {
	out := gographviz.NewGraph()
	if err := out.SetName("pipegraph"); err != nil {
		return "", err
	}
	if err := out.SetDir(true); err != nil {
		return "", err
	}

	names := make(map[graph.Index]string)
	for _, idx := range g.Indices() {
		n, ok := g.Node(idx)
		if !ok {
			continue
		}
		name := nodeName(n.Kind(), n.Entity().String())
		names[idx] = name
		attrs := map[string]string{
			"label": fmt.Sprintf("%q", n.Kind()+"\n"+shortID(n.Entity().String())),
			"shape": "box",
		}
		if err := out.AddNode("pipegraph", name, attrs); err != nil {
			return "", err
		}
	}

	for _, ref := range g.Edges() {
		src, ok := names[ref.Source]
		if !ok {
			continue
		}
		dst, ok := names[ref.Target]
		if !ok {
			continue
		}
		attrs := map[string]string{
			"taillabel": fmt.Sprintf("%q", ref.Edge.From.Field),
			"headlabel": fmt.Sprintf("%q", ref.Edge.To.Field),
		}
		if err := out.AddEdge(src, dst, true, attrs); err != nil {
			return "", err
		}
	}

	return out.String(), nil
}

func nodeName(kind, entity string) string {
	return kind + "_" + strings.ReplaceAll(shortID(entity), "-", "")
}

func shortID(entity string) string {
	if len(entity) > 8 {
		return entity[:8]
	}
	return entity
}
