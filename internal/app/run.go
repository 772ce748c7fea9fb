package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/gg"
	"github.com/google/uuid"

	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/dot"
	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/history"
	"github.com/vk/pipegraph/internal/node"
	"github.com/vk/pipegraph/internal/persist"
)

// Run executes the headless pipeline pass: load or build a graph, evaluate
// it to completion once, and write the requested outputs.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.DocumentPath != "" {
		if err := a.loadDocument(ctx, appConfig.DocumentPath); err != nil {
			return err
		}
	} else {
		if err := a.buildDemoGraph(ctx); err != nil {
			return err
		}
	}

	runner := a.editor.Runner()
	a.logger.Info("Starting pipeline evaluation...")
	res, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	a.logger.Info("Pipeline evaluation finished.", "nodes", len(res.Nodes), "failures", len(res.Errors))
	for idx, nodeErr := range res.Errors {
		a.logger.Warn("node failed during run", "index", idx, "error", nodeErr)
	}

	if appConfig.OutputDir != "" {
		if err := a.writeOutputs(ctx, appConfig.OutputDir); err != nil {
			return err
		}
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// loadDocument replaces the live graph with the saved document's contents.
func (a *App) loadDocument(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	loaded, positions, err := persist.Load(data, a.device)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	a.editor.Runner().WithGraph(func(g *graph.Graph) {
		*g = *loaded
	})
	for entity, pos := range positions {
		a.editor.SetPosition(entity, pos)
	}
	ctxlog.FromContext(ctx).Info("Document loaded.", "path", path, "nodes", loaded.Len())
	return nil
}

// buildDemoGraph assembles the built-in demo: two colors blended over each
// other, with configured per-kind defaults applied.
func (a *App) buildDemoGraph(ctx context.Context) error {
	magenta, err := a.editor.AddNode(ctx, node.KindColor, history.Position{X: 0, Y: 0})
	if err != nil {
		return err
	}
	cyan, err := a.editor.AddNode(ctx, node.KindColor, history.Position{X: 0, Y: 160})
	if err != nil {
		return err
	}
	blend, err := a.editor.AddNode(ctx, node.KindBlend, history.Position{X: 240, Y: 80})
	if err != nil {
		return err
	}

	for _, pair := range []struct {
		entity uuid.UUID
		kind   string
	}{{magenta, node.KindColor}, {cyan, node.KindColor}, {blend, node.KindBlend}} {
		if err := a.applyDefaults(ctx, pair.entity, pair.kind); err != nil {
			return err
		}
	}
	if err := a.editor.SetOutputField(ctx, magenta, node.ColorOut, field.NewColor(gg.RGB(1, 0, 1))); err != nil {
		return err
	}
	if err := a.editor.SetOutputField(ctx, cyan, node.ColorOut, field.NewColor(gg.RGB(0, 1, 1))); err != nil {
		return err
	}

	if err := a.editor.Connect(ctx, magenta, node.ColorOut, blend, node.BlendInputA); err != nil {
		return err
	}
	if err := a.editor.Connect(ctx, cyan, node.ColorOut, blend, node.BlendInputB); err != nil {
		return err
	}
	a.editor.EndFrame()
	return nil
}

// applyDefaults feeds the configured per-kind input overrides to one node.
func (a *App) applyDefaults(ctx context.Context, entity uuid.UUID, kind string) error {
	overrides, ok := a.cfg.Defaults[kind]
	if !ok {
		return nil
	}
	for name, value := range overrides {
		id := field.InputID{Node: kind, Field: name}
		if err := a.editor.SetInputField(ctx, entity, id, value); err != nil {
			return fmt.Errorf("default %s: %w", id, err)
		}
	}
	return nil
}

// writeOutputs renders every visible image output to a PNG and the graph
// structure to a DOT file.
func (a *App) writeOutputs(ctx context.Context, dir string) error {
	log := ctxlog.FromContext(ctx)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	snapshot := a.editor.Runner().Snapshot()
	for _, idx := range snapshot.Indices() {
		n, ok := snapshot.Node(idx)
		if !ok {
			continue
		}
		for _, id := range n.OutputFields() {
			meta, ok := n.OutputMeta(id)
			if !ok || !meta.Visible {
				continue
			}
			v, ok := n.GetOutput(id)
			if !ok || v.Kind() != field.KindImage {
				continue
			}
			img, err := v.Image()
			if err != nil || img == nil {
				continue
			}
			name := fmt.Sprintf("%s_%s_%s.png", n.Kind(), shortEntity(n.Entity().String()), id.Field)
			path := filepath.Join(dir, name)
			if err := savePNG(img, path); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			log.Info("Image written.", "path", path)
		}
	}

	rendered, err := dot.Export(snapshot)
	if err != nil {
		return fmt.Errorf("render dot: %w", err)
	}
	dotPath := filepath.Join(dir, "graph.dot")
	if err := os.WriteFile(dotPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dotPath, err)
	}
	log.Info("Graph exported.", "path", dotPath)
	return nil
}

func savePNG(img *gg.ImageBuf, path string) error {
	dc := gg.NewContext(img.Width(), img.Height())
	dc.DrawImage(img, 0, 0)
	return dc.SavePNG(path)
}

func shortEntity(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
