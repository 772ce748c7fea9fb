package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/vk/pipegraph/internal/config"
	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/editor"
	"github.com/vk/pipegraph/internal/field"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/node"
	"github.com/vk/pipegraph/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *config.Config
	device node.Device
	editor *editor.Editor
}

// NewApp is the constructor for the headless pipeline application. It
// returns a fully initialized App with its own isolated logger, device,
// and editor.
func NewApp(outW io.Writer, appConfig *Config) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfg := config.Default()
	if appConfig.ConfigPath != "" {
		loaded, err := config.Load(ctx, appConfig.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
	}
	if appConfig.WorkerCount > 0 {
		cfg.Workers = appConfig.WorkerCount
	}
	// A configured texture size feeds new shape nodes through the same
	// default-override path as any other per-kind setting. An explicit
	// node_defaults entry wins.
	if cfg.TextureSize > 0 {
		if _, ok := cfg.Defaults[node.KindShape]["texture_size"]; !ok {
			if cfg.Defaults[node.KindShape] == nil {
				cfg.Defaults[node.KindShape] = make(map[string]field.Field)
			}
			cfg.Defaults[node.KindShape]["texture_size"] = field.NewU32(cfg.TextureSize)
		}
	}

	device := node.NewDevice(gputypes.TextureFormatRGBA8Unorm, cfg.Workers)
	runner := pipeline.NewRunner(graph.New())
	ed := editor.New(runner, device)
	logger.Debug("Device and editor initialized.", "workers", cfg.Workers)

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		device: device,
		editor: ed,
	}, nil
}

// Editor returns the application's editor. This is primarily for testing.
func (a *App) Editor() *editor.Editor {
	return a.editor
}
