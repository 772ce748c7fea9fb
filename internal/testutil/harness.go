// Package testutil holds shared helpers for package tests: a thread-safe
// log capture buffer and a small editing rig wiring a device, runner, and
// editor together.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipegraph/internal/ctxlog"
	"github.com/vk/pipegraph/internal/editor"
	"github.com/vk/pipegraph/internal/graph"
	"github.com/vk/pipegraph/internal/node"
	"github.com/vk/pipegraph/internal/pipeline"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Rig is a fully wired editing stack over an empty graph.
type Rig struct {
	Ctx    context.Context
	Device node.Device
	Runner *pipeline.Runner
	Editor *editor.Editor
	Logs   *SafeBuffer
}

// NewRig builds a Rig with debug logging captured in Logs.
func NewRig(t *testing.T) *Rig {
	t.Helper()

	logs := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	dev := node.NewDevice(gputypes.TextureFormatRGBA8Unorm, 4)
	runner := pipeline.NewRunner(graph.New())
	ed := editor.New(runner, dev)

	return &Rig{
		Ctx:    ctx,
		Device: dev,
		Runner: runner,
		Editor: ed,
		Logs:   logs,
	}
}

// Graph returns a deep snapshot of the rig's live graph.
func (r *Rig) Graph() *graph.Graph {
	return r.Runner.Snapshot()
}

// MustRun evaluates the rig's graph once and fails the test on error.
func (r *Rig) MustRun(t *testing.T) pipeline.Result {
	t.Helper()
	res, err := r.Runner.RunOnce(r.Ctx)
	require.NoError(t, err)
	return res
}
