package node

import (
	"context"

	"github.com/gogpu/gputypes"
)

// DefaultTextureSize is the edge length of rasterized textures when a node
// does not override it.
const DefaultTextureSize uint32 = 512

// Device is a shared handle to the rasterization backend. Submissions queue
// on a bounded slot pool so concurrent node processing does not oversubscribe
// the renderer; the wait is the cancellation point for in-flight runs.
// The zero Device is not usable; construct with NewDevice.
type Device struct {
	s *deviceState
}

type deviceState struct {
	format gputypes.TextureFormat
	slots  chan struct{}
}

// NewDevice creates a device with the given preferred texture format and
// at most workers concurrent submissions.
func NewDevice(format gputypes.TextureFormat, workers int) Device {
	if workers < 1 {
		workers = 1
	}
	return Device{s: &deviceState{
		format: format,
		slots:  make(chan struct{}, workers),
	}}
}

// Format reports the preferred texture format for produced images.
func (d Device) Format() gputypes.TextureFormat { return d.s.format }

// Submit runs render on an available device slot. It blocks until a slot
// frees up or ctx is cancelled, in which case render never runs and the
// ctx error is returned.
func (d Device) Submit(ctx context.Context, render func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case d.s.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.s.slots }()
	render()
	return nil
}
