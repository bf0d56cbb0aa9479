// Package relay carries renderer side channels, audio and video planes,
// to the embedder.
//
// Each source owns one worker goroutine that serializes its requests. The
// worker starts with the first request and stops with Shutdown.
package relay

import (
	"context"
	"errors"

	"github.com/gogpu/viewbackend/bridge"
	"github.com/gogpu/viewbackend/internal/loop"
	"github.com/gogpu/viewbackend/ownedfd"
)

// ErrShutdown is returned after Shutdown.
var ErrShutdown = errors.New("relay: shut down")

// run executes fn on w and returns its error.
func run(ctx context.Context, w *loop.Worker, fn func() error) error {
	var err error
	if cerr := w.Call(ctx, func() { err = fn() }); cerr != nil {
		if errors.Is(cerr, loop.ErrStopped) {
			return ErrShutdown
		}
		return cerr
	}
	return err
}

// AudioSource streams audio packets from a renderer.
type AudioSource struct {
	c *bridge.Client
	w *loop.Worker

	// Worker-owned.
	nextStream uint32
}

// NewAudioSource creates an audio source sending through c.
func NewAudioSource(c *bridge.Client) *AudioSource {
	return &AudioSource{c: c, w: loop.NewWorker("audio")}
}

// Start announces a stream and returns its id.
func (a *AudioSource) Start(ctx context.Context, channels int32, layout string, sampleRate int32) (uint32, error) {
	var id uint32
	err := run(ctx, a.w, func() error {
		a.nextStream++
		id = a.nextStream
		return a.c.StartAudioStream(id, channels, layout, sampleRate)
	})
	return id, err
}

// Packet sends frames of stream held in fd. released runs on the client's
// reader goroutine once the embedder consumed the packet.
func (a *AudioSource) Packet(ctx context.Context, stream uint32, fd *ownedfd.FD, frames uint32, released func()) error {
	return run(ctx, a.w, func() error { return a.c.SendAudioPacket(stream, fd, frames, released) })
}

// Stop ends stream.
func (a *AudioSource) Stop(ctx context.Context, stream uint32) error {
	return run(ctx, a.w, func() error { return a.c.StopAudioStream(stream) })
}

// Pause pauses stream.
func (a *AudioSource) Pause(ctx context.Context, stream uint32) error {
	return run(ctx, a.w, func() error { return a.c.PauseAudioStream(stream) })
}

// Resume resumes stream.
func (a *AudioSource) Resume(ctx context.Context, stream uint32) error {
	return run(ctx, a.w, func() error { return a.c.ResumeAudioStream(stream) })
}

// Shutdown stops the worker after pending requests were sent.
func (a *AudioSource) Shutdown(ctx context.Context) error { return a.w.Shutdown(ctx) }

// VideoPlaneSource sends video frames that bypass the main surface.
type VideoPlaneSource struct {
	c *bridge.Client
	w *loop.Worker
}

// NewVideoPlaneSource creates a video plane source sending through c.
func NewVideoPlaneSource(c *bridge.Client) *VideoPlaneSource {
	return &VideoPlaneSource{c: c, w: loop.NewWorker("video-plane")}
}

// Update sends one frame. released runs once the embedder showed it.
func (v *VideoPlaneSource) Update(ctx context.Context, u bridge.VideoPlaneUpdate, released func()) error {
	return run(ctx, v.w, func() error { return v.c.SendVideoPlaneUpdate(u, released) })
}

// EndOfStream tells the embedder video ended.
func (v *VideoPlaneSource) EndOfStream(ctx context.Context, video uint32) error {
	return run(ctx, v.w, func() error { return v.c.EndVideoPlaneStream(video) })
}

// Shutdown stops the worker after pending requests were sent.
func (v *VideoPlaneSource) Shutdown(ctx context.Context) error { return v.w.Shutdown(ctx) }
