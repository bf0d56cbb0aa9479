package bridge

import (
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/ownedfd"
)

// exportHandler runs fn once when the broker releases object id, then
// destroys the object.
func (c *Client) exportHandler(id uint32, opcode, destroy uint16, fn func()) func(*wire.Decoder) {
	return func(d *wire.Decoder) {
		if d.Opcode() != opcode {
			return
		}
		c.forget(id)
		_ = c.send(wire.NewMessage(id, destroy))
		if fn != nil {
			fn()
		}
	}
}

// StartAudioStream announces an audio stream.
func (c *Client) StartAudioStream(stream uint32, channels int32, layout string, sampleRate int32) error {
	return c.send(wire.NewMessage(wire.AudioID, wire.AudioStreamStarted).
		Uint32(stream).Int32(channels).String(layout).Int32(sampleRate))
}

// SendAudioPacket passes frames of audio in fd. released runs once the
// embedder is done with the packet. fd stays owned by the caller.
func (c *Client) SendAudioPacket(stream uint32, fd *ownedfd.FD, frames uint32, released func()) error {
	id := c.newID()
	c.handle(id, c.exportHandler(id, wire.PacketExportEventRelease, wire.PacketExportDestroy, released))
	err := c.send(wire.NewMessage(wire.AudioID, wire.AudioStreamPacket).
		Uint32(id).Uint32(stream).FD(fd).Uint32(frames))
	if err != nil {
		c.forget(id)
	}
	return err
}

// StopAudioStream ends an audio stream.
func (c *Client) StopAudioStream(stream uint32) error {
	return c.send(wire.NewMessage(wire.AudioID, wire.AudioStreamStopped).Uint32(stream))
}

// PauseAudioStream pauses an audio stream.
func (c *Client) PauseAudioStream(stream uint32) error {
	return c.send(wire.NewMessage(wire.AudioID, wire.AudioStreamPaused).Uint32(stream))
}

// ResumeAudioStream resumes a paused audio stream.
func (c *Client) ResumeAudioStream(stream uint32) error {
	return c.send(wire.NewMessage(wire.AudioID, wire.AudioStreamResumed).Uint32(stream))
}

// VideoPlaneUpdate is one frame of a video rendered outside the main
// surface.
type VideoPlaneUpdate struct {
	VideoID uint32
	FD      *ownedfd.FD
	X, Y    int32
	Width   int32
	Height  int32
	Stride  uint32
}

// SendVideoPlaneUpdate passes a video frame. released runs once the
// embedder is done with it. The frame descriptor stays owned by the
// caller.
func (c *Client) SendVideoPlaneUpdate(u VideoPlaneUpdate, released func()) error {
	id := c.newID()
	c.handle(id, c.exportHandler(id, wire.VideoUpdateEventRelease, wire.VideoUpdateDestroy, released))
	err := c.send(wire.NewMessage(wire.VideoPlaneID, wire.VideoPlaneCreateUpdate).
		Uint32(id).Uint32(u.VideoID).FD(u.FD).Int32(u.X).Int32(u.Y).Int32(u.Width).Int32(u.Height).Uint32(u.Stride))
	if err != nil {
		c.forget(id)
	}
	return err
}

// EndVideoPlaneStream tells the embedder a video ended.
func (c *Client) EndVideoPlaneStream(video uint32) error {
	return c.send(wire.NewMessage(wire.VideoPlaneID, wire.VideoPlaneEndOfStream).Uint32(video))
}
