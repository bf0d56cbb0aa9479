package broker

import (
	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/ownedfd"
)

// AudioHandler receives audio streams from renderers. Nil fields are not
// called. Handlers run on the broker loop.
type AudioHandler struct {
	Started func(streamID uint32, channels int32, layout string, sampleRate int32)
	// Packet owns fd and must release p once the data was consumed.
	Packet  func(p *PacketExport, streamID uint32, fd *ownedfd.FD, frames uint32)
	Stopped func(streamID uint32)
	Paused  func(streamID uint32)
	Resumed func(streamID uint32)
}

// VideoPlaneHandler receives video frames rendered outside the main
// surface. Nil fields are not called. Handlers run on the broker loop.
type VideoPlaneHandler struct {
	// Update owns fd and must release u once the frame was shown.
	Update      func(u *VideoPlaneUpdate, videoID uint32, fd *ownedfd.FD, x, y, width, height int32, stride uint32)
	EndOfStream func(videoID uint32)
}

// InitializeAudio installs h. Only the first call has an effect. Safe for
// concurrent use.
func (b *Broker) InitializeAudio(h AudioHandler) {
	b.extMu.Lock()
	defer b.extMu.Unlock()
	if b.audio != nil {
		return
	}
	b.audio = &h
}

// InitializeVideoPlane installs h. Only the first call has an effect. Safe
// for concurrent use.
func (b *Broker) InitializeVideoPlane(h VideoPlaneHandler) {
	b.extMu.Lock()
	defer b.extMu.Unlock()
	if b.video != nil {
		return
	}
	b.video = &h
}

func (b *Broker) audioHandler() *AudioHandler {
	b.extMu.Lock()
	defer b.extMu.Unlock()
	return b.audio
}

func (b *Broker) videoHandler() *VideoPlaneHandler {
	b.extMu.Lock()
	defer b.extMu.Unlock()
	return b.video
}

// export is the release handle shared by audio packets and video updates.
type export struct {
	c        *conn
	id       uint32
	opcode   uint16
	released bool
	gone     bool
}

// release posts the release event to the renderer once.
func (e *export) release() {
	e.c.b.Post(func() {
		if e.released || e.gone {
			return
		}
		e.released = true
		e.c.send(wire.NewMessage(e.id, e.opcode))
	})
}

func (e *export) dispatch(c *conn, d *wire.Decoder) error {
	// Both export objects only have a destroy request, opcode 0.
	if d.Opcode() != 0 {
		return invalidMethod(d)
	}
	e.gone = true
	c.remove(e.id)
	return nil
}

func (e *export) destroy(*conn) { e.gone = true }

// PacketExport is an audio packet held by the embedder.
type PacketExport struct{ e *export }

// Release tells the renderer the packet may be reused. Safe to call from
// any goroutine; later calls are no-ops.
func (p *PacketExport) Release() { p.e.release() }

// VideoPlaneUpdate is a video frame held by the embedder.
type VideoPlaneUpdate struct{ e *export }

// Release tells the renderer the frame may be reused. Safe to call from
// any goroutine; later calls are no-ops.
func (u *VideoPlaneUpdate) Release() { u.e.release() }

type audioGlobal struct{ global }

func (audioGlobal) dispatch(c *conn, d *wire.Decoder) error {
	h := c.b.audioHandler()
	if h == nil {
		h = &AudioHandler{}
	}
	switch d.Opcode() {
	case wire.AudioStreamStarted:
		id := d.Uint32()
		channels := d.Int32()
		layout := d.String()
		rate := d.Int32()
		if d.Err() != nil {
			return d.Err()
		}
		if h.Started != nil {
			h.Started(id, channels, layout, rate)
		}

	case wire.AudioStreamPacket:
		id := d.Uint32()
		stream := d.Uint32()
		fd := d.FD()
		frames := d.Uint32()
		if err := d.Err(); err != nil {
			_ = fd.Close()
			return err
		}
		e := &export{c: c, id: id, opcode: wire.PacketExportEventRelease}
		if err := c.claim(id, e); err != nil {
			_ = fd.Close()
			return err
		}
		if h.Packet == nil {
			viewbackend.Logger().Debug("audio packet dropped, no handler", "stream", stream)
			_ = fd.Close()
			return nil
		}
		h.Packet(&PacketExport{e: e}, stream, fd, frames)

	case wire.AudioStreamStopped, wire.AudioStreamPaused, wire.AudioStreamResumed:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		var fn func(uint32)
		switch d.Opcode() {
		case wire.AudioStreamStopped:
			fn = h.Stopped
		case wire.AudioStreamPaused:
			fn = h.Paused
		default:
			fn = h.Resumed
		}
		if fn != nil {
			fn(id)
		}

	default:
		return invalidMethod(d)
	}
	return nil
}

type videoPlaneGlobal struct{ global }

func (videoPlaneGlobal) dispatch(c *conn, d *wire.Decoder) error {
	h := c.b.videoHandler()
	if h == nil {
		h = &VideoPlaneHandler{}
	}
	switch d.Opcode() {
	case wire.VideoPlaneCreateUpdate:
		id := d.Uint32()
		video := d.Uint32()
		fd := d.FD()
		x := d.Int32()
		y := d.Int32()
		width := d.Int32()
		height := d.Int32()
		stride := d.Uint32()
		if err := d.Err(); err != nil {
			_ = fd.Close()
			return err
		}
		e := &export{c: c, id: id, opcode: wire.VideoUpdateEventRelease}
		if err := c.claim(id, e); err != nil {
			_ = fd.Close()
			return err
		}
		if h.Update == nil {
			_ = fd.Close()
			return nil
		}
		h.Update(&VideoPlaneUpdate{e: e}, video, fd, x, y, width, height, stride)

	case wire.VideoPlaneEndOfStream:
		video := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		if h.EndOfStream != nil {
			h.EndOfStream(video)
		}

	default:
		return invalidMethod(d)
	}
	return nil
}
