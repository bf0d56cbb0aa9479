package broker

import (
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/surface"
)

// global is embedded by the fixed objects every connection starts with.
type global struct{}

func (global) destroy(*conn) {}

func invalidMethod(d *wire.Decoder) error {
	return wire.Errorf(d.Object(), wire.ErrInvalidMethod, "invalid opcode %d", d.Opcode())
}

type displayGlobal struct{ global }

func (displayGlobal) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.DisplaySync:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		if err := c.checkNewID(id); err != nil {
			return err
		}
		c.send(wire.NewMessage(id, wire.CallbackEventDone).Uint32(0))
		return nil
	default:
		return invalidMethod(d)
	}
}

type compositorGlobal struct{ global }

func (compositorGlobal) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.CompositorCreateSurface:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		return c.claim(id, &surfaceResource{id: id, s: surface.New(id)})
	default:
		return invalidMethod(d)
	}
}

type bridgeGlobal struct{ global }

func (bridgeGlobal) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.BridgeInitialize:
		kind := wire.ImplementationWayland
		if c.b.imp.Kind() == importer.KindPool {
			kind = wire.ImplementationDMABufPool
		}
		c.send(wire.NewMessage(wire.BridgeID, wire.BridgeEventImplementationInfo).Uint32(kind))
		return nil
	case wire.BridgeConnect:
		sid := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		sr, err := lookup[*surfaceResource](c, sid)
		if err != nil {
			return err
		}
		id := c.b.registerSurface(sr.s)
		c.log.Debug("surface connected", "object", sid, "bridge_id", id)
		c.send(wire.NewMessage(wire.BridgeID, wire.BridgeEventConnected).Uint32(id))
		return nil
	default:
		return invalidMethod(d)
	}
}

// surfaceResource is a renderer surface.
type surfaceResource struct {
	id uint32
	s  *surface.Surface
}

func (r *surfaceResource) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.SurfaceDestroy:
		r.destroy(c)
		c.remove(r.id)
		return nil

	case wire.SurfaceAttach:
		bid := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		var buf *surface.Buffer
		if bid != 0 {
			br, err := lookup[*bufferResource](c, bid)
			if err != nil {
				return err
			}
			buf = br.buf
		}
		c.b.imp.Attach(r.s, buf)
		return nil

	case wire.SurfaceFrame:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		if r.s.Client() == nil {
			c.log.Debug("frame callback ignored, surface has no export client", "object", r.id)
			return nil
		}
		if err := c.claim(id, callbackResource{}); err != nil {
			return err
		}
		r.s.AddFrameCallback(surface.NewFrameCallback(id,
			func() {
				c.send(wire.NewMessage(id, wire.CallbackEventDone).Uint32(0))
				c.remove(id)
			},
			func() {
				c.send(wire.NewMessage(id, wire.CallbackEventFailed))
				c.remove(id)
			}))
		return nil

	case wire.SurfaceCommit:
		r.s.Commit()
		c.b.surfaceCommit(r.s)
		return nil

	default:
		return invalidMethod(d)
	}
}

func (r *surfaceResource) destroy(c *conn) {
	c.b.unregisterSurface(r.s)
	r.s.Destroy()
}

// callbackResource holds a pending frame callback id until it fires.
type callbackResource struct{}

func (callbackResource) dispatch(_ *conn, d *wire.Decoder) error { return invalidMethod(d) }
func (callbackResource) destroy(*conn)                           {}

// bufferResource is any renderer buffer.
type bufferResource struct {
	id  uint32
	buf *surface.Buffer
}

func newBufferResource(c *conn, id uint32, create func(release func()) *surface.Buffer) *bufferResource {
	release := func() { c.send(wire.NewMessage(id, wire.BufferEventRelease)) }
	return &bufferResource{id: id, buf: create(release)}
}

func (r *bufferResource) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.BufferDestroy:
		r.buf.Destroy()
		c.remove(r.id)
		return nil
	default:
		return invalidMethod(d)
	}
}

func (r *bufferResource) destroy(*conn) {
	r.buf.Destroy()
}
