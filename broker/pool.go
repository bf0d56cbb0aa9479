package broker

import (
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/surface"
)

type poolManagerGlobal struct{ global }

func (poolManagerGlobal) dispatch(c *conn, d *wire.Decoder) error {
	if d.Opcode() != wire.PoolManagerCreatePool {
		return invalidMethod(d)
	}
	id := d.Uint32()
	sid := d.Uint32()
	if d.Err() != nil {
		return d.Err()
	}
	sr, err := lookup[*surfaceResource](c, sid)
	if err != nil {
		return err
	}
	return c.claim(id, &poolResource{id: id, s: sr.s})
}

// poolResource hands out embedder-allocated buffers for one surface.
type poolResource struct {
	id uint32
	s  *surface.Surface
}

func (r *poolResource) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.PoolCreateBuffer:
		id := d.Uint32()
		_ = d.Uint32() // width
		_ = d.Uint32() // height
		if d.Err() != nil {
			return d.Err()
		}
		if err := c.checkNewID(id); err != nil {
			return err
		}
		entry, err := c.b.createPoolEntry(r.s)
		if err != nil {
			return wire.Errorf(r.id, wire.ErrNoMemory, "%v", err)
		}
		c.objects[id] = newBufferResource(c, id, func(release func()) *surface.Buffer {
			return surface.NewPoolBuffer(id, entry, release)
		})
		return nil

	case wire.PoolGetDMABufData:
		id := d.Uint32()
		bid := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		br, err := lookup[*bufferResource](c, bid)
		if err != nil {
			return err
		}
		entry := br.buf.PoolEntry()
		if entry == nil {
			c.log.Debug("dmabuf data requested for a non-pool buffer", "object", bid)
			return nil
		}
		return c.claim(id, &dmabufDataResource{entry: entry})

	case wire.PoolDestroy:
		c.remove(r.id)
		return nil

	default:
		return invalidMethod(d)
	}
}

func (*poolResource) destroy(*conn) {}

// dmabufDataResource describes a pool entry's planes on request.
type dmabufDataResource struct {
	entry *dmabuf.PoolEntry
}

func (r *dmabufDataResource) dispatch(c *conn, d *wire.Decoder) error {
	if d.Opcode() != wire.DMABufDataRequest {
		return invalidMethod(d)
	}
	id := d.Object()
	e := r.entry
	c.send(wire.NewMessage(id, wire.DMABufDataEventAttributes).
		Uint32(e.Width()).Uint32(e.Height()).Uint32(e.Format()).Uint32(uint32(e.NumPlanes())))
	for i := 0; i < e.NumPlanes(); i++ {
		p := e.Plane(i)
		c.send(wire.NewMessage(id, wire.DMABufDataEventPlane).
			Uint32(uint32(i)).FD(p.FD).Uint32(p.Stride).Uint32(p.Offset).Uint64(p.Modifier))
	}
	c.send(wire.NewMessage(id, wire.DMABufDataEventComplete))
	// A data object answers once.
	c.remove(id)
	return nil
}

func (*dmabufDataResource) destroy(*conn) {}
