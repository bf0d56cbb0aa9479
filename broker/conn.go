package broker

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/internal/wire"
)

// resource is a protocol object living on a connection.
type resource interface {
	dispatch(c *conn, d *wire.Decoder) error
	// destroy frees the object when the connection goes away.
	destroy(c *conn)
}

// conn is one renderer connection. Apart from readLoop, every method runs
// on the broker loop.
type conn struct {
	b   *Broker
	wc  *wire.Conn
	log *slog.Logger

	objects      map[uint32]resource
	nextServerID uint32
	closed       bool
}

func newConn(b *Broker, wc *wire.Conn) *conn {
	c := &conn{
		b:            b,
		wc:           wc,
		log:          viewbackend.Logger().With("conn", uuid.NewString()),
		objects:      make(map[uint32]resource),
		nextServerID: wire.FirstServerID,
	}
	c.objects[wire.DisplayID] = displayGlobal{}
	c.objects[wire.CompositorID] = compositorGlobal{}
	c.objects[wire.BridgeID] = bridgeGlobal{}
	c.objects[wire.SHMID] = shmGlobal{}
	c.objects[wire.GPUBufferID] = gpuBufferGlobal{}
	c.objects[wire.DMABufID] = dmabufGlobal{}
	c.objects[wire.PoolManagerID] = poolManagerGlobal{}
	c.objects[wire.AudioID] = audioGlobal{}
	c.objects[wire.VideoPlaneID] = videoPlaneGlobal{}
	return c
}

// readLoop decodes messages and posts them to the broker loop. It runs on
// its own goroutine.
func (c *conn) readLoop() {
	for {
		d, err := c.wc.ReadMessage()
		if err != nil {
			if !c.b.loop.Post(func() { c.close(err) }) {
				_ = c.wc.Close()
			}
			return
		}
		if !c.b.loop.Post(func() { c.dispatch(d) }) {
			_ = c.wc.Close()
			return
		}
	}
}

func (c *conn) dispatch(d *wire.Decoder) {
	if c.closed {
		return
	}
	r, ok := c.objects[d.Object()]
	if !ok {
		c.fail(wire.Errorf(wire.DisplayID, wire.ErrInvalidObject, "invalid object %d", d.Object()))
		return
	}
	err := r.dispatch(c, d)
	if err == nil {
		err = d.Err()
	}
	if err == nil {
		return
	}
	var pe *wire.ProtocolError
	if !errors.As(err, &pe) {
		pe = wire.Errorf(d.Object(), wire.ErrInvalidMethod, "%v", err)
	}
	c.fail(pe)
}

// send writes an event. Failures are logged; a broken connection is
// noticed by the reader.
func (c *conn) send(m *wire.Message) {
	if c.closed {
		return
	}
	if err := c.wc.WriteMessage(m); err != nil {
		c.log.Debug("send failed", "object", m.Object(), "opcode", m.Opcode(), "err", err)
	}
}

// fail reports a protocol violation to the renderer and drops it.
func (c *conn) fail(pe *wire.ProtocolError) {
	if c.closed {
		return
	}
	c.log.Error("protocol error", "object", pe.Object, "code", pe.Code, "err", pe)
	c.send(wire.NewMessage(wire.DisplayID, wire.DisplayEventError).
		Uint32(pe.Object).Uint32(pe.Code).String(pe.Message))
	c.close(pe)
}

// close tears down every object of the connection. err is the reason, nil
// for a broker shutdown.
func (c *conn) close(err error) {
	if c.closed {
		return
	}
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Info("renderer connection closed")
	default:
		var pe *wire.ProtocolError
		if !errors.As(err, &pe) {
			c.log.Warn("renderer connection failed", "err", err)
		}
	}

	// Surfaces first so that outstanding frame callbacks fail and export
	// clients learn about the lost bridge before buffers disappear.
	var rest []resource
	for id, r := range c.objects {
		if s, ok := r.(*surfaceResource); ok {
			s.destroy(c)
			delete(c.objects, id)
			continue
		}
		rest = append(rest, r)
	}
	c.closed = true
	for _, r := range rest {
		r.destroy(c)
	}
	c.objects = nil
	_ = c.wc.Close()
	delete(c.b.conns, c)
}

// claim registers r under a client-allocated id.
func (c *conn) claim(id uint32, r resource) error {
	if err := c.checkNewID(id); err != nil {
		return err
	}
	c.objects[id] = r
	return nil
}

func (c *conn) checkNewID(id uint32) error {
	if id < wire.FirstClientID || id >= wire.FirstServerID {
		return wire.Errorf(wire.DisplayID, wire.ErrInvalidObject, "invalid new id %d", id)
	}
	if _, ok := c.objects[id]; ok {
		return wire.Errorf(wire.DisplayID, wire.ErrInvalidObject, "id %d already in use", id)
	}
	return nil
}

// allocServerID returns a fresh broker-allocated id.
func (c *conn) allocServerID() uint32 {
	for {
		id := c.nextServerID
		c.nextServerID++
		if c.nextServerID == 0 {
			c.nextServerID = wire.FirstServerID
		}
		if _, ok := c.objects[id]; !ok {
			return id
		}
	}
}

// remove forgets id without destroying it.
func (c *conn) remove(id uint32) {
	delete(c.objects, id)
}

func lookup[T resource](c *conn, id uint32) (T, error) {
	var zero T
	r, ok := c.objects[id]
	if !ok {
		return zero, wire.Errorf(wire.DisplayID, wire.ErrInvalidObject, "invalid object %d", id)
	}
	t, ok := r.(T)
	if !ok {
		return zero, wire.Errorf(wire.DisplayID, wire.ErrInvalidObject, "object %d has the wrong type", id)
	}
	return t, nil
}
