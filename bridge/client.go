// Package bridge is the renderer side of a view: a protocol client that
// talks to the broker, and the control-channel end that announces the
// renderer's surface to the embedder's view backend.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/ownedfd"
)

var (
	// ErrDisconnected is returned once the connection to the broker is
	// gone.
	ErrDisconnected = errors.New("bridge: disconnected")

	// ErrBufferFailed is returned when the broker could not import a
	// multi-plane buffer.
	ErrBufferFailed = errors.New("bridge: buffer creation failed")
)

// ProtocolError is the error the broker reports before dropping a
// connection.
type ProtocolError = wire.ProtocolError

// Option configures a Client.
type Option func(*Client)

// WithReleaseHandler installs fn for release events of every buffer that
// has no handler of its own.
func WithReleaseHandler(fn func(buffer uint32)) Option {
	return func(c *Client) { c.onRelease = fn }
}

// WithErrorHandler installs fn for the protocol error that ends the
// connection.
func WithErrorHandler(fn func(err *ProtocolError)) Option {
	return func(c *Client) { c.onError = fn }
}

// Client is a renderer connection to the broker. Its methods are safe for
// concurrent use. Event handlers run on the client's reader goroutine.
type Client struct {
	wc *wire.Conn

	onRelease func(uint32)
	onError   func(*ProtocolError)

	mu       sync.Mutex
	nextID   uint32
	handlers map[uint32]func(*wire.Decoder)
	releases map[uint32]func()
	impl     chan uint32
	bridge   chan uint32
	err      error

	done chan struct{}
}

// Dial starts a client on a descriptor obtained from the broker. The
// client owns fd from now on.
func Dial(fd *ownedfd.FD, opts ...Option) (*Client, error) {
	wc, err := wire.NewConn(fd)
	if err != nil {
		return nil, err
	}
	c := &Client{
		wc:       wc,
		nextID:   wire.FirstClientID,
		handlers: make(map[uint32]func(*wire.Decoder)),
		releases: make(map[uint32]func()),
		impl:     make(chan uint32, 4),
		bridge:   make(chan uint32, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		d, err := c.wc.ReadMessage()
		if err != nil {
			c.setErr(fmt.Errorf("%w: %w", ErrDisconnected, err))
			return
		}
		c.dispatch(d)
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Err returns why the connection ended, nil while it is up. A protocol
// error from the broker is returned as *ProtocolError.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) dispatch(d *wire.Decoder) {
	switch d.Object() {
	case wire.DisplayID:
		if d.Opcode() != wire.DisplayEventError {
			return
		}
		pe := &ProtocolError{Object: d.Uint32(), Code: d.Uint32(), Message: d.String()}
		viewbackend.Logger().Error("broker reported protocol error", "object", pe.Object, "code", pe.Code, "err", pe)
		c.setErr(pe)
		if c.onError != nil {
			c.onError(pe)
		}
		return
	case wire.BridgeID:
		v := d.Uint32()
		ch := c.bridge
		if d.Opcode() == wire.BridgeEventImplementationInfo {
			ch = c.impl
		}
		select {
		case ch <- v:
		default:
			viewbackend.Logger().Warn("bridge event dropped, nobody waiting", "opcode", d.Opcode(), "value", v)
		}
		return
	}

	c.mu.Lock()
	h := c.handlers[d.Object()]
	c.mu.Unlock()
	if h != nil {
		h(d)
		return
	}
	viewbackend.Logger().Debug("event for unknown object", "object", d.Object(), "opcode", d.Opcode())
}

func (c *Client) newID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

func (c *Client) handle(id uint32, h func(*wire.Decoder)) {
	c.mu.Lock()
	c.handlers[id] = h
	c.mu.Unlock()
}

func (c *Client) forget(id uint32) {
	c.mu.Lock()
	delete(c.handlers, id)
	delete(c.releases, id)
	c.mu.Unlock()
}

func (c *Client) send(m *wire.Message) error {
	if err := c.Err(); err != nil {
		return err
	}
	return c.wc.WriteMessage(m)
}

// wait blocks for a value from ch, the end of the connection or ctx.
func wait[T any](ctx context.Context, c *Client, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return zero, err
		}
		return zero, ErrDisconnected
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Roundtrip waits until the broker processed every earlier request.
func (c *Client) Roundtrip(ctx context.Context) error {
	id := c.newID()
	ch := make(chan struct{}, 1)
	c.handle(id, func(*wire.Decoder) {
		c.forget(id)
		ch <- struct{}{}
	})
	if err := c.send(wire.NewMessage(wire.DisplayID, wire.DisplaySync).Uint32(id)); err != nil {
		c.forget(id)
		return err
	}
	_, err := wait(ctx, c, ch)
	return err
}

// Initialize asks the broker which buffer implementation it runs.
func (c *Client) Initialize(ctx context.Context) (uint32, error) {
	if err := c.send(wire.NewMessage(wire.BridgeID, wire.BridgeInitialize)); err != nil {
		return 0, err
	}
	return wait(ctx, c, c.impl)
}

// Surface is a renderer surface.
type Surface struct {
	c  *Client
	id uint32
}

// ID returns the protocol object id.
func (s *Surface) ID() uint32 { return s.id }

// CreateSurface creates a surface.
func (c *Client) CreateSurface() (*Surface, error) {
	id := c.newID()
	if err := c.send(wire.NewMessage(wire.CompositorID, wire.CompositorCreateSurface).Uint32(id)); err != nil {
		return nil, err
	}
	return &Surface{c: c, id: id}, nil
}

// Connect binds s to a new bridge id. Calls must not overlap.
func (c *Client) Connect(ctx context.Context, s *Surface) (uint32, error) {
	if err := c.send(wire.NewMessage(wire.BridgeID, wire.BridgeConnect).Uint32(s.id)); err != nil {
		return 0, err
	}
	return wait(ctx, c, c.bridge)
}

// Attach attaches a buffer; zero detaches.
func (s *Surface) Attach(buffer uint32) error {
	return s.c.send(wire.NewMessage(s.id, wire.SurfaceAttach).Uint32(buffer))
}

// Frame asks to be told when the next committed frame was presented. fn
// receives true on presentation and false when the surface went away
// first.
func (s *Surface) Frame(fn func(presented bool)) error {
	id := s.c.newID()
	s.c.handle(id, func(d *wire.Decoder) {
		s.c.forget(id)
		if fn != nil {
			fn(d.Opcode() == wire.CallbackEventDone)
		}
	})
	if err := s.c.send(wire.NewMessage(s.id, wire.SurfaceFrame).Uint32(id)); err != nil {
		s.c.forget(id)
		return err
	}
	return nil
}

// Commit applies the attached buffer and the requested frame callbacks.
func (s *Surface) Commit() error {
	return s.c.send(wire.NewMessage(s.id, wire.SurfaceCommit))
}

// Destroy destroys the surface.
func (s *Surface) Destroy() error {
	return s.c.send(wire.NewMessage(s.id, wire.SurfaceDestroy))
}

// OnRelease installs fn for release events of buffer.
func (c *Client) OnRelease(buffer uint32, fn func()) {
	c.mu.Lock()
	c.releases[buffer] = fn
	c.mu.Unlock()
}

func (c *Client) bufferHandler(id uint32) func(*wire.Decoder) {
	return func(d *wire.Decoder) {
		if d.Opcode() != wire.BufferEventRelease {
			return
		}
		c.mu.Lock()
		fn := c.releases[id]
		c.mu.Unlock()
		switch {
		case fn != nil:
			fn()
		case c.onRelease != nil:
			c.onRelease(id)
		}
	}
}

// CreateSHMBuffer creates a shared-memory buffer of width×height pixels
// at offset in fd. fd stays owned by the caller.
func (c *Client) CreateSHMBuffer(fd *ownedfd.FD, size, offset, width, height, stride int32, format uint32) (uint32, error) {
	id := c.newID()
	c.handle(id, c.bufferHandler(id))
	m := wire.NewMessage(wire.SHMID, wire.SHMCreateBuffer).
		Uint32(id).FD(fd).Int32(size).Int32(offset).Int32(width).Int32(height).Int32(stride).Uint32(format)
	if err := c.send(m); err != nil {
		c.forget(id)
		return 0, err
	}
	return id, nil
}

// CreateGPUBuffer creates an opaque driver buffer. fd stays owned by the
// caller.
func (c *Client) CreateGPUBuffer(fd *ownedfd.FD, width, height int32, stride, format uint32) (uint32, error) {
	id := c.newID()
	c.handle(id, c.bufferHandler(id))
	m := wire.NewMessage(wire.GPUBufferID, wire.GPUBufferCreateBuffer).
		Uint32(id).FD(fd).Int32(width).Int32(height).Uint32(stride).Uint32(format)
	if err := c.send(m); err != nil {
		c.forget(id)
		return 0, err
	}
	return id, nil
}

// DestroyBuffer destroys a buffer.
func (c *Client) DestroyBuffer(buffer uint32) error {
	c.forget(buffer)
	return c.send(wire.NewMessage(buffer, wire.BufferDestroy))
}

// Close closes the connection.
func (c *Client) Close() error {
	err := c.wc.Close()
	<-c.done
	return err
}
