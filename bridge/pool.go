package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/internal/wire"
)

// Pool hands out buffers allocated by the embedder for one surface.
type Pool struct {
	c  *Client
	id uint32
}

// CreatePool creates a buffer pool for s.
func (c *Client) CreatePool(s *Surface) (*Pool, error) {
	id := c.newID()
	if err := c.send(wire.NewMessage(wire.PoolManagerID, wire.PoolManagerCreatePool).Uint32(id).Uint32(s.id)); err != nil {
		return nil, err
	}
	return &Pool{c: c, id: id}, nil
}

// CreateBuffer asks the embedder for a new pool buffer.
func (p *Pool) CreateBuffer(width, height uint32) (uint32, error) {
	id := p.c.newID()
	p.c.handle(id, p.c.bufferHandler(id))
	if err := p.c.send(wire.NewMessage(p.id, wire.PoolCreateBuffer).Uint32(id).Uint32(width).Uint32(height)); err != nil {
		p.c.forget(id)
		return 0, err
	}
	return id, nil
}

// DMABufData describes the planes behind a pool buffer. The caller owns
// the plane descriptors.
type DMABufData struct {
	Width  uint32
	Height uint32
	Format uint32
	Planes []dmabuf.Plane
}

// Close closes the plane descriptors.
func (d *DMABufData) Close() {
	for _, p := range d.Planes {
		_ = p.FD.Close()
	}
}

// DMABufData fetches the planes of a pool buffer.
func (p *Pool) DMABufData(ctx context.Context, buffer uint32) (*DMABufData, error) {
	id := p.c.newID()
	data := &DMABufData{}
	ch := make(chan struct{}, 1)
	p.c.handle(id, func(d *wire.Decoder) {
		switch d.Opcode() {
		case wire.DMABufDataEventAttributes:
			data.Width = d.Uint32()
			data.Height = d.Uint32()
			data.Format = d.Uint32()
			n := d.Uint32()
			if n <= dmabuf.MaxPlanes {
				data.Planes = make([]dmabuf.Plane, n)
			}
		case wire.DMABufDataEventPlane:
			i := d.Uint32()
			fd := d.FD()
			stride := d.Uint32()
			offset := d.Uint32()
			mod := d.Uint64()
			if d.Err() != nil || int(i) >= len(data.Planes) {
				_ = fd.Close()
				return
			}
			data.Planes[i] = dmabuf.Plane{FD: fd, Offset: offset, Stride: stride, Modifier: mod}
		case wire.DMABufDataEventComplete:
			p.c.forget(id)
			ch <- struct{}{}
		}
	})
	if err := p.c.send(wire.NewMessage(p.id, wire.PoolGetDMABufData).Uint32(id).Uint32(buffer)); err != nil {
		p.c.forget(id)
		return nil, err
	}
	if err := p.c.send(wire.NewMessage(id, wire.DMABufDataRequest)); err != nil {
		p.c.forget(id)
		return nil, err
	}
	if _, err := wait(ctx, p.c, ch); err != nil {
		return nil, err
	}
	return data, nil
}

// Destroy destroys the pool. Its buffers stay valid.
func (p *Pool) Destroy() error {
	return p.c.send(wire.NewMessage(p.id, wire.PoolDestroy))
}

// ErrPoolExhausted is returned by PoolTarget.Acquire when every buffer is
// locked and the target may not grow.
var ErrPoolExhausted = errors.New("bridge: all pool buffers in use")

// PoolTarget renders into pool buffers. A buffer is locked from commit
// until the broker releases it; Acquire picks the first unlocked one and
// grows the pool up to its limit.
type PoolTarget struct {
	s      *Surface
	pool   *Pool
	width  uint32
	height uint32
	limit  int

	mu      sync.Mutex
	buffers []*poolBuffer
}

type poolBuffer struct {
	id     uint32
	locked bool
}

// NewPoolTarget creates a target on s holding at most limit buffers.
func NewPoolTarget(s *Surface, width, height uint32, limit int) (*PoolTarget, error) {
	pool, err := s.c.CreatePool(s)
	if err != nil {
		return nil, err
	}
	return &PoolTarget{s: s, pool: pool, width: width, height: height, limit: limit}, nil
}

// Pool returns the underlying pool.
func (t *PoolTarget) Pool() *Pool { return t.pool }

// Acquire returns an unlocked buffer id.
func (t *PoolTarget) Acquire() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.buffers {
		if !b.locked {
			return b.id, nil
		}
	}
	if len(t.buffers) >= t.limit {
		return 0, ErrPoolExhausted
	}
	id, err := t.pool.CreateBuffer(t.width, t.height)
	if err != nil {
		return 0, err
	}
	b := &poolBuffer{id: id}
	t.buffers = append(t.buffers, b)
	t.s.c.OnRelease(id, func() {
		t.mu.Lock()
		b.locked = false
		t.mu.Unlock()
	})
	return id, nil
}

// Commit attaches buffer, commits the surface and locks the buffer.
func (t *PoolTarget) Commit(buffer uint32) error {
	t.mu.Lock()
	for _, b := range t.buffers {
		if b.id == buffer {
			b.locked = true
		}
	}
	t.mu.Unlock()
	if err := t.s.Attach(buffer); err != nil {
		return err
	}
	return t.s.Commit()
}

// Locked reports how many buffers wait for release.
func (t *PoolTarget) Locked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buffers {
		if b.locked {
			n++
		}
	}
	return n
}
