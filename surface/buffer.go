// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"fmt"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/ownedfd"
)

// BufferKind identifies the payload of a Buffer.
type BufferKind uint8

const (
	// KindOpaque is a driver buffer referenced by a single descriptor.
	KindOpaque BufferKind = iota

	// KindSharedMemory is a CPU-mapped pixel buffer.
	KindSharedMemory

	// KindDMABuf is a multi-plane dmabuf descriptor.
	KindDMABuf

	// KindPoolEntry is a buffer allocated by the embedder.
	KindPoolEntry
)

// String returns the kind name.
func (k BufferKind) String() string {
	switch k {
	case KindOpaque:
		return "opaque"
	case KindSharedMemory:
		return "shm"
	case KindDMABuf:
		return "dmabuf"
	case KindPoolEntry:
		return "pool-entry"
	default:
		return fmt.Sprintf("BufferKind(%d)", k)
	}
}

// Opaque describes a driver buffer.
type Opaque struct {
	FD     *ownedfd.FD
	Width  int32
	Height int32
	Stride uint32
	Format uint32
}

type destroyListener struct {
	fn func(*Buffer)
}

// Buffer is a renderer buffer resource.
type Buffer struct {
	id        uint32
	kind      BufferKind
	opaque    Opaque
	shm       *SHMView
	attrs     *dmabuf.Attributes
	entry     *dmabuf.PoolEntry
	release   func()
	destroyed bool
	listeners []*destroyListener
}

// NewOpaqueBuffer wraps a driver buffer. release is invoked by Release and
// may be nil.
func NewOpaqueBuffer(id uint32, o Opaque, release func()) *Buffer {
	return &Buffer{id: id, kind: KindOpaque, opaque: o, release: release}
}

// NewSharedMemoryBuffer wraps a mapped shared-memory view.
func NewSharedMemoryBuffer(id uint32, view *SHMView, release func()) *Buffer {
	return &Buffer{id: id, kind: KindSharedMemory, shm: view, release: release}
}

// NewDMABufBuffer wraps a validated dmabuf descriptor.
func NewDMABufBuffer(id uint32, attrs *dmabuf.Attributes, release func()) *Buffer {
	return &Buffer{id: id, kind: KindDMABuf, attrs: attrs, release: release}
}

// NewPoolBuffer wraps a pool entry and binds the entry to the buffer.
func NewPoolBuffer(id uint32, e *dmabuf.PoolEntry, release func()) *Buffer {
	b := &Buffer{id: id, kind: KindPoolEntry, entry: e, release: release}
	e.Bind(b)
	return b
}

func (b *Buffer) ID() uint32       { return b.id }
func (b *Buffer) Kind() BufferKind { return b.kind }

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int32 {
	switch b.kind {
	case KindSharedMemory:
		return b.shm.Width()
	case KindDMABuf:
		return b.attrs.Width
	case KindPoolEntry:
		return int32(b.entry.Width())
	default:
		return b.opaque.Width
	}
}

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int32 {
	switch b.kind {
	case KindSharedMemory:
		return b.shm.Height()
	case KindDMABuf:
		return b.attrs.Height
	case KindPoolEntry:
		return int32(b.entry.Height())
	default:
		return b.opaque.Height
	}
}

// Format returns the DRM fourcc of the buffer.
func (b *Buffer) Format() uint32 {
	switch b.kind {
	case KindSharedMemory:
		return b.shm.Format()
	case KindDMABuf:
		return b.attrs.Format
	case KindPoolEntry:
		return b.entry.Format()
	default:
		return b.opaque.Format
	}
}

// Opaque returns the driver buffer description of a KindOpaque buffer.
func (b *Buffer) Opaque() (Opaque, bool) {
	return b.opaque, b.kind == KindOpaque
}

// SharedMemory returns the view of a KindSharedMemory buffer, or nil.
func (b *Buffer) SharedMemory() *SHMView { return b.shm }

// DMABuf returns the descriptor of a KindDMABuf buffer, or nil.
func (b *Buffer) DMABuf() *dmabuf.Attributes { return b.attrs }

// PoolEntry returns the entry of a KindPoolEntry buffer, or nil.
func (b *Buffer) PoolEntry() *dmabuf.PoolEntry { return b.entry }

// Destroyed reports whether the renderer destroyed the buffer.
func (b *Buffer) Destroyed() bool { return b.destroyed }

// Release tells the renderer the buffer may be reused. It is a no-op after
// Destroy.
func (b *Buffer) Release() {
	if b.destroyed || b.release == nil {
		return
	}
	b.release()
}

// AddDestroyListener registers fn to run when the buffer is destroyed. The
// returned function unregisters it.
func (b *Buffer) AddDestroyListener(fn func(*Buffer)) (remove func()) {
	l := &destroyListener{fn: fn}
	b.listeners = append(b.listeners, l)
	return func() {
		for i, x := range b.listeners {
			if x == l {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Destroy notifies listeners and frees the payload. Only the first call has
// an effect.
func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true

	listeners := b.listeners
	b.listeners = nil
	for _, l := range listeners {
		l.fn(b)
	}

	switch b.kind {
	case KindOpaque:
		_ = b.opaque.FD.Close()
	case KindSharedMemory:
		_ = b.shm.Close()
	case KindDMABuf:
		b.attrs.Close()
	case KindPoolEntry:
		// The embedder allocated the entry and still owns its planes.
		b.entry.Bind(nil)
	}
}
