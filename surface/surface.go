// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import "github.com/gogpu/viewbackend/dmabuf"

// Client receives buffers exported from a surface.
type Client interface {
	// BridgeConnectionLost is called when the surface behind id goes away.
	BridgeConnectionLost(id uint32)
}

// BufferExporter receives opaque driver buffers.
type BufferExporter interface {
	ExportBuffer(b *Buffer)
}

// DMABufExporter receives multi-plane dmabuf buffers.
type DMABufExporter interface {
	ExportDMABuf(b *Buffer)
}

// SharedMemoryExporter receives shared-memory buffers.
type SharedMemoryExporter interface {
	ExportSharedMemory(b *Buffer, view *SHMView)
}

// StreamExporter receives the two phases of a GPU stream commit.
type StreamExporter interface {
	ExportStreamProducer(b *Buffer)
	StreamFrameReady()
}

// PoolExporter allocates and receives pool entries.
type PoolExporter interface {
	CreatePoolEntry() *dmabuf.PoolEntry
	CommitPoolEntry(e *dmabuf.PoolEntry)
}

// State is the attachment state of a surface.
type State uint8

const (
	StateIdle State = iota
	StateAttached
)

func (s State) String() string {
	if s == StateAttached {
		return "attached"
	}
	return "idle"
}

// Surface is a renderer surface.
type Surface struct {
	id        uint32
	attached  *Buffer
	pending   []*FrameCallback
	current   []*FrameCallback
	client    Client
	destroyed bool
}

// New returns an idle surface with the renderer's object id.
func New(id uint32) *Surface {
	return &Surface{id: id}
}

func (s *Surface) ID() uint32 { return s.id }

// State reports whether a buffer is attached.
func (s *Surface) State() State {
	if s.attached != nil {
		return StateAttached
	}
	return StateIdle
}

// Client returns the registered export client, or nil.
func (s *Surface) Client() Client { return s.client }

// SetClient registers or, with nil, clears the export client.
func (s *Surface) SetClient(c Client) { s.client = c }

// Attached returns the attached buffer without detaching it.
func (s *Surface) Attached() *Buffer { return s.attached }

// Attach sets b as the attached buffer and returns the buffer it replaced.
// A nil b detaches.
func (s *Surface) Attach(b *Buffer) (previous *Buffer) {
	previous = s.attached
	if previous == b {
		return nil
	}
	s.attached = b
	return previous
}

// TakeAttached detaches and returns the attached buffer.
func (s *Surface) TakeAttached() *Buffer {
	b := s.attached
	s.attached = nil
	return b
}

// AddFrameCallback queues cb until the next commit.
func (s *Surface) AddFrameCallback(cb *FrameCallback) {
	if s.destroyed {
		cb.Fail()
		return
	}
	s.pending = append(s.pending, cb)
}

// Commit moves pending callbacks to the current list.
func (s *Surface) Commit() {
	s.current = append(s.current, s.pending...)
	s.pending = nil
}

// Pending returns the number of callbacks waiting for a commit.
func (s *Surface) Pending() int { return len(s.pending) }

// Current returns the number of committed callbacks.
func (s *Surface) Current() int { return len(s.current) }

// DispatchFrameCallbacks resolves committed callbacks in order and reports
// whether there were any.
func (s *Surface) DispatchFrameCallbacks() bool {
	current := s.current
	s.current = nil
	for _, cb := range current {
		cb.Resolve()
	}
	return len(current) > 0
}

// Destroy fails every outstanding callback, committed ones first, and drops
// the attached buffer.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.attached = nil
	s.client = nil

	current, pending := s.current, s.pending
	s.current, s.pending = nil, nil
	for _, cb := range current {
		cb.Fail()
	}
	for _, cb := range pending {
		cb.Fail()
	}
}

// Destroyed reports whether Destroy was called.
func (s *Surface) Destroyed() bool { return s.destroyed }
