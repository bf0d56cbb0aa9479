// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/surface"
)

// SharedMemoryClient receives shared-memory frames.
type SharedMemoryClient struct {
	ExportBuffer func(e *ExportedSHM)
}

// SharedMemory hands out {buffer, mapping} pairs without caching. It is
// the adapter to use with the shared-memory importer.
type SharedMemory struct {
	base
	client SharedMemoryClient

	// Loop-owned.
	leases *leases[*ExportedSHM]
}

// NewSharedMemory creates a shared-memory adapter on b.
func NewSharedMemory(b *broker.Broker, client SharedMemoryClient, width, height uint32) (*SharedMemory, error) {
	s := &SharedMemory{client: client}
	if err := s.init(b, s, width, height); err != nil {
		return nil, err
	}
	s.leases = newLeases(b, "shm", s.release)
	return s, nil
}

func (s *SharedMemory) ExportSharedMemory(b *surface.Buffer, view *surface.SHMView) {
	if s.client.ExportBuffer == nil {
		b.Release()
		return
	}
	e := &ExportedSHM{buf: b, view: view}
	s.leases.acquire(e)
	s.client.ExportBuffer(e)
}

// DispatchReleaseBuffer returns the pair's buffer to the renderer and frees
// the pair.
func (s *SharedMemory) DispatchReleaseBuffer(e *ExportedSHM) {
	s.b.Post(func() { s.release(e) })
}

func (s *SharedMemory) release(e *ExportedSHM) {
	if e.released {
		return
	}
	e.released = true
	s.leases.release(e)
	e.buf.Release()
	e.buf, e.view = nil, nil
}

// Close destroys the view.
func (s *SharedMemory) Close() {
	s.close(func() { s.leases.stop() })
}
