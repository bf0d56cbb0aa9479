// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package importer

import (
	"fmt"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/surface"
)

// Stream forwards GPU stream commits in two phases: a commit with a buffer
// announces the producer, a commit without one signals a new frame.
type Stream struct{}

func NewStream() *Stream { return &Stream{} }

func (*Stream) Kind() Kind        { return KindGPUStream }
func (*Stream) Initialized() bool { return true }

func (*Stream) Attach(s *surface.Surface, b *surface.Buffer) { attach(s, b) }

func (*Stream) Commit(s *surface.Surface) Imported {
	b, ok := take(s)
	if !ok {
		return None
	}
	if b == nil {
		return Imported{Kind: ImportedStreamFrame}
	}
	return Imported{Kind: ImportedStreamProducer, Buffer: b}
}

// SharedMemory forwards mapped pixel buffers.
type SharedMemory struct{}

func NewSharedMemory() *SharedMemory { return &SharedMemory{} }

func (*SharedMemory) Kind() Kind        { return KindSharedMemory }
func (*SharedMemory) Initialized() bool { return true }

func (*SharedMemory) Attach(s *surface.Surface, b *surface.Buffer) { attach(s, b) }

func (*SharedMemory) Commit(s *surface.Surface) Imported {
	b, ok := take(s)
	if !ok || b == nil {
		return None
	}
	if b.Kind() != surface.KindSharedMemory {
		viewbackend.Logger().Warn("shm importer dropped non-shm buffer",
			"object", b.ID(), "kind", b.Kind().String())
		b.Release()
		return None
	}
	return Imported{Kind: ImportedSharedMemory, Buffer: b, View: b.SharedMemory()}
}

// Pool forwards buffers allocated by the embedder.
type Pool struct{}

func NewPool() *Pool { return &Pool{} }

func (*Pool) Kind() Kind        { return KindPool }
func (*Pool) Initialized() bool { return true }

func (*Pool) Attach(s *surface.Surface, b *surface.Buffer) { attach(s, b) }

// CreateEntry asks the surface's export client for a new entry.
func (*Pool) CreateEntry(s *surface.Surface) (*dmabuf.PoolEntry, error) {
	pe, ok := s.Client().(surface.PoolExporter)
	if !ok {
		return nil, ErrNoPoolExporter
	}
	e := pe.CreatePoolEntry()
	if e == nil {
		return nil, fmt.Errorf("importer: client returned no pool entry")
	}
	return e, nil
}

func (*Pool) Commit(s *surface.Surface) Imported {
	b, ok := take(s)
	if !ok || b == nil {
		return None
	}
	e := b.PoolEntry()
	if e == nil {
		viewbackend.Logger().Warn("pool importer dropped non-pool buffer",
			"object", b.ID(), "kind", b.Kind().String())
		b.Release()
		return None
	}
	return Imported{Kind: ImportedPoolEntry, Buffer: b, Entry: e}
}
