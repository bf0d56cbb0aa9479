// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import (
	"errors"
	"fmt"
)

// BufferRef is the renderer-side buffer resource currently bound to a pool
// entry.
type BufferRef interface {
	Release()
	Destroyed() bool
}

// PoolEntryInit describes an embedder-allocated buffer. NumPlanes is
// explicit; planes past it are ignored.
type PoolEntryInit struct {
	Width     uint32
	Height    uint32
	Format    uint32
	NumPlanes int
	Planes    [MaxPlanes]Plane
}

// PoolEntry is a buffer lent to the renderer through a pool.
type PoolEntry struct {
	width     uint32
	height    uint32
	format    uint32
	numPlanes int
	planes    [MaxPlanes]Plane

	buffer   BufferRef
	userData any
}

// NewPoolEntry takes ownership of the plane descriptors in init.
func NewPoolEntry(init PoolEntryInit) (*PoolEntry, error) {
	if init.NumPlanes < 1 || init.NumPlanes > MaxPlanes {
		return nil, fmt.Errorf("%w: %d planes", ErrPlaneIndex, init.NumPlanes)
	}
	if init.Width == 0 || init.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, init.Width, init.Height)
	}
	for i := 0; i < init.NumPlanes; i++ {
		if !init.Planes[i].FD.Valid() {
			return nil, fmt.Errorf("%w: no dmabuf for plane %d", ErrIncomplete, i)
		}
	}
	e := &PoolEntry{
		width:     init.Width,
		height:    init.Height,
		format:    init.Format,
		numPlanes: init.NumPlanes,
	}
	copy(e.planes[:], init.Planes[:init.NumPlanes])
	return e, nil
}

func (e *PoolEntry) Width() uint32  { return e.width }
func (e *PoolEntry) Height() uint32 { return e.height }
func (e *PoolEntry) Format() uint32 { return e.format }
func (e *PoolEntry) NumPlanes() int { return e.numPlanes }

// Plane returns plane i. The entry keeps ownership of the descriptor.
func (e *PoolEntry) Plane(i int) Plane {
	return e.planes[i]
}

// UserData returns the value stored by the embedder.
func (e *PoolEntry) UserData() any { return e.userData }

// SetUserData stores an embedder value on the entry.
func (e *PoolEntry) SetUserData(v any) { e.userData = v }

// Bind associates the renderer buffer resource created for this entry.
func (e *PoolEntry) Bind(b BufferRef) { e.buffer = b }

// Buffer returns the bound buffer, or nil once it was destroyed.
func (e *PoolEntry) Buffer() BufferRef {
	if e.buffer == nil || e.buffer.Destroyed() {
		return nil
	}
	return e.buffer
}

var errEntryUnbound = errors.New("dmabuf: pool entry has no live buffer")

// Release acknowledges the entry's buffer to the renderer.
func (e *PoolEntry) Release() error {
	b := e.Buffer()
	if b == nil {
		return errEntryUnbound
	}
	b.Release()
	return nil
}

// Destroy unbinds the buffer and closes the plane descriptors. Only the
// embedder that created the entry calls it.
func (e *PoolEntry) Destroy() {
	e.buffer = nil
	for i := range e.planes {
		e.planes[i].FD.Close()
		e.planes[i].FD = nil
	}
}
