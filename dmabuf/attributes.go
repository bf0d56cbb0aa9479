// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import (
	"fmt"
	"math"

	"github.com/gogpu/viewbackend/ownedfd"
)

// MaxPlanes is the maximum number of planes in one buffer.
const MaxPlanes = 4

// Plane is one memory plane of a buffer.
type Plane struct {
	FD       *ownedfd.FD
	Offset   uint32
	Stride   uint32
	Modifier uint64
}

// Attributes describe a multi-plane DMA buffer.
//
// Attributes own the plane descriptors. Close releases them.
type Attributes struct {
	Width     int32
	Height    int32
	Format    uint32
	Flags     uint32
	NumPlanes int
	Planes    [MaxPlanes]Plane
}

// Modifier returns the layout modifier shared by all planes.
func (a *Attributes) Modifier() uint64 {
	return a.Planes[0].Modifier
}

// ValidateLayout checks plane presence, dimensions and 32-bit overflow of
// the plane geometry.
func (a *Attributes) ValidateLayout() error {
	if a.NumPlanes == 0 {
		return fmt.Errorf("%w: no dmabuf has been added", ErrIncomplete)
	}
	if a.NumPlanes > MaxPlanes {
		return fmt.Errorf("%w: %d planes", ErrPlaneIndex, a.NumPlanes)
	}
	for i := 0; i < a.NumPlanes; i++ {
		if !a.Planes[i].FD.Valid() {
			return fmt.Errorf("%w: no dmabuf for plane %d", ErrIncomplete, i)
		}
	}
	if a.Width < 1 || a.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, a.Width, a.Height)
	}
	for i := 0; i < a.NumPlanes; i++ {
		p := &a.Planes[i]
		if uint64(p.Offset)+uint64(p.Stride) > math.MaxUint32 {
			return fmt.Errorf("%w: size overflow for plane %d", ErrOutOfBounds, i)
		}
		if i == 0 && uint64(p.Offset)+uint64(p.Stride)*uint64(a.Height) > math.MaxUint32 {
			return fmt.Errorf("%w: size overflow for plane %d", ErrOutOfBounds, i)
		}
	}
	return nil
}

// CheckFileBounds compares plane geometry with the size of each backing
// file. Planes whose size cannot be determined are skipped.
func (a *Attributes) CheckFileBounds() error {
	for i := 0; i < a.NumPlanes; i++ {
		p := &a.Planes[i]
		size, err := p.FD.Size()
		if err != nil {
			continue
		}
		if int64(p.Offset) >= size {
			return fmt.Errorf("%w: invalid offset %d for plane %d", ErrOutOfBounds, p.Offset, i)
		}
		if int64(p.Offset)+int64(p.Stride) > size {
			return fmt.Errorf("%w: invalid stride %d for plane %d", ErrOutOfBounds, p.Stride, i)
		}
		if i == 0 && int64(p.Offset)+int64(p.Stride)*int64(a.Height) > size {
			return fmt.Errorf("%w: invalid buffer stride or height for plane %d", ErrOutOfBounds, i)
		}
	}
	return nil
}

// ValidateModifiers checks that every plane uses plane 0's modifier.
func (a *Attributes) ValidateModifiers() error {
	for i := 1; i < a.NumPlanes; i++ {
		if a.Planes[i].Modifier != a.Planes[0].Modifier {
			return fmt.Errorf("%w: plane %d has 0x%016x, plane 0 has 0x%016x",
				ErrModifierMismatch, i, a.Planes[i].Modifier, a.Planes[0].Modifier)
		}
	}
	return nil
}

// Validate runs every check an importer needs before touching the driver.
func (a *Attributes) Validate() error {
	if err := a.ValidateLayout(); err != nil {
		return err
	}
	if err := a.CheckFileBounds(); err != nil {
		return err
	}
	return a.ValidateModifiers()
}

// Close closes all plane descriptors.
func (a *Attributes) Close() {
	if a == nil {
		return
	}
	for i := range a.Planes {
		a.Planes[i].FD.Close()
		a.Planes[i].FD = nil
	}
	a.NumPlanes = 0
}
