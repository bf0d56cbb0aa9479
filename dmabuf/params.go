// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import "github.com/gogpu/viewbackend/ownedfd"

// Params accumulates planes for a buffer under construction.
//
// A Params builds at most one buffer. Every descriptor passed to Add is owned
// by the Params from then on, including on error.
type Params struct {
	attrs Attributes
	used  bool
}

// NewParams returns an empty builder.
func NewParams() *Params {
	return &Params{}
}

// Used reports whether Build was called.
func (p *Params) Used() bool {
	return p.used
}

// Add sets plane index to fd with the given geometry.
func (p *Params) Add(fd *ownedfd.FD, index, offset, stride uint32, modifier uint64) error {
	if p.used {
		fd.Close()
		return ErrAlreadyUsed
	}
	if index >= MaxPlanes {
		fd.Close()
		return ErrPlaneIndex
	}
	if p.attrs.Planes[index].FD.Valid() {
		fd.Close()
		return ErrPlaneSet
	}

	p.attrs.Planes[index] = Plane{FD: fd, Offset: offset, Stride: stride, Modifier: modifier}
	if int(index)+1 > p.attrs.NumPlanes {
		p.attrs.NumPlanes = int(index) + 1
	}
	return nil
}

// Build finalizes the descriptor. Layout and file bounds are checked;
// modifier consistency is left to the importer. On success the caller owns
// the returned Attributes. On failure the planes are closed.
func (p *Params) Build(width, height int32, format, flags uint32) (*Attributes, error) {
	if p.used {
		return nil, ErrAlreadyUsed
	}
	p.used = true

	attrs := p.attrs
	p.attrs = Attributes{}
	attrs.Width = width
	attrs.Height = height
	attrs.Format = format
	attrs.Flags = flags

	if err := attrs.ValidateLayout(); err != nil {
		attrs.Close()
		return nil, err
	}
	if err := attrs.CheckFileBounds(); err != nil {
		attrs.Close()
		return nil, err
	}
	return &attrs, nil
}

// Close releases planes that were added but never built.
func (p *Params) Close() {
	p.attrs.Close()
}
