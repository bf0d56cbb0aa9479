// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/ownedfd"
)

// Shared-memory errors.
var (
	ErrInvalidFormat = errors.New("surface: unsupported shm format")
	ErrInvalidStride = errors.New("surface: invalid shm stride")
	ErrInvalidFD     = errors.New("surface: invalid shm descriptor")
	ErrMapFailed     = errors.New("surface: failed to map shm")
)

// SHMView is a read-only mapping of a shared-memory buffer.
//
// Only 32-bit ARGB8888 and XRGB8888 layouts are accepted.
type SHMView struct {
	mapping []byte
	offset  int
	width   int32
	height  int32
	stride  int32
	format  uint32
}

// MapSHM maps size bytes of fd and describes the pixels starting at offset.
// fd is always closed; the mapping outlives it.
func MapSHM(fd *ownedfd.FD, size, offset, width, height, stride int32, format uint32) (*SHMView, error) {
	defer fd.Close()

	if format != dmabuf.FormatARGB8888 && format != dmabuf.FormatXRGB8888 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, dmabuf.FormatName(format))
	}
	if width < 1 || height < 1 || offset < 0 || size < 1 {
		return nil, fmt.Errorf("%w: %dx%d at offset %d in %d bytes", ErrInvalidStride, width, height, offset, size)
	}
	if int64(stride) < int64(width)*4 {
		return nil, fmt.Errorf("%w: stride %d for width %d", ErrInvalidStride, stride, width)
	}
	if int64(offset)+int64(stride)*int64(height) > int64(size) {
		return nil, fmt.Errorf("%w: %d rows of %d bytes at offset %d exceed %d bytes",
			ErrInvalidStride, height, stride, offset, size)
	}

	// Touching pages past the end of the file raises SIGBUS.
	fileSize, err := fd.Size()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFD, err)
	}
	if fileSize < int64(size) {
		return nil, fmt.Errorf("%w: pool of %d bytes backed by %d", ErrInvalidFD, size, fileSize)
	}

	m, err := unix.Mmap(fd.Raw(), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapFailed, err)
	}
	return &SHMView{
		mapping: m,
		offset:  int(offset),
		width:   width,
		height:  height,
		stride:  stride,
		format:  format,
	}, nil
}

func (v *SHMView) Width() int32   { return v.width }
func (v *SHMView) Height() int32  { return v.height }
func (v *SHMView) Stride() int32  { return v.stride }
func (v *SHMView) Format() uint32 { return v.format }

// Pixels returns the mapped rows. The slice is invalid after Close.
func (v *SHMView) Pixels() []byte {
	if v.mapping == nil {
		return nil
	}
	return v.mapping[v.offset : v.offset+int(v.stride)*int(v.height)]
}

// Snapshot copies the pixels into a new RGBA image.
func (v *SHMView) Snapshot() *image.RGBA {
	src := &bgraImage{
		pix:    v.Pixels(),
		stride: int(v.stride),
		rect:   image.Rect(0, 0, int(v.width), int(v.height)),
		opaque: v.format == dmabuf.FormatXRGB8888,
	}
	dst := image.NewRGBA(src.rect)
	draw.Copy(dst, image.Point{}, src, src.rect, draw.Src, nil)
	return dst
}

// Close unmaps the buffer.
func (v *SHMView) Close() error {
	if v == nil || v.mapping == nil {
		return nil
	}
	m := v.mapping
	v.mapping = nil
	return unix.Munmap(m)
}

// bgraImage reads little-endian ARGB8888 rows, which are B, G, R, A bytes.
type bgraImage struct {
	pix    []byte
	stride int
	rect   image.Rectangle
	opaque bool
}

func (p *bgraImage) ColorModel() color.Model { return color.RGBAModel }
func (p *bgraImage) Bounds() image.Rectangle { return p.rect }

func (p *bgraImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.rect)) {
		return color.RGBA{}
	}
	i := y*p.stride + x*4
	a := p.pix[i+3]
	if p.opaque {
		a = 0xff
	}
	return color.RGBA{R: p.pix[i+2], G: p.pix[i+1], B: p.pix[i], A: a}
}
