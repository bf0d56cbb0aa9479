// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package importer

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/surface"
)

// Image is a GPU texture created from a renderer buffer.
type Image struct {
	texture  hal.Texture
	width    int
	height   int
	format   uint32
	modifier uint64
}

var _ gpucontext.Texture = (*Image)(nil)

func (img *Image) Width() int  { return img.width }
func (img *Image) Height() int { return img.height }

// Texture returns the underlying texture, or nil once destroyed.
func (img *Image) Texture() hal.Texture { return img.texture }

// Format returns the DRM fourcc of the source buffer.
func (img *Image) Format() uint32 { return img.format }

// Modifier returns the layout modifier of the source buffer. Opaque driver
// buffers report dmabuf.ModInvalid.
func (img *Image) Modifier() uint64 { return img.modifier }

// GPUImage imports buffers as textures on a Display.
type GPUImage struct {
	display *Display
	dmabuf  bool
	table   *dmabuf.FormatTable
}

// NewGPUImage returns an importer that needs Initialize before use.
func NewGPUImage() *GPUImage {
	return &GPUImage{}
}

func (g *GPUImage) Kind() Kind { return KindGPUImage }

func (g *GPUImage) Initialized() bool { return g.display != nil }

// Initialize binds the importer to d. Binding the same display again
// succeeds; a different display fails.
func (g *GPUImage) Initialize(d *Display) error {
	if d == nil || d.Device == nil {
		return ErrNoDevice
	}
	if g.display != nil {
		if g.display == d {
			return nil
		}
		return ErrDisplayBound
	}
	if d.Extensions.Has(ExtBindDisplay) && !d.Extensions.Has(ExtImageBase) {
		return fmt.Errorf("%w: bind-display requires image-base", ErrMissingExtension)
	}

	g.display = d
	if d.Extensions.Has(ExtDMABufImport | ExtDMABufImportModifiers) {
		table, err := dmabuf.NewFormatTable(dmabuf.Pairs(d.Formats))
		if err != nil {
			viewbackend.Logger().Warn("dmabuf import disabled", "err", err)
		} else {
			g.table = table
			g.dmabuf = true
		}
	}
	viewbackend.Logger().Info("gpu image importer initialized",
		"extensions", d.Extensions.String(), "dmabuf", g.dmabuf)
	return nil
}

// DMABufEnabled reports whether multi-plane import is available.
func (g *GPUImage) DMABufEnabled() bool { return g.dmabuf }

// FormatTable returns the advertised format table, or nil when multi-plane
// import is disabled.
func (g *GPUImage) FormatTable() *dmabuf.FormatTable { return g.table }

// AcceptDMABuf checks that attrs can be imported later without touching
// the driver.
func (g *GPUImage) AcceptDMABuf(attrs *dmabuf.Attributes) error {
	if !g.dmabuf {
		return fmt.Errorf("%w: dmabuf-import-modifiers", ErrMissingExtension)
	}
	return attrs.ValidateModifiers()
}

// Close releases the format table.
func (g *GPUImage) Close() error {
	err := g.table.Close()
	g.table = nil
	g.dmabuf = false
	return err
}

func (g *GPUImage) Attach(s *surface.Surface, b *surface.Buffer) { attach(s, b) }

// Commit maps the attached buffer to an Imported value by buffer kind.
func (g *GPUImage) Commit(s *surface.Surface) Imported {
	b, ok := take(s)
	if !ok || b == nil {
		return None
	}
	switch b.Kind() {
	case surface.KindDMABuf:
		return Imported{Kind: ImportedDMABuf, Buffer: b}
	case surface.KindSharedMemory:
		return Imported{Kind: ImportedSharedMemory, Buffer: b, View: b.SharedMemory()}
	case surface.KindOpaque:
		return Imported{Kind: ImportedOpaque, Buffer: b}
	default:
		viewbackend.Logger().Warn("gpu image importer dropped buffer",
			"object", b.ID(), "kind", b.Kind().String())
		b.Release()
		return None
	}
}

// ImportOpaque creates an image from a driver buffer.
func (g *GPUImage) ImportOpaque(b *surface.Buffer) (*Image, error) {
	if g.display == nil || !g.display.Extensions.Has(ExtBindDisplay|ExtImageBase) {
		err := fmt.Errorf("%w: bind-display", ErrMissingExtension)
		viewbackend.Logger().Warn("opaque import unavailable", "err", err)
		return nil, err
	}
	o, ok := b.Opaque()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWrongKind, b.Kind())
	}
	format, err := dmabuf.TextureFormat(o.Format)
	if err != nil {
		return nil, err
	}
	return g.create(int(o.Width), int(o.Height), format, o.Format, dmabuf.ModInvalid,
		fmt.Sprintf("buffer %d", b.ID()))
}

// ImportMultiPlane creates an image from a dmabuf descriptor. The
// descriptor is validated before the driver is involved.
func (g *GPUImage) ImportMultiPlane(attrs *dmabuf.Attributes) (*Image, error) {
	if !g.dmabuf {
		err := fmt.Errorf("%w: dmabuf-import-modifiers", ErrMissingExtension)
		viewbackend.Logger().Warn("multi-plane import unavailable", "err", err)
		return nil, err
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	format, err := dmabuf.TextureFormat(attrs.Format)
	if err != nil {
		return nil, err
	}
	return g.create(int(attrs.Width), int(attrs.Height), format, attrs.Format, attrs.Modifier(),
		fmt.Sprintf("dmabuf %s %dx%d", dmabuf.FormatName(attrs.Format), attrs.Width, attrs.Height))
}

func (g *GPUImage) create(width, height int, format gputypes.TextureFormat, fourcc uint32, modifier uint64, label string) (*Image, error) {
	tex, err := g.display.Device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		viewbackend.Logger().Warn("image import failed", "label", label, "err", err)
		return nil, fmt.Errorf("importer: create texture: %w", err)
	}
	return &Image{texture: tex, width: width, height: height, format: fourcc, modifier: modifier}, nil
}

// DestroyImage frees img's texture. Destroying twice is a no-op.
func (g *GPUImage) DestroyImage(img *Image) {
	if img == nil || img.texture == nil {
		return
	}
	if g.display != nil {
		g.display.Device.DestroyTexture(img.texture)
	}
	img.texture = nil
}

// QueryBufferSize reports the size of a renderer buffer.
func (g *GPUImage) QueryBufferSize(b *surface.Buffer) (width, height int32, ok bool) {
	if b == nil || b.Destroyed() {
		return 0, 0, false
	}
	return b.Width(), b.Height(), true
}
