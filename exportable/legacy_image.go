// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"fmt"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/surface"
)

// LegacyImageClient receives a fresh GPU image per frame.
type LegacyImageClient struct {
	ExportImage func(img *importer.Image)
}

// LegacyImage imports every committed buffer into a new image. The image
// belongs to the embedder until DispatchReleaseImage.
type LegacyImage struct {
	base
	client LegacyImageClient
	gpu    *importer.GPUImage

	// Loop-owned.
	images map[*importer.Image]*surface.Buffer
	leases *leases[*importer.Image]
}

// NewLegacyImage creates a per-frame image adapter. b must use the GPU
// image importer.
func NewLegacyImage(b *broker.Broker, client LegacyImageClient, width, height uint32) (*LegacyImage, error) {
	gpu, err := gpuImporter(b)
	if err != nil {
		return nil, err
	}
	l := &LegacyImage{client: client, gpu: gpu, images: make(map[*importer.Image]*surface.Buffer)}
	if err := l.init(b, l, width, height); err != nil {
		return nil, err
	}
	l.leases = newLeases(b, "image", l.release)
	return l, nil
}

func gpuImporter(b *broker.Broker) (*importer.GPUImage, error) {
	if b == nil {
		return nil, ErrNilBroker
	}
	gpu, ok := b.Importer().(*importer.GPUImage)
	if !ok {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrWrongImporter, importer.KindGPUImage, b.Importer().Kind())
	}
	return gpu, nil
}

func (l *LegacyImage) ExportBuffer(b *surface.Buffer) {
	l.export(b, func() (*importer.Image, error) { return l.gpu.ImportOpaque(b) })
}

func (l *LegacyImage) ExportDMABuf(b *surface.Buffer) {
	l.export(b, func() (*importer.Image, error) { return l.gpu.ImportMultiPlane(b.DMABuf()) })
}

func (l *LegacyImage) export(b *surface.Buffer, create func() (*importer.Image, error)) {
	if l.client.ExportImage == nil {
		b.Release()
		return
	}
	img, err := create()
	if err != nil {
		viewbackend.Logger().Warn("frame dropped, image import failed", "object", b.ID(), "err", err)
		b.Release()
		return
	}
	l.images[img] = b
	l.leases.acquire(img)
	l.client.ExportImage(img)
}

// DispatchReleaseImage destroys img and returns its buffer to the renderer
// if the buffer still exists.
func (l *LegacyImage) DispatchReleaseImage(img *importer.Image) {
	l.b.Post(func() { l.release(img) })
}

func (l *LegacyImage) release(img *importer.Image) {
	b, ok := l.images[img]
	if !ok {
		return
	}
	delete(l.images, img)
	l.leases.release(img)
	l.gpu.DestroyImage(img)
	if !b.Destroyed() {
		b.Release()
	}
}

// Close destroys the view and every image not yet released.
func (l *LegacyImage) Close() {
	l.close(func() {
		for img := range l.images {
			l.gpu.DestroyImage(img)
			delete(l.images, img)
		}
		l.leases.stop()
	})
}
