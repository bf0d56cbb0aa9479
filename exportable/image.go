// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/surface"
)

// ExportedImage is a GPU image cached for one renderer buffer. It is
// reused every time the renderer commits that buffer again.
type ExportedImage struct {
	img *importer.Image
	buf *surface.Buffer

	exported bool
	unlisten func()
}

// Image returns the GPU image.
func (e *ExportedImage) Image() *importer.Image { return e.img }

// Width returns the image width.
func (e *ExportedImage) Width() int { return e.img.Width() }

// Height returns the image height.
func (e *ExportedImage) Height() int { return e.img.Height() }

// ExportedSHM pairs a shared-memory buffer with its mapping.
type ExportedSHM struct {
	buf      *surface.Buffer
	view     *surface.SHMView
	released bool
}

// Buffer returns the renderer buffer.
func (e *ExportedSHM) Buffer() *surface.Buffer { return e.buf }

// View returns the pixel mapping. It is valid until the pair is released.
func (e *ExportedSHM) View() *surface.SHMView { return e.view }

// ImageClient receives cached GPU images and shared-memory frames.
type ImageClient struct {
	ExportImage func(e *ExportedImage)
	ExportSHM   func(e *ExportedSHM)
}

// Image keeps one GPU image per renderer buffer for the buffer's lifetime.
type Image struct {
	base
	client ImageClient
	gpu    *importer.GPUImage

	// Loop-owned.
	cache     map[*surface.Buffer]*ExportedImage
	imgLeases *leases[*ExportedImage]
	shmLeases *leases[*ExportedSHM]
}

// NewImage creates a cached image adapter. b must use the GPU image
// importer.
func NewImage(b *broker.Broker, client ImageClient, width, height uint32) (*Image, error) {
	gpu, err := gpuImporter(b)
	if err != nil {
		return nil, err
	}
	a := &Image{client: client, gpu: gpu, cache: make(map[*surface.Buffer]*ExportedImage)}
	if err := a.init(b, a, width, height); err != nil {
		return nil, err
	}
	a.imgLeases = newLeases(b, "image", a.releaseImage)
	a.shmLeases = newLeases(b, "shm", a.releaseSHM)
	return a, nil
}

func (a *Image) ExportBuffer(b *surface.Buffer) {
	a.export(b, func() (*importer.Image, error) { return a.gpu.ImportOpaque(b) })
}

func (a *Image) ExportDMABuf(b *surface.Buffer) {
	a.export(b, func() (*importer.Image, error) { return a.gpu.ImportMultiPlane(b.DMABuf()) })
}

func (a *Image) export(b *surface.Buffer, create func() (*importer.Image, error)) {
	if a.client.ExportImage == nil {
		b.Release()
		return
	}
	e, ok := a.cache[b]
	if !ok {
		img, err := create()
		if err != nil {
			viewbackend.Logger().Warn("frame dropped, image import failed", "object", b.ID(), "err", err)
			b.Release()
			return
		}
		e = &ExportedImage{img: img, buf: b}
		e.unlisten = b.AddDestroyListener(func(*surface.Buffer) { a.bufferDestroyed(e) })
		a.cache[b] = e
	}
	e.exported = true
	a.imgLeases.acquire(e)
	a.client.ExportImage(e)
}

// bufferDestroyed drops the cache entry. An image the embedder still holds
// lives until it is released.
func (a *Image) bufferDestroyed(e *ExportedImage) {
	delete(a.cache, e.buf)
	e.buf = nil
	e.unlisten = nil
	if !e.exported {
		a.gpu.DestroyImage(e.img)
	}
}

// DispatchReleaseExportedImage hands e back. The buffer is returned to the
// renderer, or the image destroyed if the buffer is gone.
func (a *Image) DispatchReleaseExportedImage(e *ExportedImage) {
	a.b.Post(func() { a.releaseImage(e) })
}

func (a *Image) releaseImage(e *ExportedImage) {
	if !e.exported {
		return
	}
	e.exported = false
	a.imgLeases.release(e)
	if e.buf == nil {
		a.gpu.DestroyImage(e.img)
		return
	}
	e.buf.Release()
}

func (a *Image) ExportSharedMemory(b *surface.Buffer, view *surface.SHMView) {
	if a.client.ExportSHM == nil {
		b.Release()
		return
	}
	e := &ExportedSHM{buf: b, view: view}
	a.shmLeases.acquire(e)
	a.client.ExportSHM(e)
}

// DispatchReleaseSHM returns the shared-memory buffer to the renderer.
func (a *Image) DispatchReleaseSHM(e *ExportedSHM) {
	a.b.Post(func() { a.releaseSHM(e) })
}

func (a *Image) releaseSHM(e *ExportedSHM) {
	if e.released {
		return
	}
	e.released = true
	a.shmLeases.release(e)
	e.buf.Release()
	e.buf, e.view = nil, nil
}

// Close destroys the view. Cached images not held by the embedder are
// destroyed now, held ones on release.
func (a *Image) Close() {
	a.close(func() {
		for b, e := range a.cache {
			if e.unlisten != nil {
				e.unlisten()
			}
			delete(a.cache, b)
			e.buf = nil
			if !e.exported {
				a.gpu.DestroyImage(e.img)
			}
		}
		a.imgLeases.stop()
		a.shmLeases.stop()
	})
}
