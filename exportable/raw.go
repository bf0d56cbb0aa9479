// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/surface"
)

// RawClient receives renderer buffers unchanged.
type RawClient struct {
	ExportBuffer       func(b *surface.Buffer)
	ExportDMABuf       func(b *surface.Buffer)
	ExportSharedMemory func(b *surface.Buffer)
}

// Raw hands buffers to the embedder as they are. Outstanding buffers are
// tracked until released or destroyed by the renderer.
type Raw struct {
	base
	client RawClient

	// Loop-owned.
	held   map[*surface.Buffer]func()
	leases *leases[*surface.Buffer]
}

// NewRaw creates a raw adapter on b.
func NewRaw(b *broker.Broker, client RawClient, width, height uint32) (*Raw, error) {
	r := &Raw{client: client, held: make(map[*surface.Buffer]func())}
	if err := r.init(b, r, width, height); err != nil {
		return nil, err
	}
	r.leases = newLeases(b, "buffer", r.release)
	return r, nil
}

func (r *Raw) ExportBuffer(b *surface.Buffer) { r.export(b, r.client.ExportBuffer) }

func (r *Raw) ExportDMABuf(b *surface.Buffer) { r.export(b, r.client.ExportDMABuf) }

func (r *Raw) ExportSharedMemory(b *surface.Buffer, _ *surface.SHMView) {
	r.export(b, r.client.ExportSharedMemory)
}

func (r *Raw) export(b *surface.Buffer, fn func(*surface.Buffer)) {
	if fn == nil {
		b.Release()
		return
	}
	if _, ok := r.held[b]; !ok {
		r.held[b] = b.AddDestroyListener(func(b *surface.Buffer) {
			delete(r.held, b)
			r.leases.release(b)
		})
	}
	r.leases.acquire(b)
	fn(b)
}

// DispatchReleaseBuffer returns b to the renderer.
func (r *Raw) DispatchReleaseBuffer(b *surface.Buffer) {
	r.b.Post(func() { r.release(b) })
}

func (r *Raw) release(b *surface.Buffer) {
	remove, ok := r.held[b]
	if !ok {
		return
	}
	remove()
	delete(r.held, b)
	r.leases.release(b)
	b.Release()
}

// Close destroys the view. Buffers still held are forgotten.
func (r *Raw) Close() {
	r.close(func() {
		for b, remove := range r.held {
			remove()
			delete(r.held, b)
		}
		r.leases.stop()
	})
}
