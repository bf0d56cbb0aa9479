// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/importer"
)

// PoolClient allocates pool entries and receives the committed ones.
type PoolClient struct {
	// CreateEntry returns a fresh entry for the renderer's pool, or nil if
	// none can be allocated.
	CreateEntry func() *dmabuf.PoolEntry
	ExportEntry func(e *dmabuf.PoolEntry)
}

// Pool serves buffers from embedder-allocated pool entries.
type Pool struct {
	base
	client PoolClient

	// Loop-owned.
	held   map[*dmabuf.PoolEntry]struct{}
	leases *leases[*dmabuf.PoolEntry]
}

// NewPool creates a pool adapter. b must use the pool importer.
func NewPool(b *broker.Broker, client PoolClient, width, height uint32) (*Pool, error) {
	if b == nil {
		return nil, ErrNilBroker
	}
	if k := b.Importer().Kind(); k != importer.KindPool {
		return nil, ErrWrongImporter
	}
	p := &Pool{client: client, held: make(map[*dmabuf.PoolEntry]struct{})}
	if err := p.init(b, p, width, height); err != nil {
		return nil, err
	}
	p.leases = newLeases(b, "pool entry", p.release)
	return p, nil
}

func (p *Pool) CreatePoolEntry() *dmabuf.PoolEntry {
	if p.client.CreateEntry == nil {
		return nil
	}
	return p.client.CreateEntry()
}

func (p *Pool) CommitPoolEntry(e *dmabuf.PoolEntry) {
	if p.client.ExportEntry == nil {
		_ = e.Release()
		return
	}
	p.held[e] = struct{}{}
	p.leases.acquire(e)
	p.client.ExportEntry(e)
}

// DispatchReleaseEntry returns the entry's buffer to the renderer.
func (p *Pool) DispatchReleaseEntry(e *dmabuf.PoolEntry) {
	p.b.Post(func() { p.release(e) })
}

func (p *Pool) release(e *dmabuf.PoolEntry) {
	if _, ok := p.held[e]; !ok {
		return
	}
	delete(p.held, e)
	p.leases.release(e)
	if err := e.Release(); err != nil {
		viewbackend.Logger().Debug("pool entry release ignored", "err", err)
	}
}

// Close destroys the view.
func (p *Pool) Close() {
	p.close(func() {
		clear(p.held)
		p.leases.stop()
	})
}
