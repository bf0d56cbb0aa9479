// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"sync"
	"time"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/internal/lease"
	"github.com/gogpu/viewbackend/surface"
)

// base carries what every adapter shares: the broker, the view backend and
// teardown.
type base struct {
	b  *broker.Broker
	vb *ViewBackend

	closeOnce sync.Once
}

func (a *base) init(b *broker.Broker, client surface.Client, width, height uint32) error {
	if b == nil {
		return ErrNilBroker
	}
	if width == 0 || height == 0 {
		return ErrInvalidSize
	}
	a.b = b
	a.vb = newViewBackend(b, client, width, height)
	return nil
}

// ViewBackend returns the view backend owned by the adapter.
func (a *base) ViewBackend() *ViewBackend { return a.vb }

// DispatchFrameComplete tells the renderer the last committed frame was
// presented.
func (a *base) DispatchFrameComplete() { a.vb.DispatchFrameComplete() }

// BridgeConnectionLost implements surface.Client.
func (a *base) BridgeConnectionLost(id uint32) { a.vb.connectionLost(id) }

// close tears the view down once and runs cleanup on the loop.
func (a *base) close(cleanup func()) {
	a.closeOnce.Do(func() {
		a.vb.Close()
		if cleanup != nil {
			a.b.Post(cleanup)
		}
	})
}

// leases reclaims handles the embedder holds past the broker lease.
type leases[K comparable] struct {
	t      *lease.Tracker[K]
	remove func()
}

func newLeases[K comparable](b *broker.Broker, what string, reclaim func(K)) *leases[K] {
	l := &leases[K]{t: lease.New[K](b.LeaseTimeout())}
	if !l.t.Enabled() {
		return l
	}
	b.Post(func() {
		l.remove = b.AddReclaimer(func(now time.Time) {
			for _, k := range l.t.Expired(now) {
				viewbackend.Logger().Warn("lease expired, reclaiming", "handle", what, "lease", l.t.TTL())
				reclaim(k)
			}
		})
	})
	return l
}

func (l *leases[K]) acquire(k K) { l.t.Acquire(k) }
func (l *leases[K]) release(k K) { l.t.Release(k) }

// stop unregisters the reclaimer. Loop-only.
func (l *leases[K]) stop() {
	if l.remove != nil {
		l.remove()
		l.remove = nil
	}
}
