// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"context"
	"sync"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/control"
	"github.com/gogpu/viewbackend/ownedfd"
	"github.com/gogpu/viewbackend/surface"
)

// ViewBackend is the host end of a view's control channel. It binds the
// renderer surface announced over the channel to the adapter that owns it.
type ViewBackend struct {
	b      *broker.Broker
	client surface.Client
	width  uint32
	height uint32

	mu     sync.Mutex
	ch     *control.Channel
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	// Loop-owned.
	bridgeID uint32
	detached bool
}

func newViewBackend(b *broker.Broker, client surface.Client, width, height uint32) *ViewBackend {
	return &ViewBackend{b: b, client: client, width: width, height: height}
}

// Size returns the view size the adapter was created with.
func (vb *ViewBackend) Size() (width, height uint32) { return vb.width, vb.height }

// BridgeID returns the bridge id of the bound surface, zero when unbound.
// Loop-only.
func (vb *ViewBackend) BridgeID() uint32 { return vb.bridgeID }

// ClientFD opens the control channel and returns the renderer's end. It
// can be called once per view.
func (vb *ViewBackend) ClientFD() (*ownedfd.FD, error) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if vb.closed {
		return nil, ErrClosed
	}
	if vb.ch != nil {
		return nil, ErrControlOpen
	}

	host, peer, err := ownedfd.Socketpair()
	if err != nil {
		return nil, err
	}
	ch, err := control.Open(host, vb.handle)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	vb.ch, vb.cancel, vb.done = ch, cancel, done
	go func() {
		defer close(done)
		if err := ch.Serve(ctx); err != nil {
			viewbackend.Logger().Warn("control channel stopped", "err", err)
		}
	}()
	return peer, nil
}

// handle runs on the control reader goroutine.
func (vb *ViewBackend) handle(id control.MessageID, body uint32) {
	switch id {
	case control.RegisterSurface:
		vb.b.Post(func() { vb.register(body) })
	case control.UnregisterSurface:
		vb.b.Post(func() { vb.unregister(body) })
	default:
		viewbackend.Logger().Warn("unknown control message", "message", id.String(), "body", body)
	}
}

func (vb *ViewBackend) register(id uint32) {
	if vb.detached {
		return
	}
	// The id comes from another process; a stale one must not bring the
	// host down.
	if _, ok := vb.b.Surface(id); !ok {
		viewbackend.Logger().Warn("register surface: unknown bridge id", "bridge_id", id)
		return
	}
	vb.bridgeID = id
	vb.b.RegisterExportClient(id, vb.client)
	viewbackend.Logger().Debug("surface registered", "bridge_id", id)
}

func (vb *ViewBackend) unregister(id uint32) {
	if _, ok := vb.b.Surface(id); ok {
		vb.b.DispatchFrameCallbacks(id)
	}
	vb.b.UnregisterExportClient(id)
	if vb.bridgeID == id {
		vb.bridgeID = 0
	}
}

// connectionLost runs on the loop when the renderer surface went away.
func (vb *ViewBackend) connectionLost(id uint32) {
	if vb.bridgeID == id {
		vb.bridgeID = 0
	}
}

// DispatchFrameComplete resolves the frame callbacks of the bound surface.
func (vb *ViewBackend) DispatchFrameComplete() {
	vb.b.Post(func() {
		if vb.bridgeID != 0 {
			vb.b.DispatchFrameCallbacks(vb.bridgeID)
		}
	})
}

// Close stops the control channel and unbinds the surface.
func (vb *ViewBackend) Close() {
	vb.mu.Lock()
	if vb.closed {
		vb.mu.Unlock()
		return
	}
	vb.closed = true
	ch, cancel, done := vb.ch, vb.cancel, vb.done
	vb.mu.Unlock()

	if ch != nil {
		cancel()
		_ = ch.Close()
		<-done
	}
	vb.b.Post(func() {
		vb.detached = true
		if vb.bridgeID != 0 {
			vb.b.UnregisterExportClient(vb.bridgeID)
			vb.bridgeID = 0
		}
	})
}
