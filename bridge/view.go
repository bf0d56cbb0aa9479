package bridge

import (
	"sync"

	"github.com/gogpu/viewbackend/control"
	"github.com/gogpu/viewbackend/ownedfd"
)

// ViewOptions configures a View.
type ViewOptions struct {
	Width  uint32
	Height uint32
	// SizeListener receives the viewport size, first from NewView.
	SizeListener func(width, height uint32)
}

// View is the renderer end of a control channel. It tells the embedder's
// view backend which bridge id the renderer surface got.
type View struct {
	ch   *control.Channel
	opts ViewOptions

	mu       sync.Mutex
	bridgeID uint32
	closed   bool
}

// NewView opens the control channel on fd, the descriptor the embedder
// handed out for this view, and reports the initial size.
func NewView(fd *ownedfd.FD, opts ViewOptions) (*View, error) {
	ch, err := control.Open(fd, nil)
	if err != nil {
		return nil, err
	}
	v := &View{ch: ch, opts: opts}
	if opts.SizeListener != nil {
		opts.SizeListener(opts.Width, opts.Height)
	}
	return v, nil
}

// Size returns the configured viewport size.
func (v *View) Size() (width, height uint32) { return v.opts.Width, v.opts.Height }

// BridgeConnected announces the surface's bridge id to the embedder.
func (v *View) BridgeConnected(id uint32) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.bridgeID = id
	v.mu.Unlock()
	v.ch.Send(control.RegisterSurface, id)
}

// BridgeID returns the announced bridge id, zero before BridgeConnected.
func (v *View) BridgeID() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bridgeID
}

// Close withdraws the surface and closes the channel.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	id := v.bridgeID
	v.bridgeID = 0
	v.mu.Unlock()

	if id != 0 {
		v.ch.Send(control.UnregisterSurface, id)
	}
	return v.ch.Close()
}
