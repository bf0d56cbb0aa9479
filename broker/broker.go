// Package broker serves renderer connections and routes their committed
// buffers to export adapters.
//
// A Broker is an explicit value: construct it with an importer, run it, and
// cancel the context (or call Close) to tear it down. Everything it owns
// (connections, surfaces, the bridge id registry, export adapters) lives on
// a single loop goroutine. Renderer messages are decoded on per-connection
// reader goroutines and posted to that loop; embedder entry points do the
// same through Post and Call.
//
// Methods documented as loop-only must be called from a function running on
// the loop, for example one passed to Post.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/internal/loop"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/ownedfd"
	"github.com/gogpu/viewbackend/surface"
)

// Broker owns renderer connections and the bridge id registry.
type Broker struct {
	imp  importer.Importer
	opts options
	loop *loop.Loop

	mu     sync.Mutex
	cancel context.CancelFunc
	closed atomic.Bool

	extMu sync.Mutex
	audio *AudioHandler
	video *VideoPlaneHandler

	// Loop-owned state.
	conns         map[*conn]struct{}
	surfaces      map[uint32]*surface.Surface
	nextBridgeID  uint32
	reclaimers    map[int]func(time.Time)
	nextReclaimer int
}

// New creates a broker serving buffers through imp. It panics if imp is
// nil.
func New(imp importer.Importer, opts ...Option) *Broker {
	if imp == nil {
		panic("broker: nil importer")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Broker{
		imp:        imp,
		opts:       o,
		loop:       loop.New(),
		conns:      make(map[*conn]struct{}),
		surfaces:   make(map[uint32]*surface.Surface),
		reclaimers: make(map[int]func(time.Time)),
	}
}

// Importer returns the active importer.
func (b *Broker) Importer() importer.Importer { return b.imp }

// LeaseTimeout returns the configured lease, zero when disabled.
func (b *Broker) LeaseTimeout() time.Duration { return b.opts.leaseTimeout }

// Post queues fn on the loop. It returns false once the broker stopped.
func (b *Broker) Post(fn func()) bool {
	return b.loop.Post(fn)
}

// Call runs fn on the loop and waits for it. It must not be called from
// the loop.
func (b *Broker) Call(ctx context.Context, fn func()) error {
	if err := b.loop.Call(ctx, fn); err != nil {
		if errors.Is(err, loop.ErrStopped) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Run serves connections until ctx is cancelled or Close is called.
// Connections still open when Run returns are closed.
func (b *Broker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.loop.Run(gctx)
	})
	if b.opts.leaseTimeout > 0 {
		g.Go(func() error {
			b.reclaimLoop(gctx)
			return nil
		})
	}
	viewbackend.Logger().Info("broker running",
		"importer", b.imp.Kind().String(), "lease_timeout", b.opts.leaseTimeout)

	err := g.Wait()
	b.closed.Store(true)
	// The loop has exited; its state is ours now.
	b.closeConns()
	viewbackend.Logger().Info("broker stopped")
	return err
}

// Close stops the broker. Queued work drains first.
func (b *Broker) Close() {
	b.closed.Store(true)
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	b.loop.Stop()
	if cancel != nil {
		cancel()
	}
}

func (b *Broker) reclaimLoop(ctx context.Context) {
	t := time.NewTicker(b.opts.interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			b.loop.Post(func() { b.runReclaimers(now) })
		}
	}
}

// AddReclaimer registers fn to run on the loop whenever leases are checked.
// It returns a function that removes fn. Loop-only.
func (b *Broker) AddReclaimer(fn func(now time.Time)) (remove func()) {
	id := b.nextReclaimer
	b.nextReclaimer++
	b.reclaimers[id] = fn
	return func() { delete(b.reclaimers, id) }
}

func (b *Broker) runReclaimers(now time.Time) {
	fns := make([]func(time.Time), 0, len(b.reclaimers))
	for _, fn := range b.reclaimers {
		fns = append(fns, fn)
	}
	for _, fn := range fns {
		fn(now)
	}
}

// CreateClient opens a renderer connection and returns the renderer's end.
// It is safe to call from any goroutine.
func (b *Broker) CreateClient() (*ownedfd.FD, error) {
	if !b.imp.Initialized() {
		return nil, ErrNotInitialized
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}
	server, client, err := ownedfd.Socketpair()
	if err != nil {
		return nil, err
	}
	wc, err := wire.NewConn(server)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c := newConn(b, wc)
	if !b.loop.Post(func() { b.conns[c] = struct{}{} }) {
		_ = wc.Close()
		_ = client.Close()
		return nil, ErrClosed
	}
	c.log.Info("renderer connection created")
	go c.readLoop()
	return client, nil
}

func (b *Broker) closeConns() {
	for c := range b.conns {
		c.close(nil)
	}
}

// registerSurface mints a bridge id for s.
func (b *Broker) registerSurface(s *surface.Surface) uint32 {
	b.nextBridgeID++
	id := b.nextBridgeID
	b.surfaces[id] = s
	return id
}

// unregisterSurface forgets every bridge id bound to s and tells the export
// client the connection is lost.
func (b *Broker) unregisterSurface(s *surface.Surface) {
	for id, x := range b.surfaces {
		if x != s {
			continue
		}
		delete(b.surfaces, id)
		if c := s.Client(); c != nil {
			c.BridgeConnectionLost(id)
		}
	}
}

// RegisterExportClient binds client to the surface behind id. It panics if
// id is unknown. Loop-only.
func (b *Broker) RegisterExportClient(id uint32, client surface.Client) {
	s, ok := b.surfaces[id]
	if !ok {
		panic(fmt.Sprintf("broker: RegisterExportClient: no surface with bridge id %d", id))
	}
	s.SetClient(client)
}

// UnregisterExportClient clears the export client of id and forgets id.
// Unknown ids are ignored. Loop-only.
func (b *Broker) UnregisterExportClient(id uint32) {
	s, ok := b.surfaces[id]
	if !ok {
		return
	}
	s.SetClient(nil)
	delete(b.surfaces, id)
}

// DispatchFrameCallbacks resolves the committed frame callbacks of the
// surface behind id and reports whether any were resolved. Loop-only.
func (b *Broker) DispatchFrameCallbacks(id uint32) bool {
	s, ok := b.surfaces[id]
	if !ok {
		viewbackend.Logger().Warn("dispatch frame callbacks: unknown bridge id, renderer probably exited early",
			"bridge_id", id)
		return false
	}
	return s.DispatchFrameCallbacks()
}

// Surface returns the surface behind id. Loop-only.
func (b *Broker) Surface(id uint32) (*surface.Surface, bool) {
	s, ok := b.surfaces[id]
	return s, ok
}

// surfaceCommit imports the attached buffer and hands it to the export
// client.
func (b *Broker) surfaceCommit(s *surface.Surface) {
	imported := b.imp.Commit(s)
	if imported.Kind == importer.ImportedNone {
		return
	}
	if imported.Buffer != nil && imported.Buffer.Destroyed() {
		return
	}
	client := s.Client()
	exported := false
	switch imported.Kind {
	case importer.ImportedOpaque:
		if e, ok := client.(surface.BufferExporter); ok {
			e.ExportBuffer(imported.Buffer)
			exported = true
		}
	case importer.ImportedDMABuf:
		if e, ok := client.(surface.DMABufExporter); ok {
			e.ExportDMABuf(imported.Buffer)
			exported = true
		}
	case importer.ImportedSharedMemory:
		if e, ok := client.(surface.SharedMemoryExporter); ok {
			e.ExportSharedMemory(imported.Buffer, imported.View)
			exported = true
		}
	case importer.ImportedStreamProducer:
		if e, ok := client.(surface.StreamExporter); ok {
			e.ExportStreamProducer(imported.Buffer)
			exported = true
		}
	case importer.ImportedStreamFrame:
		if e, ok := client.(surface.StreamExporter); ok {
			e.StreamFrameReady()
		}
		return
	case importer.ImportedPoolEntry:
		if e, ok := client.(surface.PoolExporter); ok {
			e.CommitPoolEntry(imported.Entry)
			exported = true
		}
	}
	if !exported && imported.Buffer != nil {
		viewbackend.Logger().Warn("export client does not accept buffer, releasing",
			"kind", imported.Kind.String(), "object", imported.Buffer.ID())
		imported.Buffer.Release()
	}
}

// createPoolEntry allocates a pool entry for s. Only the pool importer
// serves buffer pools.
func (b *Broker) createPoolEntry(s *surface.Surface) (*dmabuf.PoolEntry, error) {
	type entryCreator interface {
		CreateEntry(*surface.Surface) (*dmabuf.PoolEntry, error)
	}
	p, ok := b.imp.(entryCreator)
	if !ok {
		return nil, fmt.Errorf("broker: %s importer does not serve buffer pools", b.imp.Kind())
	}
	return p.CreateEntry(s)
}
