// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/ownedfd"
	"github.com/gogpu/viewbackend/surface"
)

const timeout = 5 * time.Second

type countingDevice struct {
	hal.Device
	created   int
	destroyed int
	fail      error
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	d.created++
	return d.Device.CreateTexture(desc)
}

func (d *countingDevice) DestroyTexture(t hal.Texture) {
	d.destroyed++
	d.Device.DestroyTexture(t)
}

// noopDevice opens a device on the noop HAL backend.
func noopDevice(t *testing.T) hal.Device {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		t.Fatal("noop backend exposes no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	return open.Device
}

func startBroker(t *testing.T, imp importer.Importer, opts ...broker.Option) *broker.Broker {
	t.Helper()
	b := broker.New(imp, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return b
}

func gpuBroker(t *testing.T, opts ...broker.Option) (*broker.Broker, *countingDevice) {
	t.Helper()
	dev := &countingDevice{Device: noopDevice(t)}
	g := importer.NewGPUImage()
	if err := g.Initialize(&importer.Display{Device: dev, Extensions: importer.AllExtensions}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return startBroker(t, g, opts...), dev
}

// onLoop runs fn on the broker loop, where adapters expect to be driven.
func onLoop(t *testing.T, b *broker.Broker, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.Call(ctx, fn); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

type counter struct{ n int }

func (c *counter) release() { c.n++ }

func opaqueBuffer(id uint32, c *counter) *surface.Buffer {
	return surface.NewOpaqueBuffer(id, surface.Opaque{
		FD: ownedfd.New(-1), Width: 8, Height: 8, Stride: 32, Format: dmabuf.FormatARGB8888,
	}, c.release)
}

func TestNewErrors(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())

	if _, err := NewRaw(nil, RawClient{}, 1, 1); !errors.Is(err, ErrNilBroker) {
		t.Errorf("NewRaw(nil) error = %v, want ErrNilBroker", err)
	}
	if _, err := NewRaw(b, RawClient{}, 0, 1); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("NewRaw(0x1) error = %v, want ErrInvalidSize", err)
	}
	if _, err := NewImage(b, ImageClient{}, 1, 1); !errors.Is(err, ErrWrongImporter) {
		t.Errorf("NewImage() error = %v, want ErrWrongImporter", err)
	}
	if _, err := NewLegacyImage(b, LegacyImageClient{}, 1, 1); !errors.Is(err, ErrWrongImporter) {
		t.Errorf("NewLegacyImage() error = %v, want ErrWrongImporter", err)
	}
	if _, err := NewPool(b, PoolClient{}, 1, 1); !errors.Is(err, ErrWrongImporter) {
		t.Errorf("NewPool() error = %v, want ErrWrongImporter", err)
	}
	if _, err := NewStream(b, StreamClient{}, 1, 1); !errors.Is(err, ErrWrongImporter) {
		t.Errorf("NewStream() error = %v, want ErrWrongImporter", err)
	}
}

func TestRawReleaseOnce(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())
	var got []*surface.Buffer
	r, err := NewRaw(b, RawClient{ExportBuffer: func(buf *surface.Buffer) { got = append(got, buf) }}, 8, 8)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() { r.ExportBuffer(buf) })
	r.DispatchReleaseBuffer(buf)
	r.DispatchReleaseBuffer(buf)
	onLoop(t, b, func() {
		if len(got) != 1 || got[0] != buf {
			t.Errorf("exported %v, want [buffer 30]", got)
		}
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
		if len(r.held) != 0 {
			t.Errorf("%d buffers still held", len(r.held))
		}
	})
}

func TestRawForgetsDestroyedBuffer(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())
	r, err := NewRaw(b, RawClient{ExportDMABuf: func(*surface.Buffer) {}}, 8, 8)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() {
		r.ExportDMABuf(buf)
		buf.Destroy()
	})
	r.DispatchReleaseBuffer(buf)
	onLoop(t, b, func() {
		if c.n != 0 {
			t.Errorf("destroyed buffer acknowledged %d times, want 0", c.n)
		}
		if len(r.held) != 0 {
			t.Errorf("%d buffers still held", len(r.held))
		}
	})
}

func TestRawWithoutCallbackReleases(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())
	r, err := NewRaw(b, RawClient{}, 8, 8)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Close()

	var c counter
	onLoop(t, b, func() { r.ExportBuffer(opaqueBuffer(30, &c)) })
	if c.n != 1 {
		t.Errorf("released %d times, want 1", c.n)
	}
}

func TestImageCachedPerBuffer(t *testing.T) {
	b, dev := gpuBroker(t)
	var got []*ExportedImage
	a, err := NewImage(b, ImageClient{ExportImage: func(e *ExportedImage) { got = append(got, e) }}, 8, 8)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer a.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() { a.ExportBuffer(buf) })
	a.DispatchReleaseExportedImage(got[0])
	a.DispatchReleaseExportedImage(got[0])
	onLoop(t, b, func() { a.ExportBuffer(buf) })

	onLoop(t, b, func() {
		if len(got) != 2 || got[0] != got[1] {
			t.Fatalf("exports %v, want the same image twice", got)
		}
		if dev.created != 1 {
			t.Errorf("created %d textures, want 1", dev.created)
		}
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
		if w := got[0].Width(); w != 8 {
			t.Errorf("Width() = %d, want 8", w)
		}
	})
}

func TestImageBufferDestroyedWhileExported(t *testing.T) {
	b, dev := gpuBroker(t)
	var held *ExportedImage
	a, err := NewImage(b, ImageClient{ExportImage: func(e *ExportedImage) { held = e }}, 8, 8)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer a.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() {
		a.ExportBuffer(buf)
		buf.Destroy()
		if dev.destroyed != 0 {
			t.Errorf("image destroyed while held by the embedder")
		}
	})
	a.DispatchReleaseExportedImage(held)
	onLoop(t, b, func() {
		if dev.destroyed != 1 {
			t.Errorf("destroyed %d textures, want 1", dev.destroyed)
		}
		if c.n != 0 {
			t.Errorf("gone buffer acknowledged %d times, want 0", c.n)
		}
		if len(a.cache) != 0 {
			t.Errorf("%d cache entries left", len(a.cache))
		}
	})
}

func TestImageBufferDestroyedWhileIdle(t *testing.T) {
	b, dev := gpuBroker(t)
	var held *ExportedImage
	a, err := NewImage(b, ImageClient{ExportImage: func(e *ExportedImage) { held = e }}, 8, 8)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer a.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() { a.ExportBuffer(buf) })
	a.DispatchReleaseExportedImage(held)
	onLoop(t, b, func() {
		buf.Destroy()
		if dev.destroyed != 1 {
			t.Errorf("destroyed %d textures, want 1", dev.destroyed)
		}
	})
}

func TestImageImportFailureDropsFrame(t *testing.T) {
	b, dev := gpuBroker(t)
	dev.fail = errors.New("out of memory")
	exported := 0
	a, err := NewImage(b, ImageClient{ExportImage: func(*ExportedImage) { exported++ }}, 8, 8)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer a.Close()

	var c counter
	onLoop(t, b, func() { a.ExportBuffer(opaqueBuffer(30, &c)) })
	if exported != 0 || c.n != 1 {
		t.Errorf("exported %d, released %d, want 0 and 1", exported, c.n)
	}
}

func TestLegacyImagePerFrame(t *testing.T) {
	b, dev := gpuBroker(t)
	var got []*importer.Image
	l, err := NewLegacyImage(b, LegacyImageClient{ExportImage: func(img *importer.Image) { got = append(got, img) }}, 8, 8)
	if err != nil {
		t.Fatalf("NewLegacyImage: %v", err)
	}
	defer l.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() { l.ExportBuffer(buf) })
	l.DispatchReleaseImage(got[0])
	l.DispatchReleaseImage(got[0])
	onLoop(t, b, func() { l.ExportBuffer(buf) })
	onLoop(t, b, func() {
		if len(got) != 2 || got[0] == got[1] {
			t.Fatalf("exports %v, want two distinct images", got)
		}
		buf.Destroy()
	})
	l.DispatchReleaseImage(got[1])
	onLoop(t, b, func() {
		if dev.created != 2 || dev.destroyed != 2 {
			t.Errorf("created %d, destroyed %d textures, want 2 and 2", dev.created, dev.destroyed)
		}
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
	})
}

func TestSharedMemoryReleaseOnce(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())
	var held *ExportedSHM
	s, err := NewSharedMemory(b, SharedMemoryClient{ExportBuffer: func(e *ExportedSHM) { held = e }}, 4, 4)
	if err != nil {
		t.Fatalf("NewSharedMemory: %v", err)
	}
	defer s.Close()

	fd, err := ownedfd.Memfd("shm", 64)
	if err != nil {
		t.Fatalf("Memfd: %v", err)
	}
	view, err := surface.MapSHM(fd, 64, 0, 4, 4, 16, dmabuf.FormatXRGB8888)
	if err != nil {
		t.Fatalf("MapSHM: %v", err)
	}
	var c counter
	buf := surface.NewSharedMemoryBuffer(30, view, c.release)
	defer onLoop(t, b, buf.Destroy)

	onLoop(t, b, func() { s.ExportSharedMemory(buf, view) })
	if held == nil || held.View() != view || held.Buffer() != buf {
		t.Fatalf("exported %+v, want the buffer and its view", held)
	}
	s.DispatchReleaseBuffer(held)
	s.DispatchReleaseBuffer(held)
	onLoop(t, b, func() {
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
	})
}

func TestPoolReleasesEntryBuffer(t *testing.T) {
	b := startBroker(t, importer.NewPool())
	fd, err := ownedfd.Memfd("entry", 64)
	if err != nil {
		t.Fatalf("Memfd: %v", err)
	}
	entry, err := dmabuf.NewPoolEntry(dmabuf.PoolEntryInit{
		Width: 4, Height: 4, Format: dmabuf.FormatARGB8888, NumPlanes: 1,
		Planes: [dmabuf.MaxPlanes]dmabuf.Plane{{FD: fd, Stride: 16}},
	})
	if err != nil {
		t.Fatalf("NewPoolEntry: %v", err)
	}
	var exported []*dmabuf.PoolEntry
	p, err := NewPool(b, PoolClient{
		CreateEntry: func() *dmabuf.PoolEntry { return entry },
		ExportEntry: func(e *dmabuf.PoolEntry) { exported = append(exported, e) },
	}, 4, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	var c counter
	onLoop(t, b, func() {
		e := p.CreatePoolEntry()
		surface.NewPoolBuffer(30, e, c.release)
		p.CommitPoolEntry(e)
	})
	p.DispatchReleaseEntry(entry)
	p.DispatchReleaseEntry(entry)
	onLoop(t, b, func() {
		if len(exported) != 1 || exported[0] != entry {
			t.Errorf("exported %v, want the entry once", exported)
		}
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
		entry.Destroy()
	})
}

func TestStreamForwards(t *testing.T) {
	b := startBroker(t, importer.NewStream())
	var producers []*surface.Buffer
	frames := 0
	s, err := NewStream(b, StreamClient{
		ExportProducer: func(buf *surface.Buffer) { producers = append(producers, buf) },
		FrameReady:     func() { frames++ },
	}, 4, 4)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	defer s.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() {
		s.ExportStreamProducer(buf)
		s.StreamFrameReady()
		s.StreamFrameReady()
	})
	if len(producers) != 1 || frames != 2 {
		t.Errorf("producers %d, frames %d, want 1 and 2", len(producers), frames)
	}
}

func TestLeaseReclaimsHeldBuffer(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory(),
		broker.WithLeaseTimeout(20*time.Millisecond), broker.WithReclaimInterval(10*time.Millisecond))
	r, err := NewRaw(b, RawClient{ExportBuffer: func(*surface.Buffer) {}}, 8, 8)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Close()

	var c counter
	buf := opaqueBuffer(30, &c)
	onLoop(t, b, func() { r.ExportBuffer(buf) })

	deadline := time.Now().Add(timeout)
	for {
		var n int
		onLoop(t, b, func() { n = c.n })
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("buffer not reclaimed, released %d times", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// A late release from the embedder is a no-op.
	r.DispatchReleaseBuffer(buf)
	onLoop(t, b, func() {
		if c.n != 1 {
			t.Errorf("released %d times, want 1", c.n)
		}
	})
}

func TestViewBackendControlOnce(t *testing.T) {
	b := startBroker(t, importer.NewSharedMemory())
	r, err := NewRaw(b, RawClient{}, 8, 8)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	vb := r.ViewBackend()
	if w, h := vb.Size(); w != 8 || h != 8 {
		t.Errorf("Size() = %dx%d, want 8x8", w, h)
	}
	fd, err := vb.ClientFD()
	if err != nil {
		t.Fatalf("ClientFD: %v", err)
	}
	defer fd.Close()
	if _, err := vb.ClientFD(); !errors.Is(err, ErrControlOpen) {
		t.Errorf("second ClientFD() error = %v, want ErrControlOpen", err)
	}

	// An id the broker never minted is ignored.
	onLoop(t, b, func() { vb.register(42) })
	onLoop(t, b, func() {
		if vb.BridgeID() != 0 {
			t.Errorf("BridgeID() = %d, want 0", vb.BridgeID())
		}
	})

	r.Close()
	r.Close()
	if _, err := vb.ClientFD(); !errors.Is(err, ErrClosed) {
		t.Errorf("ClientFD() after Close error = %v, want ErrClosed", err)
	}
}
