// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"encoding/binary"
	"errors"
	"image/color"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/ownedfd"
)

func TestBufferReleaseAfterDestroy(t *testing.T) {
	released := 0
	b := NewOpaqueBuffer(1, Opaque{Width: 2, Height: 3}, func() { released++ })

	b.Release()
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	b.Destroy()
	b.Release()
	if released != 1 {
		t.Errorf("Release() after Destroy sent an event, released = %d", released)
	}
	if b.Width() != 2 || b.Height() != 3 {
		t.Errorf("size = %dx%d, want 2x3", b.Width(), b.Height())
	}
}

func TestBufferDestroyListeners(t *testing.T) {
	b := NewOpaqueBuffer(1, Opaque{}, nil)

	var got []string
	b.AddDestroyListener(func(*Buffer) { got = append(got, "a") })
	remove := b.AddDestroyListener(func(*Buffer) { got = append(got, "b") })
	b.AddDestroyListener(func(x *Buffer) {
		if !x.Destroyed() {
			t.Error("listener ran before Destroyed() was set")
		}
		got = append(got, "c")
	})
	remove()

	b.Destroy()
	b.Destroy()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("listeners ran %v, want [a c]", got)
	}
}

func TestPoolBufferBindsEntry(t *testing.T) {
	fd, err := ownedfd.Memfd("pool", 64)
	if err != nil {
		t.Fatalf("Memfd() error = %v", err)
	}
	e, err := dmabuf.NewPoolEntry(dmabuf.PoolEntryInit{
		Width: 4, Height: 4, Format: dmabuf.FormatARGB8888, NumPlanes: 1,
		Planes: [dmabuf.MaxPlanes]dmabuf.Plane{{FD: fd, Stride: 16}},
	})
	if err != nil {
		t.Fatalf("NewPoolEntry() error = %v", err)
	}

	released := 0
	b := NewPoolBuffer(9, e, func() { released++ })
	if e.Buffer() != b {
		t.Fatal("entry is not bound to its buffer")
	}
	if err := e.Release(); err != nil || released != 1 {
		t.Errorf("entry Release() = %v, released = %d", err, released)
	}
	b.Destroy()
	if e.Buffer() != nil {
		t.Error("entry still bound after buffer destroy")
	}
	if !fd.Valid() {
		t.Fatal("buffer destroy closed the entry planes")
	}
	if err := e.Release(); err == nil {
		t.Error("entry Release() after buffer destroy succeeded")
	}
	if released != 1 {
		t.Errorf("released = %d after buffer destroy, want 1", released)
	}
	var st unix.Stat_t
	if err := unix.Fstat(e.Plane(0).FD.Raw(), &st); err != nil {
		t.Errorf("entry plane 0 unusable after buffer destroy: %v", err)
	}

	e.Destroy()
	if fd.Valid() {
		t.Error("entry Destroy() left the plane open")
	}
}

func shmFile(t *testing.T, pixels []byte) *ownedfd.FD {
	t.Helper()
	fd, err := ownedfd.Memfd("shm", int64(len(pixels)))
	if err != nil {
		t.Fatalf("Memfd() error = %v", err)
	}
	if _, err := unix.Pwrite(fd.Raw(), pixels, 0); err != nil {
		t.Fatalf("Pwrite() error = %v", err)
	}
	return fd
}

func TestMapSHMSnapshot(t *testing.T) {
	// 2x1 XRGB8888 with an 12-byte stride: red, green, padding.
	pix := make([]byte, 12)
	binary.LittleEndian.PutUint32(pix[0:], 0x00ff0000)
	binary.LittleEndian.PutUint32(pix[4:], 0x0000ff00)

	view, err := MapSHM(shmFile(t, pix), 12, 0, 2, 1, 12, dmabuf.FormatXRGB8888)
	if err != nil {
		t.Fatalf("MapSHM() error = %v", err)
	}
	defer view.Close()

	img := view.Snapshot()
	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Errorf("pixel (0,0) = %v, want opaque red", got)
	}
	if got := img.RGBAAt(1, 0); got != (color.RGBA{G: 0xff, A: 0xff}) {
		t.Errorf("pixel (1,0) = %v, want opaque green", got)
	}

	b := NewSharedMemoryBuffer(3, view, nil)
	if b.Kind() != KindSharedMemory || b.Width() != 2 || b.Format() != dmabuf.FormatXRGB8888 {
		t.Errorf("buffer = kind %v %dx%d %s", b.Kind(), b.Width(), b.Height(), dmabuf.FormatName(b.Format()))
	}
	b.Destroy()
	if view.Pixels() != nil {
		t.Error("Destroy() should unmap the view")
	}
}

func TestMapSHMErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   int
		size   int32
		offset int32
		stride int32
		format uint32
		want   error
	}{
		{"format", 64, 64, 0, 16, dmabuf.FormatNV12, ErrInvalidFormat},
		{"stride below width", 64, 64, 0, 8, dmabuf.FormatARGB8888, ErrInvalidStride},
		{"rows past end", 64, 64, 16, 16, dmabuf.FormatARGB8888, ErrInvalidStride},
		{"file shorter than pool", 16, 64, 0, 16, dmabuf.FormatXRGB8888, ErrInvalidFD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := shmFile(t, make([]byte, tt.file))
			_, err := MapSHM(fd, tt.size, tt.offset, 4, 4, tt.stride, tt.format)
			if !errors.Is(err, tt.want) {
				t.Errorf("MapSHM() = %v, want %v", err, tt.want)
			}
			if fd.Valid() {
				t.Error("MapSHM() must close the descriptor")
			}
		})
	}
}
