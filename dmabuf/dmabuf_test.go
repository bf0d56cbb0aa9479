// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/viewbackend/ownedfd"
)

func memfd(t *testing.T, size int64) *ownedfd.FD {
	t.Helper()
	fd, err := ownedfd.Memfd("dmabuf-test", size)
	if err != nil {
		t.Fatalf("Memfd() error = %v", err)
	}
	t.Cleanup(func() { _ = fd.Close() })
	return fd
}

// unsized returns a descriptor that does not support seeking, like dmabufs
// on older kernels.
func unsized(t *testing.T) *ownedfd.FD {
	t.Helper()
	a, b, err := ownedfd.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return a
}

func TestFourCC(t *testing.T) {
	if got := FormatName(FormatXRGB8888); got != "XR24" {
		t.Errorf("FormatName(XRGB8888) = %q, want XR24", got)
	}
	if FormatARGB8888 != 0x34325241 {
		t.Errorf("FormatARGB8888 = 0x%08x, want 0x34325241", FormatARGB8888)
	}
	if got := FormatName(0x01020304); got != "0x01020304" {
		t.Errorf("FormatName(non-printable) = %q", got)
	}
}

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		format uint32
		want   gputypes.TextureFormat
	}{
		{FormatARGB8888, gputypes.TextureFormatBGRA8Unorm},
		{FormatXBGR8888, gputypes.TextureFormatRGBA8Unorm},
		{FormatR8, gputypes.TextureFormatR8Unorm},
		{FormatABGR16161616F, gputypes.TextureFormatRGBA16Float},
	}
	for _, tt := range tests {
		got, err := TextureFormat(tt.format)
		if err != nil {
			t.Errorf("TextureFormat(%s) error = %v", FormatName(tt.format), err)
			continue
		}
		if got != tt.want {
			t.Errorf("TextureFormat(%s) = %v, want %v", FormatName(tt.format), got, tt.want)
		}
	}
	if _, err := TextureFormat(FormatNV12); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("TextureFormat(NV12) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestValidateLayout(t *testing.T) {
	fd := unsized(t)
	tests := []struct {
		name  string
		attrs Attributes
		want  error
	}{
		{
			name:  "no planes",
			attrs: Attributes{Width: 4, Height: 4},
			want:  ErrIncomplete,
		},
		{
			name: "gap",
			attrs: Attributes{Width: 4, Height: 4, NumPlanes: 2,
				Planes: [MaxPlanes]Plane{{}, {FD: fd}}},
			want: ErrIncomplete,
		},
		{
			name: "zero width",
			attrs: Attributes{Width: 0, Height: 4, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Stride: 16}}},
			want: ErrInvalidDimensions,
		},
		{
			name: "offset plus stride overflows",
			attrs: Attributes{Width: 4, Height: 1, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Offset: math.MaxUint32, Stride: 1}}},
			want: ErrOutOfBounds,
		},
		{
			name: "plane 0 stride times height overflows",
			attrs: Attributes{Width: 4, Height: 2, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Offset: 1, Stride: 1 << 31}}},
			want: ErrOutOfBounds,
		},
		{
			name: "offset plus stride at the limit",
			attrs: Attributes{Width: 4, Height: 1, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Offset: math.MaxUint32 - 16, Stride: 16}}},
		},
		{
			// 65537 * 65535 == 2^32-1.
			name: "plane 0 stride times height at the limit",
			attrs: Attributes{Width: 4, Height: 65535, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Stride: 65537}}},
		},
		{
			name: "plane 0 one byte past the limit",
			attrs: Attributes{Width: 4, Height: 65535, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Offset: 1, Stride: 65537}}},
			want: ErrOutOfBounds,
		},
		{
			name: "valid",
			attrs: Attributes{Width: 4, Height: 4, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: fd, Stride: 16}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.attrs.ValidateLayout()
			if tt.want == nil {
				if err != nil {
					t.Errorf("ValidateLayout() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateLayout() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckFileBounds(t *testing.T) {
	tests := []struct {
		name   string
		size   int64
		offset uint32
		stride uint32
		height int32
		ok     bool
	}{
		{"fits", 64, 0, 16, 4, true},
		{"offset at end", 64, 64, 16, 1, false},
		{"stride past end", 64, 60, 16, 1, false},
		{"height past end", 64, 0, 16, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Attributes{Width: 4, Height: tt.height, NumPlanes: 1,
				Planes: [MaxPlanes]Plane{{FD: memfd(t, tt.size), Offset: tt.offset, Stride: tt.stride}}}
			err := a.CheckFileBounds()
			if tt.ok && err != nil {
				t.Errorf("CheckFileBounds() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("CheckFileBounds() = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestCheckFileBoundsUnseekable(t *testing.T) {
	a := Attributes{Width: 4, Height: 1 << 20, NumPlanes: 1,
		Planes: [MaxPlanes]Plane{{FD: unsized(t), Stride: 4096}}}
	if err := a.CheckFileBounds(); err != nil {
		t.Errorf("CheckFileBounds() = %v, want nil when size is unknown", err)
	}
}

func TestValidateModifiers(t *testing.T) {
	const m = 0x0100000000000001
	fd0, fd1 := unsized(t), unsized(t)

	same := Attributes{Width: 4, Height: 4, NumPlanes: 2, Planes: [MaxPlanes]Plane{
		{FD: fd0, Stride: 16, Modifier: m},
		{FD: fd1, Stride: 8, Modifier: m},
	}}
	if err := same.Validate(); err != nil {
		t.Errorf("Validate() with equal modifiers = %v, want nil", err)
	}

	mixed := same
	mixed.Planes[1].Modifier = m + 1
	if err := mixed.Validate(); !errors.Is(err, ErrModifierMismatch) {
		t.Errorf("Validate() with differing modifiers = %v, want ErrModifierMismatch", err)
	}
}

func TestParams(t *testing.T) {
	p := NewParams()
	if err := p.Add(memfd(t, 256), 0, 0, 16, ModLinear); err != nil {
		t.Fatalf("Add(0) error = %v", err)
	}
	dup := memfd(t, 256)
	if err := p.Add(dup, 0, 0, 16, ModLinear); !errors.Is(err, ErrPlaneSet) {
		t.Errorf("Add(0) twice = %v, want ErrPlaneSet", err)
	}
	if dup.Valid() {
		t.Error("rejected descriptor should be closed")
	}
	if err := p.Add(memfd(t, 256), MaxPlanes, 0, 16, ModLinear); !errors.Is(err, ErrPlaneIndex) {
		t.Errorf("Add(%d) = %v, want ErrPlaneIndex", MaxPlanes, err)
	}

	attrs, err := p.Build(4, 4, FormatXRGB8888, 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer attrs.Close()
	if attrs.NumPlanes != 1 || attrs.Width != 4 || attrs.Format != FormatXRGB8888 {
		t.Errorf("Build() = %+v", attrs)
	}
	if !p.Used() {
		t.Error("Used() = false after Build")
	}
	if _, err := p.Build(4, 4, FormatXRGB8888, 0); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("second Build() = %v, want ErrAlreadyUsed", err)
	}
	if err := p.Add(memfd(t, 16), 1, 0, 16, ModLinear); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("Add() after Build = %v, want ErrAlreadyUsed", err)
	}
}

func TestParamsBuildFailureClosesPlanes(t *testing.T) {
	p := NewParams()
	fd := memfd(t, 64)
	if err := p.Add(fd, 1, 0, 16, ModLinear); err != nil {
		t.Fatalf("Add(1) error = %v", err)
	}
	if _, err := p.Build(4, 4, FormatXRGB8888, 0); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Build() = %v, want ErrIncomplete", err)
	}
	if fd.Valid() {
		t.Error("plane descriptor should be closed after failed Build")
	}
}

func TestPairs(t *testing.T) {
	got := Pairs([]FormatSupport{
		{Format: FormatARGB8888},
		{Format: FormatNV12, Modifiers: []uint64{ModLinear, 7}},
	})
	want := []FormatModifier{
		{FormatARGB8888, ModInvalid},
		{FormatNV12, ModLinear},
		{FormatNV12, 7},
	}
	if len(got) != len(want) {
		t.Fatalf("Pairs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Pairs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFormatTable(t *testing.T) {
	pairs := []FormatModifier{{FormatARGB8888, ModInvalid}, {FormatXRGB8888, ModLinear}}
	table, err := NewFormatTable(pairs)
	if err != nil {
		t.Fatalf("NewFormatTable() error = %v", err)
	}
	defer table.Close()

	if table.Size() != 2*TableEntrySize {
		t.Errorf("Size() = %d, want %d", table.Size(), 2*TableEntrySize)
	}

	buf := make([]byte, table.Size())
	if _, err := unix.Pread(table.FD().Raw(), buf, 0); err != nil {
		t.Fatalf("Pread() error = %v", err)
	}
	got := DecodeTable(buf)
	if len(got) != 2 || got[0] != pairs[0] || got[1] != pairs[1] {
		t.Errorf("DecodeTable() = %v, want %v", got, pairs)
	}

	if !table.Supports(FormatARGB8888, 42) {
		t.Error("ModInvalid entry should accept any modifier")
	}
	if table.Supports(FormatXRGB8888, 42) {
		t.Error("Supports(XRGB8888, 42) = true, want false")
	}
}

type fakeBuffer struct {
	released  int
	destroyed bool
}

func (b *fakeBuffer) Release()        { b.released++ }
func (b *fakeBuffer) Destroyed() bool { return b.destroyed }

func TestPoolEntry(t *testing.T) {
	fd := memfd(t, 4096)
	e, err := NewPoolEntry(PoolEntryInit{
		Width: 16, Height: 16, Format: FormatARGB8888, NumPlanes: 1,
		Planes: [MaxPlanes]Plane{{FD: fd, Stride: 64}},
	})
	if err != nil {
		t.Fatalf("NewPoolEntry() error = %v", err)
	}

	e.SetUserData("slot-3")
	if e.UserData() != "slot-3" {
		t.Errorf("UserData() = %v, want slot-3", e.UserData())
	}

	if err := e.Release(); err == nil {
		t.Error("Release() without buffer should fail")
	}
	b := &fakeBuffer{}
	e.Bind(b)
	if err := e.Release(); err != nil || b.released != 1 {
		t.Errorf("Release() = %v, released = %d", err, b.released)
	}
	b.destroyed = true
	if e.Buffer() != nil {
		t.Error("Buffer() should be nil once destroyed")
	}

	e.Destroy()
	if fd.Valid() {
		t.Error("Destroy() should close plane descriptors")
	}
}

func TestPoolEntryInvalid(t *testing.T) {
	if _, err := NewPoolEntry(PoolEntryInit{Width: 1, Height: 1}); !errors.Is(err, ErrPlaneIndex) {
		t.Errorf("NewPoolEntry(0 planes) = %v, want ErrPlaneIndex", err)
	}
	_, err := NewPoolEntry(PoolEntryInit{Width: 1, Height: 1, NumPlanes: 2,
		Planes: [MaxPlanes]Plane{{FD: memfd(t, 16)}}})
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("NewPoolEntry(missing plane) = %v, want ErrIncomplete", err)
	}
}
