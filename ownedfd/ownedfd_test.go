package ownedfd

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestCloseOnce(t *testing.T) {
	a, b, err := Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	defer b.Close()

	if !a.Valid() {
		t.Fatal("new FD should be valid")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if a.Raw() != -1 {
		t.Errorf("Raw() after Close = %d, want -1", a.Raw())
	}
}

func TestDupIndependent(t *testing.T) {
	a, b, err := Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	defer b.Close()

	d, err := a.Dup()
	if err != nil {
		t.Fatalf("Dup() error = %v", err)
	}
	if d.Raw() == a.Raw() {
		t.Error("Dup() returned the same descriptor number")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	// The duplicate still talks to b.
	if _, err := unix.Write(d.Raw(), []byte{1}); err != nil {
		t.Errorf("write on duplicate after original closed: %v", err)
	}
	_ = d.Close()

	if _, err := a.Dup(); !errors.Is(err, ErrClosed) {
		t.Errorf("Dup() on closed FD error = %v, want ErrClosed", err)
	}
}

func TestRelease(t *testing.T) {
	a, b, err := Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	defer b.Close()

	raw := a.Release()
	if raw < 0 {
		t.Fatalf("Release() = %d, want valid descriptor", raw)
	}
	if a.Valid() {
		t.Error("FD should be invalid after Release")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() after Release = %v, want nil", err)
	}
	if err := unix.Close(raw); err != nil {
		t.Errorf("released descriptor was closed by FD: %v", err)
	}
}

func TestMemfdSize(t *testing.T) {
	f, err := Memfd("ownedfd-test", 4096)
	if err != nil {
		t.Skipf("memfd unavailable: %v", err)
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 4096 {
		t.Errorf("Size() = %d, want 4096", size)
	}
}

func TestNilFD(t *testing.T) {
	var f *FD
	if f.Raw() != -1 {
		t.Errorf("nil Raw() = %d, want -1", f.Raw())
	}
	if f.Valid() {
		t.Error("nil FD should be invalid")
	}
	if err := CloseAll(nil, New(-1)); err != nil {
		t.Errorf("CloseAll() = %v, want nil", err)
	}
}
