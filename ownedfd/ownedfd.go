// Package ownedfd wraps raw file descriptors with single ownership.
//
// An FD is closed exactly once: Close is idempotent and Release transfers
// the raw descriptor out without closing it. Descriptors handed to another
// owner are duplicated first with Dup so each side closes its own copy.
package ownedfd

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when operating on a descriptor that was closed or
// released.
var ErrClosed = errors.New("ownedfd: descriptor closed")

// FD is an owned file descriptor.
//
// The zero value is not usable; construct with New or Dup. FD is safe for
// concurrent use.
type FD struct {
	mu  sync.Mutex
	raw int
}

// New takes ownership of raw. Negative values produce an invalid FD whose
// Close is a no-op.
func New(raw int) *FD {
	return &FD{raw: raw}
}

// Dup duplicates raw with close-on-exec set and returns the owned copy.
// The caller keeps ownership of raw.
func Dup(raw int) (*FD, error) {
	if raw < 0 {
		return nil, fmt.Errorf("ownedfd: dup %d: %w", raw, unix.EBADF)
	}
	d, err := unix.FcntlInt(uintptr(raw), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("ownedfd: dup %d: %w", raw, err)
	}
	return New(d), nil
}

// Raw returns the descriptor number, or -1 if closed. The FD keeps
// ownership.
func (f *FD) Raw() int {
	if f == nil {
		return -1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw
}

// Valid reports whether the FD still owns a descriptor.
func (f *FD) Valid() bool {
	return f.Raw() >= 0
}

// Dup returns an independent owned duplicate.
func (f *FD) Dup() (*FD, error) {
	raw := f.Raw()
	if raw < 0 {
		return nil, ErrClosed
	}
	return Dup(raw)
}

// Release gives up ownership and returns the raw descriptor. The FD becomes
// invalid; the caller must close the returned value.
func (f *FD) Release() int {
	if f == nil {
		return -1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.raw
	f.raw = -1
	return raw
}

// Close closes the descriptor. Subsequent calls return nil.
func (f *FD) Close() error {
	raw := f.Release()
	if raw < 0 {
		return nil
	}
	if err := unix.Close(raw); err != nil {
		return fmt.Errorf("ownedfd: close %d: %w", raw, err)
	}
	return nil
}

// Size returns the size of the underlying file by seeking to its end.
// dmabuf descriptors on older kernels do not support seeking; callers
// treat an error as "size unknown".
func (f *FD) Size() (int64, error) {
	raw := f.Raw()
	if raw < 0 {
		return 0, ErrClosed
	}
	size, err := unix.Seek(raw, 0, unix.SEEK_END)
	if err != nil {
		return 0, fmt.Errorf("ownedfd: seek %d: %w", raw, err)
	}
	return size, nil
}

// Socketpair returns a connected pair of close-on-exec unix stream sockets.
func Socketpair() (*FD, *FD, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ownedfd: socketpair: %w", err)
	}
	return New(fds[0]), New(fds[1]), nil
}

// Memfd creates an anonymous memory file of the given size.
func Memfd(name string, size int64) (*FD, error) {
	raw, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("ownedfd: memfd_create: %w", err)
	}
	f := New(raw)
	// Sealing is best effort; the file is still usable without it.
	_, _ = unix.FcntlInt(uintptr(raw), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK)
	for {
		err = unix.Ftruncate(raw, size)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ownedfd: ftruncate: %w", err)
	}
	return f, nil
}

// CloseAll closes every non-nil FD in fds and returns the first error.
func CloseAll(fds ...*FD) error {
	var first error
	for _, f := range fds {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
