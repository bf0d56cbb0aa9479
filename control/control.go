// Package control implements the control channel that correlates a
// renderer-side view with the embedder-side view backend.
//
// The channel carries fixed 8-byte records {u32 id, u32 body} in host byte
// order over a connected stream socket, with no framing beyond the record
// size.
package control

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend"
	"github.com/gogpu/viewbackend/ownedfd"
)

// RecordSize is the size of one control record in bytes.
const RecordSize = 8

// MessageID identifies a control record.
type MessageID uint32

// Control messages. The body of both is a bridge id.
const (
	RegisterSurface   MessageID = 1
	UnregisterSurface MessageID = 2
)

// String returns the message name.
func (m MessageID) String() string {
	switch m {
	case RegisterSurface:
		return "RegisterSurface"
	case UnregisterSurface:
		return "UnregisterSurface"
	default:
		return fmt.Sprintf("MessageID(%d)", uint32(m))
	}
}

// HandlerFunc receives one complete record.
type HandlerFunc func(id MessageID, body uint32)

// Channel is one end of a control channel.
type Channel struct {
	file    *os.File
	handler HandlerFunc

	// partial holds the bytes of an incomplete record. Only the reading
	// goroutine touches it.
	partial [RecordSize]byte
	have    int

	wmu sync.Mutex
}

// Open wraps a connected stream socket. The descriptor is switched to
// non-blocking mode and owned by the channel from now on. handler may be
// nil for a send-only channel.
func Open(f *ownedfd.FD, handler HandlerFunc) (*Channel, error) {
	raw := f.Release()
	if raw < 0 {
		return nil, ownedfd.ErrClosed
	}
	if err := unix.SetNonblock(raw, true); err != nil {
		_ = unix.Close(raw)
		return nil, fmt.Errorf("control: set non-blocking: %w", err)
	}
	return &Channel{
		file:    os.NewFile(uintptr(raw), "viewbackend-control"),
		handler: handler,
	}, nil
}

// Send writes one record. Failures are logged, never returned: a peer that
// went away is expected during teardown.
func (c *Channel) Send(id MessageID, body uint32) {
	var rec [RecordSize]byte
	binary.NativeEndian.PutUint32(rec[0:4], uint32(id))
	binary.NativeEndian.PutUint32(rec[4:8], body)

	c.wmu.Lock()
	n, err := c.file.Write(rec[:])
	c.wmu.Unlock()

	log := viewbackend.Logger()
	switch {
	case err != nil && peerGone(err):
		log.Debug("control: peer closed, message dropped", "message", id, "body", body)
	case err != nil:
		log.Warn("control: send failed", "message", id, "body", body, "err", err)
	case n != RecordSize:
		log.Warn("control: short send", "message", id, "written", n)
	}
}

func peerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, os.ErrClosed)
}

// Feed consumes received bytes and dispatches every complete record.
// Bytes of an incomplete record are kept for the next call.
func (c *Channel) Feed(p []byte) {
	for len(p) > 0 {
		n := copy(c.partial[c.have:], p)
		c.have += n
		p = p[n:]
		if c.have < RecordSize {
			return
		}
		c.have = 0
		id := MessageID(binary.NativeEndian.Uint32(c.partial[0:4]))
		body := binary.NativeEndian.Uint32(c.partial[4:8])
		if c.handler != nil {
			c.handler(id, body)
		}
	}
}

// Serve reads records until the peer closes the channel, the channel is
// closed locally or ctx is cancelled. A clean close returns nil.
func (c *Channel) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.file.Close() })
	defer stop()

	buf := make([]byte, 4*RecordSize)
	for {
		n, err := c.file.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
			continue
		}
		viewbackend.Logger().Warn("control: read failed", "err", err)
		return fmt.Errorf("control: read: %w", err)
	}
}

// Close closes the channel. A blocked Serve returns nil.
func (c *Channel) Close() error {
	if err := c.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("control: close: %w", err)
	}
	return nil
}
