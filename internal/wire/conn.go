package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend/ownedfd"
)

// Conn is a message connection over a unix stream socket.
//
// ReadMessage must be called from a single goroutine. WriteMessage and
// TakeFD are safe for concurrent use.
type Conn struct {
	uc *net.UnixConn

	rbuf []byte
	rlen int
	oob  []byte

	fdMu sync.Mutex
	fds  []*ownedfd.FD

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn takes ownership of a connected unix socket descriptor.
func NewConn(f *ownedfd.FD) (*Conn, error) {
	raw := f.Release()
	if raw < 0 {
		return nil, ownedfd.ErrClosed
	}
	file := os.NewFile(uintptr(raw), "viewbackend-wire")
	// FileConn duplicates the descriptor; the os.File copy is closed here.
	nc, err := net.FileConn(file)
	_ = file.Close()
	if err != nil {
		return nil, fmt.Errorf("wire: file conn: %w", err)
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		_ = nc.Close()
		return nil, fmt.Errorf("wire: descriptor is %T, not a unix socket", nc)
	}
	return &Conn{
		uc:   uc,
		rbuf: make([]byte, 2*MaxMessageSize),
		oob:  make([]byte, unix.CmsgSpace(maxFDsPerMessage*4)),
	}, nil
}

// ReadMessage blocks until a complete message is available. Descriptors
// received alongside are queued for TakeFD. It returns io.EOF when the
// peer closed the connection cleanly.
func (c *Conn) ReadMessage() (*Decoder, error) {
	for {
		if c.rlen >= HeaderSize {
			object, opcode, size := DecodeHeader(c.rbuf[:HeaderSize])
			if size < HeaderSize || size > MaxMessageSize || size%4 != 0 {
				return nil, fmt.Errorf("%w: bad size %d for object %d", ErrMalformed, size, object)
			}
			if c.rlen >= size {
				body := make([]byte, size-HeaderSize)
				copy(body, c.rbuf[HeaderSize:size])
				c.rlen = copy(c.rbuf, c.rbuf[size:c.rlen])
				return NewDecoder(object, opcode, body, c), nil
			}
		}

		n, oobn, _, _, err := c.uc.ReadMsgUnix(c.rbuf[c.rlen:], c.oob)
		if oobn > 0 {
			if perr := c.queueRights(c.oob[:oobn]); perr != nil {
				return nil, perr
			}
		}
		c.rlen += n
		if err != nil {
			if errors.Is(err, io.EOF) && c.rlen > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if n == 0 && oobn == 0 {
			if c.rlen > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, io.EOF
		}
	}
}

func (c *Conn) queueRights(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("wire: parse control message: %w", err)
	}
	var received []*ownedfd.FD
	for i := range msgs {
		raws, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, raw := range raws {
			received = append(received, ownedfd.New(raw))
		}
	}
	c.fdMu.Lock()
	c.fds = append(c.fds, received...)
	c.fdMu.Unlock()
	return nil
}

// TakeFD pops the oldest received descriptor.
func (c *Conn) TakeFD() (*ownedfd.FD, error) {
	c.fdMu.Lock()
	defer c.fdMu.Unlock()
	if len(c.fds) == 0 {
		return nil, ErrMissingFD
	}
	f := c.fds[0]
	c.fds[0] = nil
	c.fds = c.fds[1:]
	return f, nil
}

// WriteMessage sends m with its descriptors in one sendmsg call.
func (c *Conn) WriteMessage(m *Message) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	var oob []byte
	if fds := m.FDs(); len(fds) > 0 {
		raws := make([]int, 0, len(fds))
		for _, f := range fds {
			raw := f.Raw()
			if raw < 0 {
				return fmt.Errorf("wire: object %d opcode %d: %w", m.Object(), m.Opcode(), ownedfd.ErrClosed)
			}
			raws = append(raws, raw)
		}
		oob = unix.UnixRights(raws...)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, _, err := c.uc.WriteMsgUnix(data, oob, nil)
	if err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("wire: short write %d of %d", n, len(data))
	}
	return nil
}

// Close closes the socket and every descriptor still queued.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.uc.Close()
		c.fdMu.Lock()
		pending := c.fds
		c.fds = nil
		c.fdMu.Unlock()
		_ = ownedfd.CloseAll(pending...)
	})
	return c.closeErr
}
