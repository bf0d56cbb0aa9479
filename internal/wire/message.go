package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/viewbackend/ownedfd"
)

// HeaderSize is the size of a message header in bytes.
const HeaderSize = 8

// MaxMessageSize bounds a single message including its header.
const MaxMessageSize = 4096

// maxFDsPerMessage bounds descriptors carried by one message.
const maxFDsPerMessage = 28

var hostOrder = binary.NativeEndian

// Message is an outgoing request or event. Arguments are appended in
// declaration order.
type Message struct {
	object uint32
	opcode uint16
	body   []byte
	fds    []*ownedfd.FD
}

// NewMessage starts a message for object with opcode.
func NewMessage(object uint32, opcode uint16) *Message {
	return &Message{object: object, opcode: opcode, body: make([]byte, 0, 32)}
}

// Object returns the target object id.
func (m *Message) Object() uint32 { return m.object }

// Opcode returns the message opcode.
func (m *Message) Opcode() uint16 { return m.opcode }

// Uint32 appends an unsigned argument.
func (m *Message) Uint32(v uint32) *Message {
	m.body = hostOrder.AppendUint32(m.body, v)
	return m
}

// Int32 appends a signed argument.
func (m *Message) Int32(v int32) *Message {
	return m.Uint32(uint32(v))
}

// Uint64 appends a 64-bit value as two u32 arguments, high word first.
func (m *Message) Uint64(v uint64) *Message {
	return m.Uint32(uint32(v >> 32)).Uint32(uint32(v))
}

// String appends a NUL-terminated, 32-bit padded string.
func (m *Message) String(s string) *Message {
	n := len(s) + 1
	m.Uint32(uint32(n))
	m.body = append(m.body, s...)
	m.body = append(m.body, 0)
	for len(m.body)%4 != 0 {
		m.body = append(m.body, 0)
	}
	return m
}

// FD attaches a descriptor. The message does not take ownership; the kernel
// duplicates the descriptor into the peer when the message is written.
func (m *Message) FD(f *ownedfd.FD) *Message {
	m.fds = append(m.fds, f)
	return m
}

// FDs returns the attached descriptors.
func (m *Message) FDs() []*ownedfd.FD { return m.fds }

// Bytes encodes the header and body.
func (m *Message) Bytes() ([]byte, error) {
	size := HeaderSize + len(m.body)
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	if len(m.fds) > maxFDsPerMessage {
		return nil, fmt.Errorf("%w: %d descriptors", ErrTooLarge, len(m.fds))
	}
	out := make([]byte, 0, size)
	out = hostOrder.AppendUint32(out, m.object)
	out = hostOrder.AppendUint32(out, uint32(size)<<16|uint32(m.opcode))
	out = append(out, m.body...)
	return out, nil
}

// DecodeHeader splits a message header.
func DecodeHeader(buf []byte) (object uint32, opcode uint16, size int) {
	object = hostOrder.Uint32(buf[:4])
	word := hostOrder.Uint32(buf[4:8])
	opcode = uint16(word & 0xffff)
	size = int(word >> 16)
	return object, opcode, size
}

// FDSource hands out received descriptors in arrival order.
type FDSource interface {
	TakeFD() (*ownedfd.FD, error)
}

// Decoder reads the arguments of one received message. The first decoding
// failure sticks; later reads return zero values and Err reports it.
type Decoder struct {
	object uint32
	opcode uint16
	body   []byte
	off    int
	fds    FDSource
	err    error
}

// NewDecoder wraps a message body. fds may be nil for messages without
// descriptor arguments.
func NewDecoder(object uint32, opcode uint16, body []byte, fds FDSource) *Decoder {
	return &Decoder{object: object, opcode: opcode, body: body, fds: fds}
}

// Object returns the target object id.
func (d *Decoder) Object() uint32 { return d.object }

// Opcode returns the message opcode.
func (d *Decoder) Opcode() uint16 { return d.opcode }

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

func (d *Decoder) fail(what string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: object %d opcode %d: %s", ErrMalformed, d.object, d.opcode, what)
	}
}

// Uint32 reads an unsigned argument.
func (d *Decoder) Uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.body)-d.off < 4 {
		d.fail("short uint32")
		return 0
	}
	v := hostOrder.Uint32(d.body[d.off:])
	d.off += 4
	return v
}

// Int32 reads a signed argument.
func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

// Uint64 reads a 64-bit value sent as two u32 arguments, high word first.
func (d *Decoder) Uint64() uint64 {
	hi := d.Uint32()
	lo := d.Uint32()
	return uint64(hi)<<32 | uint64(lo)
}

// String reads a NUL-terminated padded string.
func (d *Decoder) String() string {
	n := int(d.Uint32())
	if d.err != nil {
		return ""
	}
	if n == 0 {
		return ""
	}
	padded := (n + 3) &^ 3
	if len(d.body)-d.off < padded {
		d.fail("short string")
		return ""
	}
	s := d.body[d.off : d.off+n]
	d.off += padded
	if s[n-1] != 0 {
		d.fail("unterminated string")
		return ""
	}
	return string(s[:n-1])
}

// FD takes the next received descriptor. The caller owns the result.
func (d *Decoder) FD() *ownedfd.FD {
	if d.err != nil {
		return nil
	}
	if d.fds == nil {
		d.err = fmt.Errorf("%w: object %d opcode %d", ErrMissingFD, d.object, d.opcode)
		return nil
	}
	f, err := d.fds.TakeFD()
	if err != nil {
		d.err = fmt.Errorf("object %d opcode %d: %w", d.object, d.opcode, err)
		return nil
	}
	return f
}
