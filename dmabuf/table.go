// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend/ownedfd"
)

// TableEntrySize is the size of one format table entry:
// u32 format, u32 padding, u64 modifier.
const TableEntrySize = 16

// FormatModifier is one supported format/modifier pair.
type FormatModifier struct {
	Format   uint32
	Modifier uint64
}

// FormatSupport lists the modifiers a driver accepts for one format.
type FormatSupport struct {
	Format    uint32
	Modifiers []uint64
}

// Pairs flattens support into format/modifier pairs. A format without
// modifiers is advertised with ModInvalid.
func Pairs(support []FormatSupport) []FormatModifier {
	var out []FormatModifier
	for _, s := range support {
		if len(s.Modifiers) == 0 {
			out = append(out, FormatModifier{Format: s.Format, Modifier: ModInvalid})
			continue
		}
		for _, m := range s.Modifiers {
			out = append(out, FormatModifier{Format: s.Format, Modifier: m})
		}
	}
	return out
}

// EncodeTable serializes pairs in the format table layout.
func EncodeTable(pairs []FormatModifier) []byte {
	buf := make([]byte, len(pairs)*TableEntrySize)
	for i, p := range pairs {
		e := buf[i*TableEntrySize:]
		binary.NativeEndian.PutUint32(e[0:], p.Format)
		binary.NativeEndian.PutUint64(e[8:], p.Modifier)
	}
	return buf
}

// DecodeTable parses a format table. Trailing partial entries are ignored.
func DecodeTable(b []byte) []FormatModifier {
	n := len(b) / TableEntrySize
	out := make([]FormatModifier, n)
	for i := range out {
		e := b[i*TableEntrySize:]
		out[i] = FormatModifier{
			Format:   binary.NativeEndian.Uint32(e[0:]),
			Modifier: binary.NativeEndian.Uint64(e[8:]),
		}
	}
	return out
}

// FormatTable is a sealed memfd holding the encoded pairs, shared with every
// renderer that asks for feedback.
type FormatTable struct {
	fd      *ownedfd.FD
	size    int
	entries []FormatModifier
}

// NewFormatTable writes pairs to a new memfd.
func NewFormatTable(pairs []FormatModifier) (*FormatTable, error) {
	data := EncodeTable(pairs)
	fd, err := ownedfd.Memfd("viewbackend-format-table", int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("dmabuf: format table: %w", err)
	}
	if len(data) > 0 {
		m, err := unix.Mmap(fd.Raw(), 0, len(data), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			fd.Close()
			return nil, fmt.Errorf("dmabuf: map format table: %w", err)
		}
		copy(m, data)
		if err := unix.Munmap(m); err != nil {
			fd.Close()
			return nil, fmt.Errorf("dmabuf: unmap format table: %w", err)
		}
	}
	return &FormatTable{fd: fd, size: len(data), entries: append([]FormatModifier(nil), pairs...)}, nil
}

// FD returns the table descriptor. The table keeps ownership.
func (t *FormatTable) FD() *ownedfd.FD { return t.fd }

// Size returns the table size in bytes.
func (t *FormatTable) Size() uint32 { return uint32(t.size) }

// Entries returns a copy of the pairs in table order.
func (t *FormatTable) Entries() []FormatModifier {
	return append([]FormatModifier(nil), t.entries...)
}

// Supports reports whether format with modifier is in the table.
// ModInvalid entries accept any modifier.
func (t *FormatTable) Supports(format uint32, modifier uint64) bool {
	for _, e := range t.entries {
		if e.Format != format {
			continue
		}
		if e.Modifier == modifier || e.Modifier == ModInvalid {
			return true
		}
	}
	return false
}

// Close releases the memfd.
func (t *FormatTable) Close() error {
	if t == nil {
		return nil
	}
	return t.fd.Close()
}
