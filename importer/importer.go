// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package importer

import (
	"errors"
	"fmt"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/surface"
)

// Errors returned by importers and the registry helpers.
var (
	// ErrNoDevice is returned when a display has no hal.Device.
	ErrNoDevice = errors.New("importer: display has no GPU device")

	// ErrDisplayBound is returned when GPUImage is initialized with a
	// second, different display.
	ErrDisplayBound = errors.New("importer: already bound to another display")

	// ErrMissingExtension is returned when the display lacks an extension
	// needed for an operation.
	ErrMissingExtension = errors.New("importer: missing display extension")

	// ErrWrongKind is returned when a buffer kind does not match the import.
	ErrWrongKind = errors.New("importer: wrong buffer kind")

	// ErrUnknownImporter is returned by Select for an unregistered name.
	ErrUnknownImporter = errors.New("importer: unknown importer")

	// ErrNoPoolExporter is returned when a surface's client cannot
	// allocate pool entries.
	ErrNoPoolExporter = errors.New("importer: client does not allocate pool entries")
)

// Kind identifies an importer variant.
type Kind uint8

const (
	KindGPUImage Kind = iota
	KindGPUStream
	KindSharedMemory
	KindPool
)

// Registry names of the importer variants.
const (
	NameGPUImage     = "gpu-image"
	NameGPUStream    = "gpu-stream"
	NamePool         = "dmabuf-pool"
	NameSharedMemory = "shm"
)

// String returns the registry name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGPUImage:
		return NameGPUImage
	case KindGPUStream:
		return NameGPUStream
	case KindSharedMemory:
		return NameSharedMemory
	case KindPool:
		return NamePool
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ImportedKind tags an Imported value.
type ImportedKind uint8

const (
	// ImportedNone means nothing is exported for this commit.
	ImportedNone ImportedKind = iota
	ImportedOpaque
	ImportedDMABuf
	ImportedSharedMemory
	ImportedStreamProducer
	ImportedStreamFrame
	ImportedPoolEntry
)

func (k ImportedKind) String() string {
	switch k {
	case ImportedNone:
		return "none"
	case ImportedOpaque:
		return "opaque"
	case ImportedDMABuf:
		return "dmabuf"
	case ImportedSharedMemory:
		return "shm"
	case ImportedStreamProducer:
		return "stream-producer"
	case ImportedStreamFrame:
		return "stream-frame"
	case ImportedPoolEntry:
		return "pool-entry"
	default:
		return fmt.Sprintf("ImportedKind(%d)", k)
	}
}

// Imported is the result of a commit. Which fields are set depends on Kind:
// Buffer for every kind except None and StreamFrame, View for SharedMemory,
// Entry for PoolEntry.
type Imported struct {
	Kind   ImportedKind
	Buffer *surface.Buffer
	View   *surface.SHMView
	Entry  *dmabuf.PoolEntry
}

// None is the empty result.
var None = Imported{}

// Importer turns attached buffers into exportable values.
type Importer interface {
	Kind() Kind

	// Initialized reports whether the importer can serve renderers.
	Initialized() bool

	// Attach makes b the surface's attached buffer, releasing any buffer it
	// replaces.
	Attach(s *surface.Surface, b *surface.Buffer)

	// Commit consumes the attached buffer.
	Commit(s *surface.Surface) Imported
}

// attach is the Attach shared by every variant.
func attach(s *surface.Surface, b *surface.Buffer) {
	if prev := s.Attach(b); prev != nil {
		prev.Release()
	}
}

// take detaches the attached buffer if the surface has an export client.
func take(s *surface.Surface) (*surface.Buffer, bool) {
	if s.Client() == nil {
		return nil, false
	}
	return s.TakeAttached(), true
}
