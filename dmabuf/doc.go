// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package dmabuf describes multi-plane DMA buffers shared between the
// renderer and the embedder.
//
// # Descriptors
//
// A buffer is described by Attributes: width, height, a DRM fourcc format
// and up to four planes, each with its own descriptor, offset, stride and
// 64-bit layout modifier. Params collects planes one by one as they arrive
// from the renderer and builds Attributes once the renderer asks for the
// buffer to be created.
//
// # Validation
//
// Validation errors are distinct sentinel values so that callers can tell a
// malformed request (terminate the peer) from an import the driver cannot
// handle (drop the frame):
//
//   - ErrIncomplete, ErrInvalidDimensions, ErrOutOfBounds: malformed layout
//   - ErrModifierMismatch: planes disagree on their modifier
//   - ErrAlreadyUsed, ErrPlaneIndex, ErrPlaneSet: misuse of Params
//
// # Format table
//
// FormatTable publishes the supported format/modifier pairs to renderers
// through a sealed memfd of 16-byte entries.
//
// # Pool entries
//
// PoolEntry is a buffer allocated by the embedder and lent to the renderer
// through the buffer pool protocol.
package dmabuf
