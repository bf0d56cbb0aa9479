// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package surface holds the renderer-facing objects the broker tracks for
// each connection: buffers, frame callbacks and surfaces.
//
// # Surfaces
//
// A Surface moves between two states. In Idle no buffer is attached; in
// Attached one buffer waits for the next commit. Attaching over an attached
// buffer hands the previous one back so the caller can release it.
//
// Frame callbacks requested before a commit are pending. Commit moves them
// to the current list, and DispatchFrameCallbacks resolves the current list
// when the embedder reports that a frame was displayed:
//
//	s.AddFrameCallback(cb)   // pending
//	s.Commit()               // current
//	s.DispatchFrameCallbacks()
//
// Destroying a surface fails every outstanding callback, current ones
// first, each exactly once.
//
// # Buffers
//
// A Buffer carries one of four payloads (see BufferKind): an opaque driver
// buffer, a shared-memory view, a multi-plane dmabuf descriptor or a pool
// entry. Release acknowledges the buffer to the renderer unless it was
// destroyed; destroy listeners let export adapters drop cached state.
//
// # Clients
//
// The export adapter registered for a surface implements Client and any of
// the optional exporter interfaces (BufferExporter, DMABufExporter,
// SharedMemoryExporter, StreamExporter, PoolExporter). The broker checks
// for the interface that matches each imported buffer.
//
// Surface state is not synchronized; it is owned by the broker's loop.
package surface
