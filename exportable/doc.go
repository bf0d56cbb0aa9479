// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package exportable is the embedder-facing side of a view.
//
// Each adapter (Raw, LegacyImage, Image, SharedMemory, Pool, Stream) owns a
// ViewBackend, the host end of the control channel, and receives the
// buffers a renderer commits on the surface the view is bound to. Buffers
// reach the embedder through the callbacks of the adapter's client struct.
// Nil callbacks are never invoked; a buffer without a taker is released
// straight back to the renderer.
//
// Export callbacks run on the broker loop. DispatchFrameComplete and the
// DispatchRelease methods may be called from any goroutine: they post to
// the loop and return. Releasing a handle twice is a no-op.
//
// When the broker has a lease timeout, handles held past it are reclaimed
// as if the embedder had released them, and a warning is logged.
package exportable
