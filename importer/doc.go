// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package importer converts committed renderer buffers into values the
// export adapters can hand to the embedder.
//
// One Importer is active per broker. It is chosen once, at construction,
// from a gpucontext.Registry by name or by priority:
//
//	reg := importer.NewRegistry(display)
//	imp, err := importer.Select(reg, "") // best available
//
// The variants are:
//
//   - GPUImage ("gpu-image"): turns driver buffers and dmabufs into GPU
//     textures through a hal.Device.
//   - Stream ("gpu-stream"): forwards stream producers and frame-ready
//     signals.
//   - SharedMemory ("shm"): forwards mapped pixel buffers.
//   - Pool ("dmabuf-pool"): forwards embedder-allocated pool entries.
//
// Every variant follows the same rules. Attaching over an uncommitted
// buffer releases the old one. Committing a surface that has no export
// client is a no-op that leaves the buffer attached.
package importer
