// Package viewbackend moves rendered frame buffers from a renderer process
// to an embedding application and tracks them until the embedder hands them
// back.
//
// # Overview
//
// A renderer process draws into buffers it allocates itself (shared memory,
// opaque GPU buffers, multi-plane dmabufs or entries of an embedder-owned
// pool) and commits them on a surface. A broker running inside the
// embedding process receives those commits over a unix socket, converts
// each buffer with the active importer and passes the result to an export
// adapter. The adapter calls back into the embedding application with a
// handle of the kind it asked for and later routes the matching release
// back to the renderer.
//
// # Packages
//
//   - broker: the event loop, renderer connections and the bridge id registry
//   - importer: buffer importers (GPU image, GPU stream, shared memory, pool)
//   - exportable: export adapters and the embedder-facing API
//   - surface: surface state machine, buffer resources and frame callbacks
//   - dmabuf: multi-plane descriptors, validation and the format table
//   - control: the 8-byte record control channel between view and renderer
//   - bridge: renderer-side protocol client and view bridge
//   - relay: renderer-side audio and video-plane side channels
//   - config: YAML configuration
//   - ownedfd: single-owner file descriptors passed between the layers
//
// # Quick Start
//
//	imp := importer.NewSharedMemory()
//	b := broker.New(imp)
//	go b.Run(ctx)
//
//	var view *exportable.Raw
//	view, err := exportable.NewRaw(b, exportable.RawClient{
//	    ExportSharedMemory: func(buf *surface.Buffer) {
//	        present(buf.SharedMemory().Pixels())
//	        view.DispatchReleaseBuffer(buf)
//	        view.DispatchFrameComplete()
//	    },
//	}, 1280, 720)
//
// # Logging
//
// Nothing is logged by default. Call [SetLogger] to route diagnostics to a
// [log/slog] handler.
package viewbackend
