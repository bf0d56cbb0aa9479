// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import (
	"github.com/gogpu/viewbackend/broker"
	"github.com/gogpu/viewbackend/importer"
	"github.com/gogpu/viewbackend/surface"
)

// StreamClient receives the two phases of a GPU stream.
type StreamClient struct {
	// ExportProducer is called when the renderer attaches a stream
	// producer buffer.
	ExportProducer func(b *surface.Buffer)
	// FrameReady is called when a frame was pushed into the stream.
	FrameReady func()
}

// Stream forwards GPU stream producers. Frames travel through the stream
// itself, so there is nothing to release.
type Stream struct {
	base
	client StreamClient
}

// NewStream creates a stream adapter. b must use the GPU stream importer.
func NewStream(b *broker.Broker, client StreamClient, width, height uint32) (*Stream, error) {
	if b == nil {
		return nil, ErrNilBroker
	}
	if b.Importer().Kind() != importer.KindGPUStream {
		return nil, ErrWrongImporter
	}
	s := &Stream{client: client}
	if err := s.init(b, s, width, height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) ExportStreamProducer(b *surface.Buffer) {
	if s.client.ExportProducer != nil {
		s.client.ExportProducer(b)
	}
}

func (s *Stream) StreamFrameReady() {
	if s.client.FrameReady != nil {
		s.client.FrameReady()
	}
}

// Close destroys the view.
func (s *Stream) Close() { s.close(nil) }
