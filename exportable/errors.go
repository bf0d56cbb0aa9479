// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package exportable

import "errors"

var (
	// ErrNilBroker is returned when an adapter is created without a broker.
	ErrNilBroker = errors.New("exportable: nil broker")

	// ErrInvalidSize is returned for a zero view width or height.
	ErrInvalidSize = errors.New("exportable: invalid view size")

	// ErrWrongImporter is returned when an adapter needs an importer the
	// broker was not built with.
	ErrWrongImporter = errors.New("exportable: broker importer does not fit this adapter")

	// ErrControlOpen is returned when the control channel was already
	// handed out.
	ErrControlOpen = errors.New("exportable: control channel already open")

	// ErrClosed is returned after the view was closed.
	ErrClosed = errors.New("exportable: view closed")
)
