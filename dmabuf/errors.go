// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import "errors"

// Validation and builder errors.
var (
	// ErrAlreadyUsed is returned when Params is used after it built a buffer.
	ErrAlreadyUsed = errors.New("dmabuf: params already used to create a buffer")

	// ErrPlaneIndex is returned for a plane index of MaxPlanes or more.
	ErrPlaneIndex = errors.New("dmabuf: plane index out of range")

	// ErrPlaneSet is returned when the same plane index is added twice.
	ErrPlaneSet = errors.New("dmabuf: plane already set")

	// ErrIncomplete is returned when no plane was added or a declared plane
	// is missing.
	ErrIncomplete = errors.New("dmabuf: missing plane")

	// ErrInvalidDimensions is returned for a width or height below one.
	ErrInvalidDimensions = errors.New("dmabuf: invalid dimensions")

	// ErrOutOfBounds is returned when plane geometry overflows 32 bits or
	// exceeds the size of the backing file.
	ErrOutOfBounds = errors.New("dmabuf: plane out of bounds")

	// ErrModifierMismatch is returned when a plane's modifier differs from
	// plane 0's.
	ErrModifierMismatch = errors.New("dmabuf: plane modifiers differ")

	// ErrUnsupportedFormat is returned for a fourcc with no texture mapping.
	ErrUnsupportedFormat = errors.New("dmabuf: unsupported format")
)
