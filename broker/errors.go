package broker

import "errors"

var (
	// ErrNotInitialized is returned by CreateClient while the importer
	// cannot serve renderers.
	ErrNotInitialized = errors.New("broker: importer not initialized")

	// ErrClosed is returned after the broker stopped.
	ErrClosed = errors.New("broker: closed")
)
