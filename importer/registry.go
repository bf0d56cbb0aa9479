// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package importer

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/viewbackend"
)

// NewRegistry returns a registry holding every importer variant, preferring
// GPU import. The gpu-image entry is only registered when display is
// non-nil; it initializes on creation and, if that fails, reports itself
// as uninitialized.
func NewRegistry(display *Display) *gpucontext.Registry[Importer] {
	r := gpucontext.NewRegistry[Importer](
		gpucontext.WithPriority(NameGPUImage, NameGPUStream, NamePool, NameSharedMemory),
	)
	if display != nil {
		r.Register(NameGPUImage, func() Importer {
			g := NewGPUImage()
			if err := g.Initialize(display); err != nil {
				viewbackend.Logger().Warn("gpu image importer unavailable", "err", err)
			}
			return g
		})
	}
	r.Register(NameGPUStream, func() Importer { return NewStream() })
	r.Register(NamePool, func() Importer { return NewPool() })
	r.Register(NameSharedMemory, func() Importer { return NewSharedMemory() })
	return r
}

// Select creates the named importer, or the best available one when name
// is empty.
func Select(r *gpucontext.Registry[Importer], name string) (Importer, error) {
	if name == "" {
		imp := r.Best()
		if imp == nil {
			return nil, fmt.Errorf("%w: registry is empty", ErrUnknownImporter)
		}
		viewbackend.Logger().Info("importer selected", "importer", imp.Kind().String())
		return imp, nil
	}
	if !r.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImporter, name)
	}
	imp := r.Get(name)
	viewbackend.Logger().Info("importer selected", "importer", imp.Kind().String())
	return imp, nil
}
