// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package importer

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/viewbackend/dmabuf"
)

// Extensions is a set of display capabilities.
type Extensions uint32

const (
	// ExtBindDisplay lets the display import opaque renderer buffers.
	ExtBindDisplay Extensions = 1 << iota

	// ExtImageBase provides image objects; required by ExtBindDisplay.
	ExtImageBase

	// ExtDMABufImport imports single-layout dmabufs.
	ExtDMABufImport

	// ExtDMABufImportModifiers adds explicit layout modifiers.
	ExtDMABufImportModifiers
)

var extensionNames = []struct {
	ext  Extensions
	name string
}{
	{ExtBindDisplay, "bind-display"},
	{ExtImageBase, "image-base"},
	{ExtDMABufImport, "dmabuf-import"},
	{ExtDMABufImportModifiers, "dmabuf-import-modifiers"},
}

// Has reports whether every extension in want is present.
func (e Extensions) Has(want Extensions) bool {
	return e&want == want
}

func (e Extensions) String() string {
	var parts []string
	for _, n := range extensionNames {
		if e.Has(n.ext) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseExtensions converts extension names as printed by String.
func ParseExtensions(names []string) (Extensions, error) {
	var e Extensions
next:
	for _, name := range names {
		for _, n := range extensionNames {
			if n.name == name {
				e |= n.ext
				continue next
			}
		}
		return 0, fmt.Errorf("importer: unknown extension %q", name)
	}
	return e, nil
}

// AllExtensions is every capability GPUImage can use.
const AllExtensions = ExtBindDisplay | ExtImageBase | ExtDMABufImport | ExtDMABufImportModifiers

// Display is the GPU the GPUImage importer creates textures on.
type Display struct {
	Device     hal.Device
	Extensions Extensions

	// Formats lists the dmabuf formats and modifiers the driver imports.
	Formats []dmabuf.FormatSupport
}

// DisplayFromProvider builds a Display from a shared device provider. The
// provider either exposes HalDevice() or returns a hal.Device from Device().
func DisplayFromProvider(p gpucontext.DeviceProvider, ext Extensions, formats []dmabuf.FormatSupport) (*Display, error) {
	if p == nil {
		return nil, ErrNoDevice
	}
	type halProvider interface {
		HalDevice() any
	}
	var device hal.Device
	if hp, ok := p.(halProvider); ok {
		device, _ = hp.HalDevice().(hal.Device)
	}
	if device == nil {
		device, _ = p.Device().(hal.Device)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: provider does not expose a hal.Device", ErrNoDevice)
	}
	return &Display{Device: device, Extensions: ext, Formats: formats}, nil
}
