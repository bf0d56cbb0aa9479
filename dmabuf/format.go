// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dmabuf

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// FourCC packs four characters into a DRM format code.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// DRM formats understood by the importers.
var (
	FormatARGB8888      = FourCC('A', 'R', '2', '4')
	FormatXRGB8888      = FourCC('X', 'R', '2', '4')
	FormatABGR8888      = FourCC('A', 'B', '2', '4')
	FormatXBGR8888      = FourCC('X', 'B', '2', '4')
	FormatABGR2101010   = FourCC('A', 'B', '3', '0')
	FormatABGR16161616F = FourCC('A', 'B', '4', 'H')
	FormatR8            = FourCC('R', '8', ' ', ' ')
	FormatGR88          = FourCC('G', 'R', '8', '8')
	FormatNV12          = FourCC('N', 'V', '1', '2')
)

// Layout modifiers.
const (
	// ModLinear is the untiled layout.
	ModLinear uint64 = 0

	// ModInvalid marks "no explicit modifier"; the driver picks the layout.
	ModInvalid uint64 = 0x00ffffffffffffff
)

// FormatName renders a fourcc as its four characters.
func FormatName(format uint32) string {
	b := []byte{byte(format), byte(format >> 8), byte(format >> 16), byte(format >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", format)
		}
	}
	return string(b)
}

// textureFormats maps single-plane DRM formats to GPU texture formats.
// DRM names list components from the most significant bit, so ARGB8888 is
// B, G, R, A in memory.
var textureFormats = map[uint32]gputypes.TextureFormat{
	FormatARGB8888:      gputypes.TextureFormatBGRA8Unorm,
	FormatXRGB8888:      gputypes.TextureFormatBGRA8Unorm,
	FormatABGR8888:      gputypes.TextureFormatRGBA8Unorm,
	FormatXBGR8888:      gputypes.TextureFormatRGBA8Unorm,
	FormatABGR2101010:   gputypes.TextureFormatRGB10A2Unorm,
	FormatABGR16161616F: gputypes.TextureFormatRGBA16Float,
	FormatR8:            gputypes.TextureFormatR8Unorm,
	FormatGR88:          gputypes.TextureFormatRG8Unorm,
}

// TextureFormat returns the GPU texture format for a single-plane DRM
// format. Multi-planar YUV formats have no direct equivalent.
func TextureFormat(format uint32) (gputypes.TextureFormat, error) {
	tf, ok := textureFormats[format]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("%w: %s", ErrUnsupportedFormat, FormatName(format))
	}
	return tf, nil
}

// HasAlpha reports whether the format carries an alpha channel.
func HasAlpha(format uint32) bool {
	switch format {
	case FormatARGB8888, FormatABGR8888, FormatABGR2101010, FormatABGR16161616F:
		return true
	}
	return false
}
