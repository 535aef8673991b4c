package utils

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/webimg/webimg/core"
)

// DetectFormat sniffs the leading bytes of data and returns the image format.
func DetectFormat(data []byte) core.Format {
	if len(data) < 4 {
		return core.FormatUnknown
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return core.FormatJPEG
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return core.FormatPNG
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return core.FormatWebP
	}
	// Fallback to net/http sniffing.
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return core.FormatJPEG
	case "image/png":
		return core.FormatPNG
	case "image/webp":
		return core.FormatWebP
	}
	return core.FormatUnknown
}

// FormatForExt maps a file extension (with or without leading dot) to a Format.
func FormatForExt(ext string) core.Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return core.FormatJPEG
	case "png":
		return core.FormatPNG
	case "webp":
		return core.FormatWebP
	}
	return core.FormatUnknown
}

// ExtForFormat returns the canonical file extension for a format, without dot.
func ExtForFormat(f core.Format) string {
	switch f {
	case core.FormatJPEG:
		return "jpg"
	case core.FormatPNG:
		return "png"
	case core.FormatWebP:
		return "webp"
	}
	return "bin"
}

// FormatForPath sniffs the format from a path's extension.
func FormatForPath(path string) core.Format {
	return FormatForExt(filepath.Ext(path))
}

// FitDimensions computes output (w, h) that fit srcW x srcH inside the
// maxW x maxH box, preserving aspect ratio and never upscaling. A zero max
// on either axis leaves that axis unconstrained.
func FitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return srcW, srcH
	}
	scale := 1.0
	if maxW > 0 && srcW > maxW {
		scale = float64(maxW) / float64(srcW)
	}
	if maxH > 0 && float64(srcH)*scale > float64(maxH) {
		scale = float64(maxH) / float64(srcH)
	}
	if scale >= 1.0 {
		return srcW, srcH
	}
	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
