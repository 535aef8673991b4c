// Package vips provides an optional libvips-backed transcoder. Unlike the
// CGO-free default codec, it exports genuine WebP and uses shrink-on-load,
// so the full bitmap of a large JPEG is never allocated.
package vips

import (
	"context"
	"fmt"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
	"github.com/webimg/webimg/utils"
)

// Config configures the libvips backend.
type Config struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Transcoder fuses decode, auto-rotate, scale-down, and encode into one
// libvips pass. Safe for concurrent use across goroutines.
type Transcoder struct {
	cfg Config
}

// NewTranscoder initialises libvips and returns a ready Transcoder.
// Call Shutdown() when the process exits.
func NewTranscoder(cfg Config) *Transcoder {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Transcoder{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (t *Transcoder) Shutdown() {
	govips.Shutdown()
}

// Transcode decodes data, applies the EXIF orientation, scales the image down
// to fit maxWidth x maxHeight (0 = unconstrained, never upscales), and encodes
// it to format at the given quality.
func (t *Transcoder) Transcode(ctx context.Context, data []byte, format core.Format, quality, maxWidth, maxHeight int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.transcode", err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryCodec, "vips.transcode", apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.decode", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.auto_rotate", err)
	}

	dstW, dstH := utils.FitDimensions(ref.Width(), ref.Height(), maxWidth, maxHeight)
	if dstW != ref.Width() || dstH != ref.Height() {
		scale := float64(dstW) / float64(ref.Width())
		if err := ref.Resize(scale, govips.KernelLanczos3); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.resize", err)
		}
	}

	if quality <= 0 {
		quality = t.cfg.DefaultQuality
	}

	switch format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err := ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = true
		buf, _, err := ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err := ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryCodec, "vips.encode.webp", err)
		}
		return buf, nil

	default:
		return nil, apperrors.New(apperrors.CategoryCodec, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
}
