// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"image/jpeg"
	"io"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG || format == core.FormatUnknown
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "jpeg.decode", err)
	}

	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "jpeg.decode", err)
	}

	return &core.ImageData{
		Image:  img,
		Format: core.FormatJPEG,
		Meta:   metadataFor(img, core.FormatJPEG),
	}, nil
}

// metadataFor derives dimension and channel-layout metadata from a decoded image.
func metadataFor(img image.Image, format core.Format) core.Metadata {
	bounds := img.Bounds()
	return core.Metadata{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Format:     format,
		ColorSpace: colorSpace(img),
		Channels:   channelCount(img),
		BitDepth:   bitDepth(img),
		HasAlpha:   hasAlpha(img),
	}
}

func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	}
	return core.ColorSpaceRGB
}

func channelCount(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return 4
	}
	return 3
}

func bitDepth(img image.Image) int {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return 16
	}
	return 8
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}
