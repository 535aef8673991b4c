package encoder

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// PNG encodes images to PNG. PNG is lossless, so the quality parameter only
// selects the compression effort.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "png.encode", err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryCodec, "png.encode", apperrors.ErrEmptyInput)
	}

	level := png.DefaultCompression
	if quality > 0 && quality < 50 {
		level = png.BestCompression
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, src); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "png.encode", err)
	}
	return buf.Bytes(), nil
}
