package decoder

import (
	"context"
	"image/png"
	"io"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

// NewPNG returns an initialised PNG decoder.
func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG || format == core.FormatUnknown
}

func (p *PNG) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "png.decode", err)
	}

	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "png.decode", err)
	}

	return &core.ImageData{
		Image:  img,
		Format: core.FormatPNG,
		Meta:   metadataFor(img, core.FormatPNG),
	}, nil
}
