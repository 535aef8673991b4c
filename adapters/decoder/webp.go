package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: golang.org/x/image/webp only supports still-image WebP decoding.
// For animated WebP, enable the libvips transcoder backend instead.
type WebP struct{}

// NewWebP returns an initialised WebP decoder.
func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "webp.decode", err)
	}

	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "webp.decode", err)
	}

	return &core.ImageData{
		Image:  img,
		Format: core.FormatWebP,
		Meta:   metadataFor(img, core.FormatWebP),
	}, nil
}
