// Package codec implements the Codec capability on top of the format
// registry: metadata extraction, per-channel statistics, 3x3 convolution,
// resize, and encode. All operations are stateless and safe for concurrent
// use across pipeline workers.
package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register formats for image.DecodeConfig
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/webimg/webimg/adapters/decoder"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
	"github.com/webimg/webimg/utils"
)

// Default is the CGO-free codec backed by the decoder/encoder registry.
type Default struct {
	reg      core.Registry
	maxBytes int64
}

// New creates a Default codec. maxBytes bounds how large a source file may
// be read into memory; 0 disables the limit.
func New(reg core.Registry, maxBytes int64) *Default {
	return &Default{reg: reg, maxBytes: maxBytes}
}

// DecodeFile reads and fully decodes the image at path.
func (c *Default) DecodeFile(ctx context.Context, path string) (*core.ImageData, error) {
	raw, err := utils.ReadFileLimited(ctx, path, c.maxBytes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "codec.read", err)
	}
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryCodec, "codec.read", apperrors.ErrEmptyInput)
	}

	format := utils.DetectFormat(raw)
	dec, ok := c.reg.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryCodec, "codec.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}

	img, err := dec.Decode(ctx, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	img.Data = raw
	img.OriginalSize = int64(len(raw))
	img.Meta.SizeBytes = int64(len(raw))
	if format == core.FormatJPEG {
		img.Meta.Orientation = decoder.Orientation(raw)
		autoOrient(img)
	}
	return img, nil
}

// autoOrient rotates and flips the decoded pixels so EXIF-oriented JPEGs
// come out upright. Encoders never write the orientation tag back, so the
// pixel data has to carry the rotation itself.
func autoOrient(img *core.ImageData) {
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return
	}
	var out image.Image
	switch img.Meta.Orientation {
	case 2:
		out = imaging.FlipH(src)
	case 3:
		out = imaging.Rotate180(src)
	case 4:
		out = imaging.FlipV(src)
	case 5:
		out = imaging.Transpose(src)
	case 6:
		out = imaging.Rotate270(src)
	case 7:
		out = imaging.Transverse(src)
	case 8:
		out = imaging.Rotate90(src)
	default:
		return
	}
	img.Image = out
	img.Meta.Width = out.Bounds().Dx()
	img.Meta.Height = out.Bounds().Dy()
	img.Meta.Orientation = 1
}

// DecodeMetadata extracts dimensions, channel layout, and orientation without
// retaining a pixel buffer.
func (c *Default) DecodeMetadata(ctx context.Context, path string) (core.Metadata, error) {
	raw, err := utils.ReadFileLimited(ctx, path, c.maxBytes)
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryCodec, "codec.metadata", err)
	}
	if len(raw) == 0 {
		return core.Metadata{}, apperrors.New(apperrors.CategoryCodec, "codec.metadata", apperrors.ErrEmptyInput)
	}

	format := utils.DetectFormat(raw)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryCodec, "codec.metadata", err)
	}

	meta := core.Metadata{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		SizeBytes: int64(len(raw)),
	}
	meta.ColorSpace, meta.Channels, meta.BitDepth, meta.HasAlpha = describeModel(cfg)
	if format == core.FormatJPEG {
		meta.Orientation = decoder.Orientation(raw)
	}
	return meta, nil
}

// Statistics computes per-channel mean/stddev/min/max over the decoded
// pixels. Channels are R, G, B, plus A when the image carries alpha.
func (c *Default) Statistics(img *core.ImageData) (core.ImageStats, error) {
	src, err := pixelImage(img)
	if err != nil {
		return core.ImageStats{}, err
	}

	nrgba := imaging.Clone(src)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return core.ImageStats{}, apperrors.New(apperrors.CategoryCodec, "codec.stats", apperrors.ErrInvalidDimensions)
	}

	channels := 3
	if img.Meta.HasAlpha {
		channels = 4
	}

	sums := make([]float64, channels)
	sqSums := make([]float64, channels)
	mins := make([]float64, channels)
	maxs := make([]float64, channels)
	for i := range mins {
		mins[i] = 255
	}

	for y := 0; y < h; y++ {
		off := y * nrgba.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			for ch := 0; ch < channels; ch++ {
				v := float64(nrgba.Pix[i+ch])
				sums[ch] += v
				sqSums[ch] += v * v
				if v < mins[ch] {
					mins[ch] = v
				}
				if v > maxs[ch] {
					maxs[ch] = v
				}
			}
		}
	}

	n := float64(w * h)
	stats := core.ImageStats{Channels: make([]core.ChannelStats, channels)}
	for ch := 0; ch < channels; ch++ {
		mean := sums[ch] / n
		variance := sqSums[ch]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		stats.Channels[ch] = core.ChannelStats{
			Mean:   mean,
			StdDev: math.Sqrt(variance),
			Min:    mins[ch],
			Max:    maxs[ch],
		}
	}
	return stats, nil
}

// Convolve applies a 3x3 kernel to a greyscale derivative of img and returns
// statistics of the absolute response over interior pixels.
func (c *Default) Convolve(img *core.ImageData, kernel [9]float64) (core.ChannelStats, error) {
	src, err := pixelImage(img)
	if err != nil {
		return core.ChannelStats{}, err
	}

	gray := imaging.Grayscale(imaging.Clone(src))
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w < 3 || h < 3 {
		// Too small for a 3x3 window; treat as a flat response.
		return core.ChannelStats{}, nil
	}

	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		off := y * gray.Stride
		for x := 0; x < w; x++ {
			lum[y*w+x] = float64(gray.Pix[off+x*4])
		}
	}

	var sum, sqSum float64
	min := math.MaxFloat64
	max := 0.0
	count := 0

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var resp float64
			ki := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					resp += kernel[ki] * lum[(y+dy)*w+(x+dx)]
					ki++
				}
			}
			resp = math.Abs(resp)
			sum += resp
			sqSum += resp * resp
			if resp < min {
				min = resp
			}
			if resp > max {
				max = resp
			}
			count++
		}
	}

	n := float64(count)
	mean := sum / n
	variance := sqSum/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return core.ChannelStats{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    min,
		Max:    max,
	}, nil
}

// Resize scales img to the given bounds using Lanczos resampling. With
// PreserveAspect the target box is a maximum; with NoUpscale images already
// inside the box are returned unchanged.
func (c *Default) Resize(ctx context.Context, img *core.ImageData, width, height int, opts core.ResizeOptions) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryCodec, "codec.resize", err)
	}
	src, err := pixelImage(img)
	if err != nil {
		return nil, err
	}

	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()
	dstW, dstH := width, height
	if opts.PreserveAspect {
		dstW, dstH = utils.FitDimensions(srcW, srcH, width, height)
	}
	if opts.NoUpscale && dstW >= srcW && dstH >= srcH {
		return img, nil
	}
	if dstW == srcW && dstH == srcH {
		return img, nil
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryCodec, "codec.resize", apperrors.ErrInvalidDimensions)
	}

	dst := imaging.Resize(src, dstW, dstH, imaging.Lanczos)

	out := *img
	out.Image = dst
	out.Meta.Width = dstW
	out.Meta.Height = dstH
	return &out, nil
}

// Encode serialises img to the target format at the given quality.
func (c *Default) Encode(ctx context.Context, img *core.ImageData, format core.Format, quality int) ([]byte, error) {
	enc, ok := c.reg.EncoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryCodec, "codec.encode",
			fmt.Errorf("%w: %s (can encode: %v)", apperrors.ErrUnsupportedFormat, format, c.reg.EncodableFormats()))
	}
	return enc.Encode(ctx, img, quality)
}

// pixelImage extracts the decoded image.Image from an ImageData.
func pixelImage(img *core.ImageData) (image.Image, error) {
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryCodec, "codec.pixels", apperrors.ErrEmptyInput)
	}
	return src, nil
}

// describeModel maps an image.Config colour model to colour space, channel
// count, bit depth, and alpha presence.
func describeModel(cfg image.Config) (core.ColorSpace, int, int, bool) {
	switch cfg.ColorModel {
	case color.GrayModel:
		return core.ColorSpaceGray, 1, 8, false
	case color.Gray16Model:
		return core.ColorSpaceGray, 1, 16, false
	case color.NRGBAModel, color.RGBAModel:
		return core.ColorSpaceRGBA, 4, 8, true
	case color.NRGBA64Model, color.RGBA64Model:
		return core.ColorSpaceRGBA, 4, 16, true
	case color.YCbCrModel:
		return core.ColorSpaceRGB, 3, 8, false
	}
	if _, ok := cfg.ColorModel.(color.Palette); ok {
		return core.ColorSpaceRGBA, 4, 8, true
	}
	return core.ColorSpaceRGB, 3, 8, false
}
