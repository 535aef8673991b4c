// Package analyzer turns raw pixel statistics into an image's derived
// characteristics and a deterministic content classification. The
// classification and strategy rules are pure functions over
// ImageCharacteristics, so they are unit-testable without a codec.
package analyzer

import (
	"context"
	"math"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// EdgeKernel is the fixed 3x3 high-pass kernel used for edge response.
// Both the analyzer and the validator must use this kernel so sharpness
// measurements stay comparable.
var EdgeKernel = [9]float64{-1, -1, -1, -1, 8, -1, -1, -1, -1}

// Normalisation constants. Changing these shifts every downstream quality
// decision and makes compression ratios incomparable across versions.
const (
	colorComplexityNorm = 50.0
	edgeIntensityNorm   = 128.0
	minColorDepthBits   = 6
)

// Analyzer derives ImageCharacteristics and a Classification from codec
// statistics. Stateless; safe for concurrent use.
type Analyzer struct {
	codec core.Codec
}

// New creates an Analyzer backed by the given codec.
func New(c core.Codec) *Analyzer {
	return &Analyzer{codec: c}
}

// Analyze computes the characteristics of a decoded image and classifies it.
// It never partially succeeds: on any statistics failure an analysis error is
// returned and both results are zero.
func (a *Analyzer) Analyze(ctx context.Context, img *core.ImageData) (core.ImageCharacteristics, core.Classification, error) {
	if err := ctx.Err(); err != nil {
		return core.ImageCharacteristics{}, core.Classification{}, apperrors.Wrap(apperrors.CategoryAnalysis, "analyze", err)
	}

	stats, err := a.codec.Statistics(img)
	if err != nil {
		return core.ImageCharacteristics{}, core.Classification{}, apperrors.Wrap(apperrors.CategoryAnalysis, "analyze.stats", err)
	}

	edge, err := a.codec.Convolve(img, EdgeKernel)
	if err != nil {
		return core.ImageCharacteristics{}, core.Classification{}, apperrors.Wrap(apperrors.CategoryAnalysis, "analyze.edges", err)
	}

	ch := Characteristics(img.Meta, stats, edge)
	cls := Classify(ch)
	return ch, cls, nil
}

// Characteristics derives the bounded proxy values from raw statistics.
// Every bounded field is clamped here; downstream consumers rely on that.
func Characteristics(meta core.Metadata, stats core.ImageStats, edge core.ChannelStats) core.ImageCharacteristics {
	colorChannels := stats.Channels
	if len(colorChannels) > 3 {
		colorChannels = colorChannels[:3]
	}

	var stdSum, rangeSum float64
	for _, cs := range colorChannels {
		stdSum += cs.StdDev
		rangeSum += cs.Max - cs.Min
	}
	n := float64(len(colorChannels))
	if n == 0 {
		n = 1
	}

	complexity := core.Clamp(stdSum/n/colorComplexityNorm*100, 0, 100)
	intensity := core.Clamp(edge.Mean/edgeIntensityNorm*100, 0, 100)

	aspect := 1.0
	if meta.Height > 0 && meta.Width > 0 {
		aspect = float64(meta.Width) / float64(meta.Height)
	}

	return core.ImageCharacteristics{
		ColorComplexity:     complexity,
		EdgeIntensity:       intensity,
		HasTransparency:     hasTransparentPixels(meta, stats),
		EffectiveColorDepth: effectiveDepth(rangeSum/n, meta.BitDepth),
		AspectRatio:         aspect,
	}
}

// hasTransparentPixels reports whether any pixel is not fully opaque. The
// channel layout guarantees alpha is the fourth entry when present.
func hasTransparentPixels(meta core.Metadata, stats core.ImageStats) bool {
	if !meta.HasAlpha || len(stats.Channels) < 4 {
		return false
	}
	return stats.Channels[3].Min < 255
}

// effectiveDepth estimates how many bits the image actually uses per channel
// from the average channel value range, clamped to [6, source bit depth].
func effectiveDepth(avgRange float64, sourceBits int) int {
	if sourceBits < minColorDepthBits {
		sourceBits = 8
	}
	bits := 0
	if avgRange > 0 {
		bits = int(math.Ceil(math.Log2(avgRange + 1)))
	}
	if bits < minColorDepthBits {
		bits = minColorDepthBits
	}
	if bits > sourceBits {
		bits = sourceBits
	}
	return bits
}

// Classify derives the content type and compression strategy. Identical
// characteristics always produce an identical classification.
func Classify(ch core.ImageCharacteristics) core.Classification {
	ct := ClassifyContent(ch)
	return core.Classification{
		ContentType: ct,
		Strategy:    SelectStrategy(ct, ch),
	}
}

// ClassifyContent applies the content rules in precedence order: graphic
// signals win over photo signals, and everything else is mixed.
func ClassifyContent(ch core.ImageCharacteristics) core.ContentType {
	if ch.HasTransparency || ch.EdgeIntensity > 70 ||
		(ch.ColorComplexity < 40 && ch.EffectiveColorDepth <= 6) {
		return core.ContentGraphic
	}
	if ch.ColorComplexity > 60 && ch.EdgeIntensity < 40 &&
		!ch.HasTransparency && ch.EffectiveColorDepth >= 8 {
		return core.ContentPhoto
	}
	return core.ContentMixed
}

// SelectStrategy picks the compression tier for a content type.
func SelectStrategy(ct core.ContentType, ch core.ImageCharacteristics) core.Strategy {
	switch ct {
	case core.ContentPhoto:
		if ch.ColorComplexity > 80 {
			return core.StrategyHighQuality
		}
		return core.StrategyBalanced

	case core.ContentGraphic:
		if ch.HasTransparency || ch.EdgeIntensity > 80 {
			return core.StrategyHighQuality
		}
		if ch.ColorComplexity < 30 && ch.EdgeIntensity < 50 {
			return core.StrategySizeOptimized
		}
		return core.StrategyBalanced

	default: // mixed
		if ch.ColorComplexity > 70 || ch.EdgeIntensity > 70 {
			return core.StrategyHighQuality
		}
		return core.StrategyBalanced
	}
}
