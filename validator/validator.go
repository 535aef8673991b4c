// Package validator scores a produced output against its source image.
// Validation is advisory: comparison failures downgrade metrics to
// conservative defaults instead of failing, so a bad comparison can never
// block a batch. Only unreadable files produce an error.
package validator

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/webimg/webimg/analyzer"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// Conservative metric defaults used when original and produced images cannot
// be compared pixel-wise.
const (
	fallbackStructural = 0.8
	fallbackColor      = 0.85
	fallbackSharpness  = 0.8
	fallbackLoss       = 20.0
)

// Metric weights for the overall quality score.
const (
	weightStructural = 0.4
	weightColor      = 0.3
	weightSharpness  = 0.3
)

const (
	qualityLossLimit = 30.0
	structuralFloor  = 0.8
)

// Options tunes validation thresholds.
type Options struct {
	// MinQualityScore is the score below which MeetsThreshold is false.
	MinQualityScore float64
	// SizeIncreaseLimit flags outputs larger than limit x original size.
	SizeIncreaseLimit float64
}

// DefaultOptions returns production validation thresholds.
func DefaultOptions() Options {
	return Options{
		MinQualityScore:   70,
		SizeIncreaseLimit: 1.2,
	}
}

// Validator compares originals against produced outputs. Stateless; safe for
// concurrent use.
type Validator struct {
	codec core.Codec
	opts  Options
}

// New creates a Validator backed by the given codec.
func New(c core.Codec, opts Options) *Validator {
	if opts.MinQualityScore <= 0 {
		opts.MinQualityScore = DefaultOptions().MinQualityScore
	}
	if opts.SizeIncreaseLimit <= 0 {
		opts.SizeIncreaseLimit = DefaultOptions().SizeIncreaseLimit
	}
	return &Validator{codec: c, opts: opts}
}

// Validate scores producedPath against originalPath. It fails only when
// either file is unreadable on disk.
func (v *Validator) Validate(ctx context.Context, originalPath, producedPath string, qualityUsed int) (core.ValidationResult, error) {
	origInfo, err := os.Stat(originalPath)
	if err != nil {
		return core.ValidationResult{}, apperrors.Wrap(apperrors.CategoryValidation, "validate.original", err)
	}
	prodInfo, err := os.Stat(producedPath)
	if err != nil {
		return core.ValidationResult{}, apperrors.Wrap(apperrors.CategoryValidation, "validate.produced", err)
	}

	structural, color, sharpness, loss, integrity := v.compareImages(ctx, originalPath, producedPath, prodInfo.Size())

	score := core.Clamp(
		100*(weightStructural*structural+weightColor*color+weightSharpness*sharpness)*(float64(qualityUsed)/100),
		0, 100)
	meets := score >= v.opts.MinQualityScore

	res := core.ValidationResult{
		StructuralSimilarity: structural,
		ColorAccuracy:        color,
		SharpnessRetention:   sharpness,
		QualityScore:         score,
		QualityLoss:          loss,
		MeetsThreshold:       meets,
	}

	// Issue order is fixed and load-bearing for report output.
	if origInfo.Size() > 0 && float64(prodInfo.Size()) > v.opts.SizeIncreaseLimit*float64(origInfo.Size()) {
		res.Issues = append(res.Issues, fmt.Sprintf(
			"output is %.1fx the original size (limit %.1fx)",
			float64(prodInfo.Size())/float64(origInfo.Size()), v.opts.SizeIncreaseLimit))
	}
	if !meets {
		res.Issues = append(res.Issues, fmt.Sprintf(
			"quality score %.1f below threshold %.1f", score, v.opts.MinQualityScore))
	}
	if loss > qualityLossLimit {
		res.Issues = append(res.Issues, fmt.Sprintf("quality loss %.1f exceeds %.0f", loss, qualityLossLimit))
	}
	if structural < structuralFloor {
		res.Issues = append(res.Issues, fmt.Sprintf("structural similarity %.2f below %.2f", structural, structuralFloor))
	}
	if integrity != "" {
		res.Issues = append(res.Issues, integrity)
	}

	return res, nil
}

// compareImages computes the three similarity metrics. Any decode or
// statistics failure returns the conservative defaults plus an integrity
// message; it never returns an error.
func (v *Validator) compareImages(ctx context.Context, originalPath, producedPath string, producedSize int64) (structural, color, sharpness, loss float64, integrity string) {
	if producedSize == 0 {
		return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss, "output file is empty"
	}

	orig, err := v.codec.DecodeFile(ctx, originalPath)
	if err != nil {
		return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss,
			fmt.Sprintf("original not comparable: %v", err)
	}
	prod, err := v.codec.DecodeFile(ctx, producedPath)
	if err != nil {
		return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss,
			fmt.Sprintf("output not decodable: %v", err)
	}

	// Compare at matching dimensions.
	if prod.Meta.Width != orig.Meta.Width || prod.Meta.Height != orig.Meta.Height {
		prod, err = v.codec.Resize(ctx, prod, orig.Meta.Width, orig.Meta.Height, core.ResizeOptions{})
		if err != nil {
			return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss,
				fmt.Sprintf("output not comparable: %v", err)
		}
	}

	origStats, err := v.codec.Statistics(orig)
	if err != nil {
		return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss,
			fmt.Sprintf("original statistics failed: %v", err)
	}
	prodStats, err := v.codec.Statistics(prod)
	if err != nil {
		return fallbackStructural, fallbackColor, fallbackSharpness, fallbackLoss,
			fmt.Sprintf("output statistics failed: %v", err)
	}

	structural = structuralSimilarity(origStats, prodStats)
	color = colorAccuracy(origStats, prodStats)
	sharpness = v.sharpnessRetention(orig, prod)
	loss = 100 * (1 - (weightStructural*structural + weightColor*color + weightSharpness*sharpness))
	return structural, color, sharpness, loss, ""
}

// structuralSimilarity compares the greyscale mean and standard deviation of
// the two images, each difference normalised to [0, 1].
func structuralSimilarity(a, b core.ImageStats) float64 {
	meanA, stdA := grayStats(a)
	meanB, stdB := grayStats(b)

	meanDiff := math.Abs(meanA-meanB) / 255
	stdDiff := math.Min(math.Abs(stdA-stdB)/128, 1)
	return core.Clamp(1-(meanDiff+stdDiff)/2, 0, 1)
}

// colorAccuracy averages per-channel mean closeness over all shared channels.
func colorAccuracy(a, b core.ImageStats) float64 {
	n := len(a.Channels)
	if len(b.Channels) < n {
		n = len(b.Channels)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += 1 - math.Abs(a.Channels[i].Mean-b.Channels[i].Mean)/255
	}
	return core.Clamp(sum/float64(n), 0, 1)
}

// sharpnessRetention is the edge-response ratio of produced over original,
// capped at 1. An original with no edge response retains full sharpness by
// definition.
func (v *Validator) sharpnessRetention(orig, prod *core.ImageData) float64 {
	origEdge, err := v.codec.Convolve(orig, analyzer.EdgeKernel)
	if err != nil {
		return fallbackSharpness
	}
	prodEdge, err := v.codec.Convolve(prod, analyzer.EdgeKernel)
	if err != nil {
		return fallbackSharpness
	}
	if origEdge.Mean == 0 {
		return 1.0
	}
	return math.Min(prodEdge.Mean/origEdge.Mean, 1.0)
}

// grayStats derives greyscale mean and stddev proxies from per-channel
// statistics using BT.601 luma weights.
func grayStats(s core.ImageStats) (mean, std float64) {
	if len(s.Channels) < 3 {
		if len(s.Channels) == 1 {
			return s.Channels[0].Mean, s.Channels[0].StdDev
		}
		return 0, 0
	}
	mean = 0.299*s.Channels[0].Mean + 0.587*s.Channels[1].Mean + 0.114*s.Channels[2].Mean
	std = 0.299*s.Channels[0].StdDev + 0.587*s.Channels[1].StdDev + 0.114*s.Channels[2].StdDev
	return mean, std
}
