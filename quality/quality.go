// Package quality converts a content classification and measured image
// characteristics into a bounded encoder quality value with an auditable
// reasoning trail.
package quality

import (
	"fmt"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// Quality bounds applied after all adjustments, before the minimum floor.
const (
	floorQuality = 50
	ceilQuality  = 95
)

// baseMatrix holds the starting quality per (content type, strategy) pair.
var baseMatrix = map[core.ContentType]map[core.Strategy]int{
	core.ContentPhoto: {
		core.StrategyHighQuality:   92,
		core.StrategyBalanced:      88,
		core.StrategySizeOptimized: 82,
	},
	core.ContentGraphic: {
		core.StrategyHighQuality:   90,
		core.StrategyBalanced:      85,
		core.StrategySizeOptimized: 78,
	},
	core.ContentMixed: {
		core.StrategyHighQuality:   90,
		core.StrategyBalanced:      86,
		core.StrategySizeOptimized: 80,
	},
}

// Decide computes the encoder quality for one image. Pure function: identical
// inputs always produce the same quality and reasoning. minimumQuality outside
// [1, 100] is a configuration error.
func Decide(ct core.ContentType, strategy core.Strategy, ch core.ImageCharacteristics, minimumQuality int) (core.QualityDecision, error) {
	if minimumQuality < 1 || minimumQuality > 100 {
		return core.QualityDecision{}, apperrors.New(apperrors.CategoryConfig, "quality.decide", apperrors.ErrQualityOutOfRange)
	}

	q := baseQuality(ct, strategy)
	reasoning := []string{fmt.Sprintf("%s content, %s strategy", ct, strategy)}

	apply := func(delta int, label string) {
		q += delta
		reasoning = append(reasoning, label)
	}

	// Adjustments are additive and evaluated in this fixed order; each fires
	// independently of the others.
	switch {
	case ch.ColorComplexity > 80:
		apply(+3, "high color complexity")
	case ch.ColorComplexity < 30:
		apply(-2, "low color complexity")
	}

	switch {
	case ch.EdgeIntensity > 70:
		apply(+2, "strong edges")
	case ch.EdgeIntensity < 30:
		apply(-1, "soft edges")
	}

	if ch.HasTransparency {
		apply(+2, "transparency present")
	}

	switch {
	case ch.EffectiveColorDepth >= 10:
		apply(+2, "deep color")
	case ch.EffectiveColorDepth <= 6:
		apply(-1, "shallow color")
	}

	if ch.AspectRatio > 3 || ch.AspectRatio < 0.33 {
		apply(+1, "extreme aspect ratio")
	}

	// Content-specific fine-tuning.
	switch ct {
	case core.ContentPhoto:
		if ch.EdgeIntensity < 25 {
			apply(-1, "smooth photo")
		}
	case core.ContentGraphic:
		if ch.ColorComplexity > 60 {
			apply(+2, "colorful graphic")
		}
	case core.ContentMixed:
		if ch.ColorComplexity > 70 && ch.EdgeIntensity > 60 {
			apply(+1, "busy mixed content")
		}
	}

	if q < floorQuality {
		q = floorQuality
	}
	if q > ceilQuality {
		q = ceilQuality
	}
	if q < minimumQuality {
		q = minimumQuality
		reasoning = append(reasoning, "minimum threshold enforced")
	}

	return core.QualityDecision{
		Quality:     q,
		Strategy:    strategy,
		ContentType: ct,
		Reasoning:   reasoning,
	}, nil
}

func baseQuality(ct core.ContentType, strategy core.Strategy) int {
	if row, ok := baseMatrix[ct]; ok {
		if q, ok := row[strategy]; ok {
			return q
		}
	}
	// Unknown combinations fall back to the mixed/balanced cell.
	return baseMatrix[core.ContentMixed][core.StrategyBalanced]
}
