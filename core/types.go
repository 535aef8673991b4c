package core

import (
	"math"
	"strings"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceGray ColorSpace = "gray"
)

// ContentType classifies the visual character of an image.
type ContentType string

const (
	ContentPhoto   ContentType = "photo"
	ContentGraphic ContentType = "graphic"
	ContentMixed   ContentType = "mixed"
)

// Strategy is the coarse compression tier chosen for an image.
type Strategy string

const (
	StrategyHighQuality   Strategy = "high_quality"
	StrategyBalanced      Strategy = "balanced"
	StrategySizeOptimized Strategy = "size_optimized"
)

// Status is the terminal state of one optimization item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Metadata holds extracted image information without the full pixel buffer.
type Metadata struct {
	Width       int
	Height      int
	Format      Format
	ColorSpace  ColorSpace
	Channels    int
	BitDepth    int
	HasAlpha    bool
	SizeBytes   int64
	Orientation int // EXIF orientation tag (1-8), 0 when absent
}

// ImageData is the in-memory representation passed between codec operations.
// Data holds encoded bytes; Image holds the decoded pixel buffer when needed.
type ImageData struct {
	// Encoded bytes — non-nil when the image has been encoded or is raw input.
	Data   []byte
	Format Format

	// Decoded pixel buffer — populated by decode steps only when needed.
	// Using image.Image keeps the default backend CGO-free; the libvips
	// transcoder works on Data directly and never populates this field.
	Image interface{} // actual type: image.Image

	// Metadata extracted during decode.
	Meta Metadata

	// Size of the original raw input for compression bookkeeping.
	OriginalSize int64
}

// ChannelStats summarises the value distribution of one colour channel,
// or of a derived signal such as a convolution response.
type ChannelStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// ImageStats holds per-channel statistics in R, G, B (and A when present) order.
type ImageStats struct {
	Channels []ChannelStats
}

// ImageCharacteristics are the derived proxies every downstream decision is
// built on. All bounded fields are clamped to their documented range when the
// struct is produced; consumers may rely on that.
type ImageCharacteristics struct {
	ColorComplexity     float64 // 0-100, mean per-channel stddev normalised by 50
	EdgeIntensity       float64 // 0-100, mean Laplacian response normalised by 128
	HasTransparency     bool
	EffectiveColorDepth int     // bits, clamped to [6, source bit depth]
	AspectRatio         float64 // width/height, > 0
}

// Classification is the deterministic content decision derived from
// ImageCharacteristics. Identical characteristics always yield an identical
// classification.
type Classification struct {
	ContentType ContentType
	Strategy    Strategy
}

// QualityDecision is the encoder quality chosen for one image, with the
// ordered list of rule names that produced it. Reasoning is for audit output
// only and is never machine-parsed.
type QualityDecision struct {
	Quality     int
	Strategy    Strategy
	ContentType ContentType
	Reasoning   []string
}

// ValidationResult scores a produced output against its source.
// All similarity metrics are in [0, 1]; QualityScore is in [0, 100].
type ValidationResult struct {
	StructuralSimilarity float64
	ColorAccuracy        float64
	SharpnessRetention   float64
	QualityScore         float64
	QualityLoss          float64
	MeetsThreshold       bool
	Issues               []string
}

// Valid reports whether validation raised no issues.
func (r *ValidationResult) Valid() bool { return len(r.Issues) == 0 }

// IssueSummary joins all issues for use as an error message.
func (r *ValidationResult) IssueSummary() string { return strings.Join(r.Issues, "; ") }

// OptimizationResult records the terminal outcome of one file. It is created
// by exactly one pipeline invocation and never mutated afterward.
type OptimizationResult struct {
	OriginalPath     string
	OutputPath       string
	OriginalSize     int64
	OutputSize       int64
	CompressionRatio float64 // percent of bytes saved, negative when output grew
	QualityUsed      int
	ContentType      ContentType
	ProcessingTime   time.Duration
	Status           Status
	ErrorMessage     string
}

// ProcessingReport aggregates one batch run. It is produced once by folding
// all item results and is immutable afterward. Results are in completion
// order, which is unspecified for concurrency > 1.
type ProcessingReport struct {
	RunID                   string
	TotalImages             int
	SuccessfulConversions   int
	FailedConversions       int
	SkippedFiles            int
	TotalBytesSaved         int64
	AverageCompressionRatio float64
	TotalTime               time.Duration
	Results                 []OptimizationResult
}

// FoldReport builds a ProcessingReport from item results. Bytes saved and the
// average ratio only consider successful items.
func FoldReport(runID string, results []OptimizationResult, elapsed time.Duration) *ProcessingReport {
	rep := &ProcessingReport{
		RunID:       runID,
		TotalImages: len(results),
		TotalTime:   elapsed,
		Results:     results,
	}
	var ratioSum float64
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			rep.SuccessfulConversions++
			rep.TotalBytesSaved += r.OriginalSize - r.OutputSize
			ratioSum += r.CompressionRatio
		case StatusFailed:
			rep.FailedConversions++
		case StatusSkipped:
			rep.SkippedFiles++
		}
	}
	if rep.SuccessfulConversions > 0 {
		rep.AverageCompressionRatio = ratioSum / float64(rep.SuccessfulConversions)
	}
	return rep
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// SavingsPercent returns the percentage of bytes saved going from in to out.
func SavingsPercent(in, out int64) float64 {
	if in <= 0 {
		return 0
	}
	return (1 - float64(out)/float64(in)) * 100
}
