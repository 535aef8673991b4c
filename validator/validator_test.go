package validator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webimg/webimg/adapters/decoder"
	"github.com/webimg/webimg/adapters/encoder"
	"github.com/webimg/webimg/codec"
	"github.com/webimg/webimg/core"
)

func newCodec() core.Codec {
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(0))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	return codec.New(reg, 0)
}

// gradientImage gives the comparison something with real structure: values
// vary per pixel so statistics are not degenerate.
func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: uint8(((x + y) * 255) / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

// noiseImage is deterministic pseudo-random pixel data. It defeats both PNG
// filtering and JPEG entropy coding, so encoded sizes track pixel count.
func noiseImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := uint32(0x2545f491)
	next := func() uint8 {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		return uint8(state)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: next(), G: next(), B: next(), A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image, q int) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestValidateIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.png")
	writePNG(t, orig, gradientImage(64, 64))

	v := New(newCodec(), DefaultOptions())
	res, err := v.Validate(context.Background(), orig, orig, 90)
	if err != nil {
		t.Fatal(err)
	}

	if res.StructuralSimilarity < 0.99 {
		t.Errorf("StructuralSimilarity = %g, want ~1 for identical files", res.StructuralSimilarity)
	}
	if res.ColorAccuracy < 0.99 {
		t.Errorf("ColorAccuracy = %g, want ~1 for identical files", res.ColorAccuracy)
	}
	if res.SharpnessRetention < 0.99 {
		t.Errorf("SharpnessRetention = %g, want ~1 for identical files", res.SharpnessRetention)
	}
	if math.Abs(res.QualityScore-90) > 1 {
		t.Errorf("QualityScore = %g, want ~90 for perfect metrics at quality 90", res.QualityScore)
	}
	if !res.MeetsThreshold {
		t.Error("MeetsThreshold = false for identical files at quality 90")
	}
	if !res.Valid() {
		t.Errorf("Valid() = false, issues: %v", res.Issues)
	}
}

func TestValidateRecompressedJPEG(t *testing.T) {
	dir := t.TempDir()
	img := gradientImage(96, 96)
	orig := filepath.Join(dir, "orig.jpg")
	prod := filepath.Join(dir, "prod.jpg")
	writeJPEG(t, orig, img, 95)
	writeJPEG(t, prod, img, 75)

	v := New(newCodec(), DefaultOptions())
	res, err := v.Validate(context.Background(), orig, prod, 75)
	if err != nil {
		t.Fatal(err)
	}

	for name, m := range map[string]float64{
		"StructuralSimilarity": res.StructuralSimilarity,
		"ColorAccuracy":        res.ColorAccuracy,
		"SharpnessRetention":   res.SharpnessRetention,
	} {
		if m < 0 || m > 1 {
			t.Errorf("%s = %g, want within [0, 1]", name, m)
		}
	}
	if res.QualityScore < 0 || res.QualityScore > 100 {
		t.Errorf("QualityScore = %g, want within [0, 100]", res.QualityScore)
	}
}

// The score must grow with the quality actually used when the metrics are
// held fixed.
func TestValidateScoreMonotonicInQuality(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.png")
	writePNG(t, orig, gradientImage(64, 64))

	v := New(newCodec(), DefaultOptions())
	ctx := context.Background()

	low, err := v.Validate(ctx, orig, orig, 50)
	if err != nil {
		t.Fatal(err)
	}
	high, err := v.Validate(ctx, orig, orig, 90)
	if err != nil {
		t.Fatal(err)
	}
	if high.QualityScore <= low.QualityScore {
		t.Errorf("score at q=90 (%g) not above score at q=50 (%g)", high.QualityScore, low.QualityScore)
	}
}

func TestValidateUndecodableOutputUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.png")
	prod := filepath.Join(dir, "prod.jpg")
	writePNG(t, orig, gradientImage(32, 32))
	if err := os.WriteFile(prod, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := New(newCodec(), DefaultOptions())
	res, err := v.Validate(context.Background(), orig, prod, 90)
	if err != nil {
		t.Fatal(err)
	}

	if res.StructuralSimilarity != fallbackStructural {
		t.Errorf("StructuralSimilarity = %g, want fallback %g", res.StructuralSimilarity, fallbackStructural)
	}
	if res.ColorAccuracy != fallbackColor {
		t.Errorf("ColorAccuracy = %g, want fallback %g", res.ColorAccuracy, fallbackColor)
	}
	if res.SharpnessRetention != fallbackSharpness {
		t.Errorf("SharpnessRetention = %g, want fallback %g", res.SharpnessRetention, fallbackSharpness)
	}
	if res.QualityLoss != fallbackLoss {
		t.Errorf("QualityLoss = %g, want fallback %g", res.QualityLoss, fallbackLoss)
	}
	if res.Valid() {
		t.Error("Valid() = true, want a file-integrity issue")
	}
	found := false
	for _, issue := range res.Issues {
		if strings.Contains(issue, "not decodable") {
			found = true
		}
	}
	if !found {
		t.Errorf("no integrity issue in %v", res.Issues)
	}
}

func TestValidateEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.png")
	prod := filepath.Join(dir, "prod.png")
	writePNG(t, orig, gradientImage(32, 32))
	if err := os.WriteFile(prod, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	v := New(newCodec(), DefaultOptions())
	res, err := v.Validate(context.Background(), orig, prod, 90)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid() {
		t.Errorf("Valid() = true for empty output, issues: %v", res.Issues)
	}
}

func TestValidateMissingFile(t *testing.T) {
	dir := t.TempDir()
	orig := filepath.Join(dir, "orig.png")
	writePNG(t, orig, gradientImage(16, 16))

	v := New(newCodec(), DefaultOptions())
	if _, err := v.Validate(context.Background(), orig, filepath.Join(dir, "missing.png"), 80); err == nil {
		t.Fatal("expected error for missing produced file")
	}
}

func TestValidateSizeIncreaseIssue(t *testing.T) {
	dir := t.TempDir()
	img := noiseImage(64, 64)
	orig := filepath.Join(dir, "orig.jpg")
	prod := filepath.Join(dir, "prod.png")
	writeJPEG(t, orig, img, 30) // lossy original
	writePNG(t, prod, img)      // lossless noise, far larger

	v := New(newCodec(), DefaultOptions())
	res, err := v.Validate(context.Background(), orig, prod, 90)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issues) == 0 || !strings.Contains(res.Issues[0], "size") {
		t.Errorf("expected the size-increase issue first, got %v", res.Issues)
	}
}

func TestStructuralSimilarityBounds(t *testing.T) {
	flat := core.ImageStats{Channels: []core.ChannelStats{{Mean: 128}, {Mean: 128}, {Mean: 128}}}
	far := core.ImageStats{Channels: []core.ChannelStats{{Mean: 0, StdDev: 128}, {Mean: 0, StdDev: 128}, {Mean: 0, StdDev: 128}}}

	if got := structuralSimilarity(flat, flat); got != 1 {
		t.Errorf("structuralSimilarity(x, x) = %g, want 1", got)
	}
	if got := structuralSimilarity(flat, far); got < 0 || got >= 1 {
		t.Errorf("structuralSimilarity for distant stats = %g, want within [0, 1)", got)
	}
}

func TestColorAccuracy(t *testing.T) {
	a := core.ImageStats{Channels: []core.ChannelStats{{Mean: 100}, {Mean: 100}, {Mean: 100}}}
	b := core.ImageStats{Channels: []core.ChannelStats{{Mean: 100}, {Mean: 100}, {Mean: 100}}}
	if got := colorAccuracy(a, b); got != 1 {
		t.Errorf("colorAccuracy of equal stats = %g, want 1", got)
	}

	c := core.ImageStats{Channels: []core.ChannelStats{{Mean: 355}, {Mean: 100}, {Mean: 100}}}
	if got := colorAccuracy(a, c); math.Abs(got-(2.0/3.0*1+1.0/3.0*0)) > 1e-9 {
		t.Errorf("colorAccuracy = %g, want 2/3", got)
	}
}
