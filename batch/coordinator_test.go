package batch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/webimg/webimg/adapters/decoder"
	"github.com/webimg/webimg/adapters/encoder"
	"github.com/webimg/webimg/adapters/storage"
	"github.com/webimg/webimg/codec"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

func newTestCodec() core.Codec {
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(0))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	return codec.New(reg, 0)
}

func newTestCoordinator(t *testing.T, outDir string, opts Options) *Coordinator {
	t.Helper()
	store, err := storage.NewLocal(outDir, 0)
	if err != nil {
		t.Fatal(err)
	}
	opts.OutputDir = outDir
	return New(newTestCodec(), nil, nil, store, nil, nil, nil, opts)
}

func noisePixels(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	state := uint32(0x9e3779b9)
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

func writeNoiseJPEG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, noisePixels(96, 96), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeAlphaPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 20, G: 60, B: 200, A: uint8(x * 5)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunMixedBatch(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	good := filepath.Join(src, "photo.jpg")
	alpha := filepath.Join(src, "badge.png")
	garbage := filepath.Join(src, "broken.jpg")
	empty := filepath.Join(src, "empty.png")
	writeNoiseJPEG(t, good)
	writeAlphaPNG(t, alpha)
	if err := os.WriteFile(garbage, []byte("this is not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCoordinator(t, out, Options{Concurrency: 2, ContinueOnError: true})
	rep, err := c.Run(context.Background(), []string{good, alpha, garbage, empty})
	if err != nil {
		t.Fatal(err)
	}

	if rep.TotalImages != 4 {
		t.Errorf("TotalImages = %d, want 4", rep.TotalImages)
	}
	if rep.SuccessfulConversions != 2 {
		t.Errorf("SuccessfulConversions = %d, want 2", rep.SuccessfulConversions)
	}
	if rep.FailedConversions != 1 {
		t.Errorf("FailedConversions = %d, want 1", rep.FailedConversions)
	}
	if rep.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1", rep.SkippedFiles)
	}

	byPath := map[string]core.OptimizationResult{}
	for _, r := range rep.Results {
		byPath[r.OriginalPath] = r
	}
	if r := byPath[garbage]; r.Status != core.StatusFailed || r.ErrorMessage == "" {
		t.Errorf("garbage file result = %+v, want failed with message", r)
	}
	if r := byPath[empty]; r.Status != core.StatusSkipped {
		t.Errorf("empty file result = %+v, want skipped", r)
	}
	for _, path := range []string{good, alpha} {
		r := byPath[path]
		if r.Status != core.StatusSuccess {
			t.Fatalf("%s: status %s (%s), want success", path, r.Status, r.ErrorMessage)
		}
		if _, err := os.Stat(r.OutputPath); err != nil {
			t.Errorf("%s: output missing: %v", path, err)
		}
		if r.QualityUsed < 1 || r.QualityUsed > 100 {
			t.Errorf("%s: QualityUsed = %d, want within [1, 100]", path, r.QualityUsed)
		}
	}

	// Auto format keeps transparency in PNG, converts the rest to JPEG.
	if got := filepath.Ext(byPath[alpha].OutputPath); got != ".png" {
		t.Errorf("transparent image output ext = %s, want .png", got)
	}
	if got := filepath.Ext(byPath[good].OutputPath); got != ".jpg" {
		t.Errorf("opaque image output ext = %s, want .jpg", got)
	}
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	garbage := filepath.Join(src, "aaa.jpg")
	good := filepath.Join(src, "bbb.jpg")
	if err := os.WriteFile(garbage, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeNoiseJPEG(t, good)

	c := newTestCoordinator(t, out, Options{Concurrency: 1, ContinueOnError: false})
	rep, err := c.Run(context.Background(), []string{garbage, good})
	if err == nil {
		t.Fatal("expected a batch abort error")
	}
	if !apperrors.IsBatchAbort(err) {
		t.Fatalf("error = %v, want BatchAbortError", err)
	}
	if rep == nil {
		t.Fatal("report is nil on abort, want partial results")
	}
	if len(rep.Results) != 1 {
		t.Fatalf("got %d results on abort, want 1 (the failing item): %+v", len(rep.Results), rep.Results)
	}
	if rep.Results[0].OriginalPath != garbage || rep.Results[0].Status != core.StatusFailed {
		t.Errorf("aborting result = %+v", rep.Results[0])
	}
}

func TestRunSkipExisting(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	good := filepath.Join(src, "photo.jpg")
	writeNoiseJPEG(t, good)
	if err := os.WriteFile(filepath.Join(out, "photo.jpg"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCoordinator(t, out, Options{Concurrency: 1, ContinueOnError: true, SkipExisting: true})
	rep, err := c.Run(context.Background(), []string{good})
	if err != nil {
		t.Fatal(err)
	}
	if rep.SkippedFiles != 1 || rep.SuccessfulConversions != 0 {
		t.Errorf("report = %+v, want the existing output skipped", rep)
	}
}

// A Coordinator built from zero-value Options must still process items:
// New fills in the concurrency and minimum-quality defaults.
func TestRunZeroValueOptions(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	good := filepath.Join(src, "photo.jpg")
	writeNoiseJPEG(t, good)

	c := newTestCoordinator(t, out, Options{})
	if c.opts.Concurrency != 4 {
		t.Errorf("default Concurrency = %d, want 4", c.opts.Concurrency)
	}
	if c.opts.MinQuality != 1 {
		t.Errorf("default MinQuality = %d, want 1", c.opts.MinQuality)
	}

	rep, err := c.Run(context.Background(), []string{good})
	if err != nil {
		t.Fatal(err)
	}
	if rep.SuccessfulConversions != 1 {
		t.Fatalf("report = %+v, want one success", rep)
	}
	if r := rep.Results[0]; r.Status != core.StatusSuccess {
		t.Errorf("status = %s (%s), want success", r.Status, r.ErrorMessage)
	}
}

func TestRunEmptyFileList(t *testing.T) {
	c := newTestCoordinator(t, t.TempDir(), Options{})
	_, err := c.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty file list")
	}
}

// The same inputs must fold to the same counts whatever the concurrency.
func TestRunConcurrencyInvariant(t *testing.T) {
	src := t.TempDir()

	var files []string
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		path := filepath.Join(src, name)
		writeNoiseJPEG(t, path)
		files = append(files, path)
	}
	garbage := filepath.Join(src, "d.jpg")
	if err := os.WriteFile(garbage, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	files = append(files, garbage)

	run := func(concurrency int) *core.ProcessingReport {
		c := newTestCoordinator(t, t.TempDir(), Options{Concurrency: concurrency, ContinueOnError: true})
		rep, err := c.Run(context.Background(), files)
		if err != nil {
			t.Fatal(err)
		}
		return rep
	}

	serial := run(1)
	parallel := run(4)

	if serial.SuccessfulConversions != parallel.SuccessfulConversions ||
		serial.FailedConversions != parallel.FailedConversions ||
		serial.SkippedFiles != parallel.SkippedFiles {
		t.Errorf("counts differ across concurrency: serial %+v parallel %+v", serial, parallel)
	}

	statuses := func(rep *core.ProcessingReport) []string {
		var out []string
		for _, r := range rep.Results {
			out = append(out, r.OriginalPath+":"+string(r.Status))
		}
		sort.Strings(out)
		return out
	}
	s, p := statuses(serial), statuses(parallel)
	for i := range s {
		if s[i] != p[i] {
			t.Errorf("per-item status differs: %s vs %s", s[i], p[i])
		}
	}
}

func TestRunTargetFormatOverride(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	alpha := filepath.Join(src, "badge.png")
	writeAlphaPNG(t, alpha)

	c := newTestCoordinator(t, out, Options{Concurrency: 1, ContinueOnError: true, TargetFormat: core.FormatJPEG})
	rep, err := c.Run(context.Background(), []string{alpha})
	if err != nil {
		t.Fatal(err)
	}
	if rep.SuccessfulConversions != 1 {
		t.Fatalf("report = %+v, want one success", rep)
	}
	if got := filepath.Ext(rep.Results[0].OutputPath); got != ".jpg" {
		t.Errorf("output ext = %s, want forced .jpg", got)
	}
}

func TestRunResizeBoundsOutput(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	big := filepath.Join(src, "big.jpg")
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, noisePixels(200, 100), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(big, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCoordinator(t, out, Options{Concurrency: 1, ContinueOnError: true, MaxWidth: 100, MaxHeight: 100})
	rep, err := c.Run(context.Background(), []string{big})
	if err != nil {
		t.Fatal(err)
	}
	if rep.SuccessfulConversions != 1 {
		t.Fatalf("report = %+v, want one success", rep)
	}

	f, err := os.Open(rep.Results[0].OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("output dimensions = %dx%d, want 100x50", cfg.Width, cfg.Height)
	}
}
