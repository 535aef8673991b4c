package webimg

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/webimg/webimg/batch"
	"github.com/webimg/webimg/config"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

func noiseJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 96, 96))
	state := uint32(0xdeadbeef)
	next := func() uint8 {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		return uint8(state)
	}
	for y := 0; y < 96; y++ {
		for x := 0; x < 96; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: next(), G: next(), B: next(), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func transparentPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 30, G: 80, B: 180, A: uint8(y * 5)})
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

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SourceDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestOptimizerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	noiseJPEG(t, filepath.Join(cfg.SourceDir, "photo.jpg"))
	transparentPNG(t, filepath.Join(cfg.SourceDir, "badge.png"))

	opt, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	rep, err := opt.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalImages != 2 {
		t.Fatalf("TotalImages = %d, want 2", rep.TotalImages)
	}
	if rep.SuccessfulConversions != 2 {
		for _, r := range rep.Results {
			t.Logf("%s: %s %s", r.OriginalPath, r.Status, r.ErrorMessage)
		}
		t.Fatalf("SuccessfulConversions = %d, want 2", rep.SuccessfulConversions)
	}
	for _, r := range rep.Results {
		if _, err := os.Stat(r.OutputPath); err != nil {
			t.Errorf("output missing for %s: %v", r.OriginalPath, err)
		}
	}

	// The engine recorded work in the metrics collector.
	if opt.Metrics().Stage("decode").Count == 0 {
		t.Error("no decode stage timings recorded")
	}
}

func TestOptimizerContainsBadFile(t *testing.T) {
	cfg := testConfig(t)
	noiseJPEG(t, filepath.Join(cfg.SourceDir, "good.jpg"))
	if err := os.WriteFile(filepath.Join(cfg.SourceDir, "bad.jpg"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	opt, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	rep, err := opt.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.SuccessfulConversions != 1 || rep.FailedConversions != 1 {
		t.Errorf("counts = %d success %d failed, want 1/1",
			rep.SuccessfulConversions, rep.FailedConversions)
	}
}

func TestOptimizerEmptySourceDir(t *testing.T) {
	cfg := testConfig(t)

	opt, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	if _, err := opt.Run(context.Background()); err == nil {
		t.Fatal("expected error for source directory without images")
	}
}

func TestOptimizerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Concurrency = 0

	_, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("error category = %v, want config", err)
	}
}

func TestOptimizerProgressUpdates(t *testing.T) {
	cfg := testConfig(t)
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		noiseJPEG(t, filepath.Join(cfg.SourceDir, name))
	}

	var mu sync.Mutex
	var final batch.ProgressUpdate
	opt, err := New(cfg, nil, WithProgress(func(u batch.ProgressUpdate) {
		mu.Lock()
		final = u
		mu.Unlock()
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	if _, err := opt.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if final.Completed != 3 || final.Percent != 100 {
		t.Errorf("final progress = %d done, %.0f%%, want 3 and 100%%", final.Completed, final.Percent)
	}
}

func TestOptimizerAbortKeepsPartialReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.ContinueOnError = false
	cfg.Concurrency = 1
	if err := os.WriteFile(filepath.Join(cfg.SourceDir, "aaa.jpg"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	noiseJPEG(t, filepath.Join(cfg.SourceDir, "zzz.jpg"))

	opt, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer opt.Close()

	rep, err := opt.Run(context.Background())
	if !apperrors.IsBatchAbort(err) {
		t.Fatalf("error = %v, want batch abort", err)
	}
	if rep == nil || len(rep.Results) == 0 {
		t.Fatal("no partial report on abort")
	}
	if rep.Results[0].Status != core.StatusFailed {
		t.Errorf("first result = %+v, want failed", rep.Results[0])
	}
}
