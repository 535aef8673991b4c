// Package config holds batch optimizer configuration with environment
// loading and validation. Invalid configuration is a CategoryConfig error,
// which the CLI maps to exit code 2.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// Backend selects the codec implementation.
type Backend string

const (
	BackendNative Backend = "native" // pure-Go decode/encode
	BackendVips   Backend = "vips"   // libvips transcoder fast path
)

// TargetAuto lets the optimizer pick the output format per image.
const TargetAuto = "auto"

// Config is the full configuration of one batch run.
type Config struct {
	SourceDir string
	OutputDir string
	ReportDir string

	// TargetFormat is auto, jpeg, png, or webp.
	TargetFormat string

	Concurrency     int
	ContinueOnError bool
	SkipExisting    bool

	// MinQuality floors the chosen encoder quality; the per-content-type
	// map overrides it where set.
	MinQuality       int
	MinQualityByType map[core.ContentType]int

	// MaxWidth/MaxHeight bound output dimensions; zero means unconstrained.
	MaxWidth  int
	MaxHeight int

	// Validation thresholds.
	MinQualityScore   float64
	SizeIncreaseLimit float64

	ReportFormat  string // json or text
	Backend       Backend
	MaxImageBytes int64
	LogLevel      string
}

// Default returns the production defaults. SourceDir and OutputDir must be
// filled in by the caller.
func Default() Config {
	return Config{
		TargetFormat:      TargetAuto,
		Concurrency:       4,
		ContinueOnError:   true,
		MinQuality:        50,
		MinQualityByType:  map[core.ContentType]int{},
		MinQualityScore:   70,
		SizeIncreaseLimit: 1.2,
		ReportFormat:      "json",
		Backend:           BackendNative,
		MaxImageBytes:     128 << 20,
		LogLevel:          "info",
	}
}

// Validate checks invariants. Every violation is a configuration error.
func (c *Config) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return apperrors.Wrap(apperrors.CategoryConfig, "config.validate", fmt.Errorf(format, args...))
	}

	if c.SourceDir == "" {
		return fail("source directory is required")
	}
	if info, err := os.Stat(c.SourceDir); err != nil || !info.IsDir() {
		return fail("source directory %q does not exist", c.SourceDir)
	}
	if c.OutputDir == "" {
		return fail("output directory is required")
	}
	switch c.TargetFormat {
	case TargetAuto, "jpeg", "jpg", "png":
	case "webp":
		// No pure-Go WebP encoder exists; only libvips can export WebP.
		if c.Backend != BackendVips {
			return fail("webp output requires the vips backend")
		}
	default:
		return fail("unknown target format %q", c.TargetFormat)
	}
	if c.Concurrency < 1 {
		return fail("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MinQuality < 1 || c.MinQuality > 100 {
		return fail("minimum quality must be between 1 and 100, got %d", c.MinQuality)
	}
	for ct, q := range c.MinQualityByType {
		if q < 1 || q > 100 {
			return fail("minimum quality for %s must be between 1 and 100, got %d", ct, q)
		}
	}
	if c.MaxWidth < 0 || c.MaxHeight < 0 {
		return fail("max dimensions must not be negative")
	}
	if c.MinQualityScore < 0 || c.MinQualityScore > 100 {
		return fail("quality score threshold must be between 0 and 100, got %g", c.MinQualityScore)
	}
	if c.SizeIncreaseLimit <= 0 {
		return fail("size increase limit must be positive, got %g", c.SizeIncreaseLimit)
	}
	switch c.ReportFormat {
	case "json", "text", "":
	default:
		return fail("unknown report format %q", c.ReportFormat)
	}
	switch c.Backend {
	case BackendNative, BackendVips:
	default:
		return fail("unknown backend %q", c.Backend)
	}
	return nil
}

// Target returns the configured output format, or FormatUnknown for auto.
func (c *Config) Target() core.Format {
	switch c.TargetFormat {
	case "jpeg", "jpg":
		return core.FormatJPEG
	case "png":
		return core.FormatPNG
	case "webp":
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

// FromEnv layers WEBIMG_-prefixed environment variables over the defaults.
// A .env file in the working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.SourceDir = envStr("WEBIMG_SOURCE_DIR", cfg.SourceDir)
	cfg.OutputDir = envStr("WEBIMG_OUTPUT_DIR", cfg.OutputDir)
	cfg.ReportDir = envStr("WEBIMG_REPORT_DIR", cfg.ReportDir)
	cfg.TargetFormat = envStr("WEBIMG_TARGET_FORMAT", cfg.TargetFormat)
	cfg.Concurrency = envInt("WEBIMG_CONCURRENCY", cfg.Concurrency)
	cfg.ContinueOnError = envBool("WEBIMG_CONTINUE_ON_ERROR", cfg.ContinueOnError)
	cfg.SkipExisting = envBool("WEBIMG_SKIP_EXISTING", cfg.SkipExisting)
	cfg.MinQuality = envInt("WEBIMG_MIN_QUALITY", cfg.MinQuality)
	cfg.MaxWidth = envInt("WEBIMG_MAX_WIDTH", cfg.MaxWidth)
	cfg.MaxHeight = envInt("WEBIMG_MAX_HEIGHT", cfg.MaxHeight)
	cfg.MinQualityScore = envFloat("WEBIMG_MIN_QUALITY_SCORE", cfg.MinQualityScore)
	cfg.SizeIncreaseLimit = envFloat("WEBIMG_SIZE_INCREASE_LIMIT", cfg.SizeIncreaseLimit)
	cfg.ReportFormat = envStr("WEBIMG_REPORT_FORMAT", cfg.ReportFormat)
	cfg.Backend = Backend(envStr("WEBIMG_BACKEND", string(cfg.Backend)))
	cfg.MaxImageBytes = int64(envInt("WEBIMG_MAX_IMAGE_BYTES", int(cfg.MaxImageBytes)))
	cfg.LogLevel = envStr("WEBIMG_LOG_LEVEL", cfg.LogLevel)

	for _, ct := range []core.ContentType{core.ContentPhoto, core.ContentGraphic, core.ContentMixed} {
		key := "WEBIMG_MIN_QUALITY_" + strings.ToUpper(string(ct))
		if v, ok := os.LookupEnv(key); ok {
			if q, err := strconv.Atoi(v); err == nil {
				cfg.MinQualityByType[ct] = q
			}
		}
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
