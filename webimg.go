// Package webimg optimizes batches of web images: it classifies each image's
// content, picks an encoder quality per image, re-encodes with bounded
// concurrency, and validates the outputs against their sources.
//
// Typical use:
//
//	cfg := config.Default()
//	cfg.SourceDir = "./images"
//	cfg.OutputDir = "./optimized"
//	opt, err := webimg.New(cfg, nil)
//	if err != nil { ... }
//	defer opt.Close()
//	report, err := opt.Run(ctx)
package webimg

import (
	"context"

	"github.com/webimg/webimg/adapters/decoder"
	"github.com/webimg/webimg/adapters/encoder"
	"github.com/webimg/webimg/adapters/storage"
	"github.com/webimg/webimg/adapters/vips"
	"github.com/webimg/webimg/batch"
	"github.com/webimg/webimg/codec"
	"github.com/webimg/webimg/config"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
	"github.com/webimg/webimg/hooks"
	"github.com/webimg/webimg/validator"
)

// Optimizer is the assembled batch pipeline. Create one with New; it is safe
// to Run repeatedly, one run at a time.
type Optimizer struct {
	cfg         config.Config
	coordinator *batch.Coordinator
	metrics     *hooks.InMemoryMetrics
	transcoder  *vips.Transcoder
	log         core.Logger
}

// Option customises an Optimizer beyond its Config.
type Option func(*options)

type options struct {
	onProgress batch.ProgressFunc
	hooks      []core.Hook
}

// WithProgress registers a progress callback, throttled to roughly one
// update per 100ms.
func WithProgress(fn batch.ProgressFunc) Option {
	return func(o *options) { o.onProgress = fn }
}

// WithHook registers an additional pipeline stage hook.
func WithHook(h core.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// New validates cfg and wires the full pipeline. A nil log falls back to
// slog's default logger.
func New(cfg config.Config, log core.Logger, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = hooks.NewSlogLogger(nil)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(0))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())

	cdc := codec.New(reg, cfg.MaxImageBytes)

	store, err := storage.NewLocal(cfg.OutputDir, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "webimg.new", err)
	}

	val := validator.New(cdc, validator.Options{
		MinQualityScore:   cfg.MinQualityScore,
		SizeIncreaseLimit: cfg.SizeIncreaseLimit,
	})

	var transcoder *vips.Transcoder
	var coreTranscoder core.Transcoder
	if cfg.Backend == config.BackendVips {
		transcoder = vips.NewTranscoder(vips.Config{})
		coreTranscoder = transcoder
	}

	metrics := hooks.NewInMemoryMetrics()
	stageHooks := append([]core.Hook{hooks.NewLoggingHook(log)}, o.hooks...)

	coord := batch.New(cdc, coreTranscoder, val, store, metrics, log, stageHooks, batch.Options{
		OutputDir:        cfg.OutputDir,
		TargetFormat:     cfg.Target(),
		Concurrency:      cfg.Concurrency,
		ContinueOnError:  cfg.ContinueOnError,
		MinQuality:       cfg.MinQuality,
		MinQualityByType: cfg.MinQualityByType,
		MaxWidth:         cfg.MaxWidth,
		MaxHeight:        cfg.MaxHeight,
		SkipExisting:     cfg.SkipExisting,
		OnProgress:       o.onProgress,
	})

	return &Optimizer{
		cfg:         cfg,
		coordinator: coord,
		metrics:     metrics,
		transcoder:  transcoder,
		log:         log,
	}, nil
}

// Run discovers supported images under the configured source directory and
// processes them. On abort the returned report still carries the results of
// every item that ran.
func (o *Optimizer) Run(ctx context.Context) (*core.ProcessingReport, error) {
	files, err := batch.Discover(o.cfg.SourceDir)
	if err != nil {
		return nil, err
	}
	return o.coordinator.Run(ctx, files)
}

// Metrics exposes the per-stage timing aggregates of past runs.
func (o *Optimizer) Metrics() *hooks.InMemoryMetrics { return o.metrics }

// Close releases backend resources. Required when the vips backend is in use.
func (o *Optimizer) Close() {
	if o.transcoder != nil {
		o.transcoder.Shutdown()
	}
}
