// Package batch runs the optimization pipeline over a set of files with
// bounded concurrency. Failures are contained per item: one bad file never
// takes down the run unless continue-on-error is disabled.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/webimg/webimg/analyzer"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
	"github.com/webimg/webimg/quality"
	"github.com/webimg/webimg/validator"
)

// Pipeline stage names used for hooks and metrics.
const (
	StageDecode   = "decode"
	StageAnalyze  = "analyze"
	StageEncode   = "encode"
	StageStore    = "store"
	StageValidate = "validate"
)

// Options configures a batch run.
type Options struct {
	// OutputDir is where outputs land; used for reporting and validation
	// paths. The storage adapter must be rooted here.
	OutputDir string

	// TargetFormat for all outputs. FormatUnknown means auto: images with
	// transparency stay PNG, everything else becomes JPEG.
	TargetFormat core.Format

	// Concurrency bounds in-flight items. Defaults to 4.
	Concurrency int

	// ContinueOnError keeps the batch going past failed items. When false
	// the first failure stops scheduling and Run returns a BatchAbortError
	// alongside the partial report.
	ContinueOnError bool

	// MinQuality floors the chosen encoder quality. MinQualityByType
	// overrides it per content type.
	MinQuality       int
	MinQualityByType map[core.ContentType]int

	// MaxWidth/MaxHeight bound output dimensions; zero means unconstrained.
	// Images are only ever scaled down.
	MaxWidth  int
	MaxHeight int

	// SkipExisting marks items whose output already exists as skipped.
	SkipExisting bool

	// OnProgress receives throttled progress updates.
	OnProgress       ProgressFunc
	ProgressInterval time.Duration
}

// Coordinator schedules items, contains their failures, and folds their
// outcomes into a ProcessingReport.
type Coordinator struct {
	codec      core.Codec
	analyze    *analyzer.Analyzer
	transcoder core.Transcoder // optional fast path, may be nil
	validator  *validator.Validator
	store      core.StorageAdapter
	metrics    core.MetricsCollector
	log        core.Logger
	hooks      []core.Hook
	opts       Options
}

// New creates a Coordinator. transcoder, metrics, log, and hooks may be nil.
func New(c core.Codec, transcoder core.Transcoder, v *validator.Validator, store core.StorageAdapter, metrics core.MetricsCollector, log core.Logger, hooks []core.Hook, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = 1
	}
	return &Coordinator{
		codec:      c,
		analyze:    analyzer.New(c),
		transcoder: transcoder,
		validator:  v,
		store:      store,
		metrics:    metrics,
		log:        log,
		hooks:      hooks,
		opts:       opts,
	}
}

// Run processes files and returns the folded report. The report is non-nil
// whenever any item ran, including on abort: callers get partial results
// together with the BatchAbortError.
func (c *Coordinator) Run(ctx context.Context, files []string) (*core.ProcessingReport, error) {
	if len(files) == 0 {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "batch.run", apperrors.ErrNoSupportedFiles)
	}

	started := time.Now()
	runID := uuid.NewString()
	if c.log != nil {
		c.log.Info("batch started", "run_id", runID, "files", len(files), "concurrency", c.opts.Concurrency)
	}

	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	tracker := newProgressTracker(len(files), c.opts.OnProgress, c.opts.ProgressInterval)
	names := newNamer()

	var (
		mu      sync.Mutex
		results []core.OptimizationResult
		abort   *apperrors.BatchAbortError
		wg      sync.WaitGroup
	)
	aborted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return abort != nil
	}

	for _, path := range files {
		if aborted() || ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		// Re-check after the permit wait: an item that failed while we were
		// blocked must stop further scheduling.
		if aborted() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			res := c.processOne(ctx, path, names)

			mu.Lock()
			results = append(results, res)
			if res.Status == core.StatusFailed && !c.opts.ContinueOnError && abort == nil {
				abort = &apperrors.BatchAbortError{Path: res.OriginalPath, Message: res.ErrorMessage}
			}
			mu.Unlock()

			tracker.record(path, statusOf(res), res.OriginalSize, res.OutputSize, res.ProcessingTime)
		}(path)
	}
	wg.Wait()

	report := core.FoldReport(runID, results, time.Since(started))
	if c.log != nil {
		c.log.Info("batch finished",
			"run_id", runID,
			"succeeded", report.SuccessfulConversions,
			"failed", report.FailedConversions,
			"skipped", report.SkippedFiles,
			"bytes_saved", report.TotalBytesSaved,
			"elapsed", report.TotalTime)
	}
	if abort != nil {
		return report, abort
	}
	if err := ctx.Err(); err != nil {
		return report, apperrors.Wrap(apperrors.CategoryBatch, "batch.run", err)
	}
	return report, nil
}

// processOne runs the full item pipeline for one file. It never returns an
// error: every outcome, including a panic, folds into the result's status.
func (c *Coordinator) processOne(ctx context.Context, path string, names *namer) (res core.OptimizationResult) {
	started := time.Now()
	res = core.OptimizationResult{OriginalPath: path}
	defer func() {
		if r := recover(); r != nil {
			res.Status = core.StatusFailed
			res.ErrorMessage = fmt.Sprintf("panic: %v", r)
			if c.log != nil {
				c.log.Error("item panicked", "path", path, "panic", r)
			}
		}
		res.ProcessingTime = time.Since(started)
	}()

	info, err := os.Stat(path)
	if err != nil {
		return c.failed(res, StageDecode, err)
	}
	res.OriginalSize = info.Size()
	if info.Size() == 0 {
		res.Status = core.StatusSkipped
		res.ErrorMessage = "empty file"
		return res
	}

	var img *core.ImageData
	err = c.runStage(ctx, StageDecode, path, func() error {
		var derr error
		img, derr = c.codec.DecodeFile(ctx, path)
		return derr
	})
	if err != nil {
		return c.failed(res, StageDecode, err)
	}

	var (
		ch core.ImageCharacteristics
		cl core.Classification
	)
	err = c.runStage(ctx, StageAnalyze, path, func() error {
		var aerr error
		ch, cl, aerr = c.analyze.Analyze(ctx, img)
		return aerr
	})
	if err != nil {
		return c.failed(res, StageAnalyze, err)
	}
	res.ContentType = cl.ContentType

	target := c.resolveFormat(ch)
	name := names.nameFor(path, target)
	res.OutputPath = filepath.Join(c.opts.OutputDir, name)

	if c.opts.SkipExisting {
		exists, eerr := c.store.Exists(ctx, name)
		if eerr == nil && exists {
			res.Status = core.StatusSkipped
			res.ErrorMessage = "output already exists"
			return res
		}
	}

	decision, err := quality.Decide(cl.ContentType, cl.Strategy, ch, c.minQualityFor(cl.ContentType))
	if err != nil {
		return c.failed(res, StageAnalyze, err)
	}
	res.QualityUsed = decision.Quality
	if c.log != nil {
		c.log.Debug("quality decided",
			"path", path,
			"content_type", cl.ContentType,
			"strategy", cl.Strategy,
			"quality", decision.Quality,
			"reasoning", decision.Reasoning)
	}

	var encoded []byte
	err = c.runStage(ctx, StageEncode, path, func() error {
		var eerr error
		encoded, eerr = c.encode(ctx, img, target, decision.Quality)
		return eerr
	})
	if err != nil {
		return c.failed(res, StageEncode, err)
	}
	res.OutputSize = int64(len(encoded))
	res.CompressionRatio = core.SavingsPercent(res.OriginalSize, res.OutputSize)

	err = c.runStage(ctx, StageStore, path, func() error {
		return c.store.Put(ctx, name, encoded)
	})
	if err != nil {
		return c.failed(res, StageStore, err)
	}
	if c.metrics != nil {
		c.metrics.RecordThroughput(res.OriginalSize)
	}

	if c.validator != nil {
		var vres core.ValidationResult
		err = c.runStage(ctx, StageValidate, path, func() error {
			var verr error
			vres, verr = c.validator.Validate(ctx, path, res.OutputPath, decision.Quality)
			return verr
		})
		if err != nil {
			return c.failed(res, StageValidate, err)
		}
		if !vres.Valid() {
			// The output file stays on disk for inspection; only the
			// item's status flips.
			res.Status = core.StatusFailed
			res.ErrorMessage = "validation failed: " + vres.IssueSummary()
			return res
		}
	}

	res.Status = core.StatusSuccess
	return res
}

// encode produces the output bytes for img, going through the transcoder
// fast path when one is configured.
func (c *Coordinator) encode(ctx context.Context, img *core.ImageData, target core.Format, q int) ([]byte, error) {
	if c.transcoder != nil {
		return c.transcoder.Transcode(ctx, img.Data, target, q, c.opts.MaxWidth, c.opts.MaxHeight)
	}
	if c.opts.MaxWidth > 0 || c.opts.MaxHeight > 0 {
		resized, err := c.codec.Resize(ctx, img, c.opts.MaxWidth, c.opts.MaxHeight, core.ResizeOptions{
			PreserveAspect: true,
			NoUpscale:      true,
		})
		if err != nil {
			return nil, err
		}
		img = resized
	}
	return c.codec.Encode(ctx, img, target, q)
}

// resolveFormat picks the output format. Auto keeps images with actual
// transparent pixels in PNG so alpha survives; everything else, including
// fully opaque images that merely carry an alpha channel, converts to JPEG.
func (c *Coordinator) resolveFormat(ch core.ImageCharacteristics) core.Format {
	if c.opts.TargetFormat != "" && c.opts.TargetFormat != core.FormatUnknown {
		return c.opts.TargetFormat
	}
	if ch.HasTransparency {
		return core.FormatPNG
	}
	return core.FormatJPEG
}

func (c *Coordinator) minQualityFor(ct core.ContentType) int {
	if q, ok := c.opts.MinQualityByType[ct]; ok {
		return q
	}
	return c.opts.MinQuality
}

// runStage wraps fn with hook and metric instrumentation.
func (c *Coordinator) runStage(ctx context.Context, stage, path string, fn func() error) error {
	for _, h := range c.hooks {
		h.BeforeStage(ctx, stage, path)
	}
	started := time.Now()
	err := fn()
	d := time.Since(started)
	for _, h := range c.hooks {
		h.AfterStage(ctx, stage, path, d, err)
	}
	if c.metrics != nil {
		c.metrics.RecordStageTime(stage, d)
		if err != nil {
			c.metrics.RecordError(stage)
		}
	}
	return err
}

func (c *Coordinator) failed(res core.OptimizationResult, stage string, err error) core.OptimizationResult {
	res.Status = core.StatusFailed
	res.ErrorMessage = err.Error()
	if c.log != nil {
		c.log.Warn("item failed", "path", res.OriginalPath, "stage", stage, "error", err)
	}
	return res
}

func statusOf(res core.OptimizationResult) itemStatus {
	switch res.Status {
	case core.StatusSuccess:
		return itemSucceeded
	case core.StatusSkipped:
		return itemSkipped
	default:
		return itemFailed
	}
}
