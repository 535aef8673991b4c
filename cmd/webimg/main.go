// Command webimg batch-optimizes a directory of web images.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webimg/webimg"
	"github.com/webimg/webimg/batch"
	"github.com/webimg/webimg/config"
	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
	"github.com/webimg/webimg/hooks"
	"github.com/webimg/webimg/report"
)

// Exit codes: 0 all items succeeded, 1 some items failed or the batch
// aborted, 2 invalid configuration.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	var (
		minQualityPhoto   int
		minQualityGraphic int
		minQualityMixed   int
		quiet             bool
	)

	root := &cobra.Command{
		Use:           "webimg",
		Short:         "Batch web-image optimizer",
		Long:          "webimg analyzes each image's content, picks a per-image encoder quality,\nre-encodes with bounded concurrency, and validates outputs against sources.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize all supported images under the source directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minQualityPhoto > 0 {
				cfg.MinQualityByType[core.ContentPhoto] = minQualityPhoto
			}
			if minQualityGraphic > 0 {
				cfg.MinQualityByType[core.ContentGraphic] = minQualityGraphic
			}
			if minQualityMixed > 0 {
				cfg.MinQualityByType[core.ContentMixed] = minQualityMixed
			}
			return optimizeRun(cmd.Context(), cfg, quiet)
		},
	}

	flags := optimize.Flags()
	flags.StringVarP(&cfg.SourceDir, "source", "s", cfg.SourceDir, "directory of images to optimize")
	flags.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "directory for optimized outputs")
	flags.StringVar(&cfg.ReportDir, "report-dir", cfg.ReportDir, "directory for run reports (defaults to the output directory)")
	flags.StringVarP(&cfg.TargetFormat, "format", "f", cfg.TargetFormat, "target format: auto, jpeg, png, or webp")
	flags.IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, "maximum images processed at once")
	flags.BoolVar(&cfg.ContinueOnError, "continue-on-error", cfg.ContinueOnError, "keep processing after item failures")
	flags.BoolVar(&cfg.SkipExisting, "skip-existing", cfg.SkipExisting, "skip images whose output already exists")
	flags.IntVar(&cfg.MinQuality, "min-quality", cfg.MinQuality, "quality floor for all images (1-100)")
	flags.IntVar(&minQualityPhoto, "min-quality-photo", 0, "quality floor for photo content")
	flags.IntVar(&minQualityGraphic, "min-quality-graphic", 0, "quality floor for graphic content")
	flags.IntVar(&minQualityMixed, "min-quality-mixed", 0, "quality floor for mixed content")
	flags.IntVar(&cfg.MaxWidth, "max-width", cfg.MaxWidth, "maximum output width, 0 for unconstrained")
	flags.IntVar(&cfg.MaxHeight, "max-height", cfg.MaxHeight, "maximum output height, 0 for unconstrained")
	flags.StringVar(&cfg.ReportFormat, "report-format", cfg.ReportFormat, "report serialisation: json or text")
	flags.StringVar((*string)(&cfg.Backend), "backend", string(cfg.Backend), "codec backend: native or vips")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, or error")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	root.AddCommand(optimize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "webimg:", err)
		if apperrors.IsCategory(err, apperrors.CategoryConfig) {
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

// runFailed reports item-level failures through the process exit code
// without being an error cobra prints twice.
var errItemsFailed = errors.New("one or more images failed")

func optimizeRun(ctx context.Context, cfg config.Config, quiet bool) error {
	log := hooks.NewSlogLogger(newLogger(cfg.LogLevel))

	opts := []webimg.Option{}
	if !quiet {
		opts = append(opts, webimg.WithProgress(printProgress))
	}

	opt, err := webimg.New(cfg, log, opts...)
	if err != nil {
		return err
	}
	defer opt.Close()

	rep, runErr := opt.Run(ctx)
	if rep == nil {
		return runErr
	}
	if !quiet {
		fmt.Fprint(os.Stderr, "\n")
	}
	fmt.Println(renderSummary(rep))

	reportDir := cfg.ReportDir
	if reportDir == "" {
		reportDir = cfg.OutputDir
	}
	writer, err := report.NewWriter(reportDir, report.Format(cfg.ReportFormat))
	if err != nil {
		return err
	}
	path, err := writer.Write(rep)
	if err != nil {
		return err
	}
	fmt.Println("report written to", path)

	if runErr != nil {
		return runErr
	}
	if rep.FailedConversions > 0 {
		return errItemsFailed
	}
	return nil
}

func printProgress(u batch.ProgressUpdate) {
	fmt.Fprintf(os.Stderr, "\r%d/%d (%.0f%%) ok=%d fail=%d skip=%d eta=%s ",
		u.Completed, u.Total, u.Percent, u.Succeeded, u.Failed, u.Skipped,
		u.EstimatedLeft.Round(100*time.Millisecond))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
