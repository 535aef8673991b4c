// Package report serialises a finished batch run: a machine-readable report
// file plus a source-to-output mapping.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/webimg/webimg/core"
	apperrors "github.com/webimg/webimg/errors"
)

// Format selects the report serialisation.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Writer persists reports into a directory.
type Writer struct {
	dir    string
	format Format
}

// NewWriter creates a Writer targeting dir, creating it if needed.
func NewWriter(dir string, format Format) (*Writer, error) {
	if format == "" {
		format = FormatJSON
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "report.mkdir", err)
	}
	return &Writer{dir: dir, format: format}, nil
}

// Write persists the report and the original-to-output mapping. It returns
// the report file path.
func (w *Writer) Write(rep *core.ProcessingReport) (string, error) {
	var (
		path string
		err  error
	)
	switch w.format {
	case FormatText:
		path = filepath.Join(w.dir, fmt.Sprintf("report-%s.txt", rep.RunID))
		err = os.WriteFile(path, []byte(Render(rep)), 0o644)
	default:
		path = filepath.Join(w.dir, fmt.Sprintf("report-%s.json", rep.RunID))
		var data []byte
		data, err = json.MarshalIndent(rep, "", "  ")
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CategoryStorage, "report.write", err)
	}

	if err := w.writeMapping(rep); err != nil {
		return "", err
	}
	return path, nil
}

// writeMapping persists a JSON object from original path to output path for
// every successfully converted item.
func (w *Writer) writeMapping(rep *core.ProcessingReport) error {
	mapping := make(map[string]string)
	for _, r := range rep.Results {
		if r.Status == core.StatusSuccess {
			mapping[r.OriginalPath] = r.OutputPath
		}
	}
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "report.mapping", err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("mapping-%s.json", rep.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "report.mapping", err)
	}
	return nil
}

// Render produces the human-readable text form of a report.
func Render(rep *core.ProcessingReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", rep.RunID)
	fmt.Fprintf(&b, "processed %d images in %s\n", rep.TotalImages, rep.TotalTime.Round(time.Millisecond))
	fmt.Fprintf(&b, "  succeeded: %d\n", rep.SuccessfulConversions)
	fmt.Fprintf(&b, "  failed:    %d\n", rep.FailedConversions)
	fmt.Fprintf(&b, "  skipped:   %d\n", rep.SkippedFiles)
	fmt.Fprintf(&b, "  bytes saved: %d (avg %.1f%%)\n", rep.TotalBytesSaved, rep.AverageCompressionRatio)
	b.WriteString("\n")
	for _, r := range rep.Results {
		switch r.Status {
		case core.StatusSuccess:
			fmt.Fprintf(&b, "ok   %s -> %s (%d -> %d bytes, q=%d, %s)\n",
				r.OriginalPath, r.OutputPath, r.OriginalSize, r.OutputSize, r.QualityUsed, r.ContentType)
		case core.StatusFailed:
			fmt.Fprintf(&b, "fail %s: %s\n", r.OriginalPath, r.ErrorMessage)
		case core.StatusSkipped:
			fmt.Fprintf(&b, "skip %s: %s\n", r.OriginalPath, r.ErrorMessage)
		}
	}
	return b.String()
}
