package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryAnalysis   Category = "analysis"
	CategoryCodec      Category = "codec"
	CategoryValidation Category = "validation"
	CategoryBatch      Category = "batch"
	CategoryStorage    Category = "storage"
	CategoryInput      Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// BatchAbortError is raised when continue-on-error is disabled and an item
// fails. It carries the path and message of the first failing item; items
// already in flight when the abort triggered still have terminal results in
// the accompanying report.
type BatchAbortError struct {
	Path    string
	Message string
}

func (e *BatchAbortError) Error() string {
	return fmt.Sprintf("batch aborted on first failure: %s: %s", e.Path, e.Message)
}

// IsBatchAbort reports whether err is a batch abort.
func IsBatchAbort(err error) bool {
	var ba *BatchAbortError
	return errors.As(err, &ba)
}

// Sentinel errors for common failure modes.
var (
	ErrNoSupportedFiles  = errors.New("no supported image files found")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrEmptyInput        = errors.New("empty input")
	ErrQualityOutOfRange = errors.New("minimum quality must be between 1 and 100")
)
