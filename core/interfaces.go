package core

import (
	"context"
	"io"
	"time"
)

// Decoder converts raw bytes / a reader into an in-memory ImageData.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, quality int) ([]byte, error)
	CanEncode(format Format) bool
}

// ResizeOptions controls how Codec.Resize maps source to target dimensions.
type ResizeOptions struct {
	PreserveAspect bool
	NoUpscale      bool
}

// Codec is the capability boundary every pixel operation goes through:
// metadata extraction, per-channel statistics, 3x3 convolution, resize, and
// format encode. Implementations must be safe for concurrent use; every call
// is stateless.
type Codec interface {
	// DecodeMetadata extracts dimensions, channel layout, and orientation
	// without retaining the pixel buffer.
	DecodeMetadata(ctx context.Context, path string) (Metadata, error)

	// DecodeFile reads and fully decodes the image at path.
	DecodeFile(ctx context.Context, path string) (*ImageData, error)

	// Statistics computes per-channel mean/stddev/min/max over the decoded
	// pixels. The alpha channel is included only when the image carries one.
	Statistics(img *ImageData) (ImageStats, error)

	// Convolve applies a 3x3 kernel to a greyscale derivative of img and
	// returns statistics of the absolute response.
	Convolve(img *ImageData, kernel [9]float64) (ChannelStats, error)

	// Resize scales img to the given bounds. With PreserveAspect the target
	// box is treated as a maximum; with NoUpscale images already inside the
	// box are returned unchanged.
	Resize(ctx context.Context, img *ImageData, width, height int, opts ResizeOptions) (*ImageData, error)

	// Encode serialises img to the target format at the given quality.
	Encode(ctx context.Context, img *ImageData, format Format, quality int) ([]byte, error)
}

// Transcoder is an optional fast path that turns raw encoded bytes directly
// into the target format, fusing decode, auto-rotate, scale-down, and encode.
// The libvips backend implements it.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, format Format, quality, maxWidth, maxHeight int) ([]byte, error)
}

// StorageAdapter persists optimized outputs. Implementations live in
// adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
}

// MetricsCollector receives performance observations from the item pipeline.
type MetricsCollector interface {
	RecordStageTime(stage string, d time.Duration)
	RecordThroughput(bytes int64)
	RecordError(stage string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Hook is an optional observer invoked around item pipeline stages.
type Hook interface {
	BeforeStage(ctx context.Context, stage, path string)
	AfterStage(ctx context.Context, stage, path string, d time.Duration, err error)
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
	// EncodableFormats lists the formats a registered encoder can produce.
	EncodableFormats() []Format
}
