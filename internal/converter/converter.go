package converter

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Format is a target image format.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatAVIF Format = "avif"
)

// Quality bounds accepted by every backend.
const (
	MinQuality = 1
	MaxQuality = 100
)

// SupportedFormats lists the formats a request may target.
var SupportedFormats = []Format{FormatWebP, FormatJPG, FormatPNG, FormatAVIF}

// Validation and post-condition errors reported in a failed Result.
var (
	ErrInvalidSource     = errors.New("source path invalid or missing")
	ErrInvalidQuality    = errors.New("quality must be a number between 1 and 100")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyOutput       = errors.New("output file is empty or does not exist")
	ErrSourceNotFound    = errors.New("source file does not exist")
)

// IsValid reports whether f is one of the supported formats.
func (f Format) IsValid() bool {
	for _, s := range SupportedFormats {
		if f == s {
			return true
		}
	}
	return false
}

// Extension returns the file extension written for f, including the dot.
// The extension is the format name as requested, so "jpg" stays ".jpg".
func (f Format) Extension() string {
	return "." + string(f)
}

// String returns the format name.
func (f Format) String() string {
	return string(f)
}

// Request describes a single image conversion.
type Request struct {
	SourcePath      string `json:"source_path"`
	OutputDirectory string `json:"output_dir,omitempty"`
	Quality         int    `json:"quality"`
	Format          Format `json:"format"`
}

// Validate checks the request fields in order and returns the first problem.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SourcePath) == "" {
		return ErrInvalidSource
	}
	if r.Quality < MinQuality || r.Quality > MaxQuality {
		return ErrInvalidQuality
	}
	if !r.Format.IsValid() {
		return &FormatError{Format: string(r.Format)}
	}
	return nil
}

// OutputDir returns the directory the converted file is written to.
func (r Request) OutputDir() string {
	if dir := strings.TrimSpace(r.OutputDirectory); dir != "" {
		return dir
	}
	return filepath.Dir(r.SourcePath)
}

// OutputPath returns the path of the converted file.
func (r Request) OutputPath() string {
	base := filepath.Base(r.SourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(r.OutputDir(), stem+r.Format.Extension())
}

// Result describes the outcome of a single conversion.
type Result struct {
	Success          bool   `json:"success"`
	OriginalPath     string `json:"original_path"`
	OutputPath       string `json:"output_path,omitempty"`
	OriginalSize     int64  `json:"original_size,omitempty"`
	NewSize          int64  `json:"new_size,omitempty"`
	CompressionRatio string `json:"compression_ratio,omitempty"`
	Error            string `json:"error,omitempty"`
	Err              error  `json:"-"`
}

// Backend transcodes an image file into the requested format.
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string
	// Convert writes src, re-encoded as format at quality, to dst.
	// An existing file at dst is overwritten.
	Convert(ctx context.Context, src, dst string, format Format, quality int) error
}

// Converter turns a Request into a Result. Failures are reported in the
// Result, never as a Go error.
type Converter interface {
	Convert(ctx context.Context, req Request) Result
}

// FormatError reports a target format that is not supported.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return ErrUnsupportedFormat.Error() + ": " + e.Format
}

func (e *FormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// BackendError wraps an error returned by a Backend. Its message is the
// backend's own message.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
