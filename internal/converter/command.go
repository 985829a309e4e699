package converter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Backend names accepted by NewBackend.
const (
	BackendImaging = "imaging"
	BackendMagick  = "magick"
	BackendVips    = "vips"
)

// Default executables for the command line backends.
const (
	MagickCommand = "magick"
	VipsCommand   = "vips"
)

// ArgsFunc builds the command line for one conversion.
type ArgsFunc func(src, dst string, format Format, quality int) []string

// CommandBackend converts by running an external tool as a subprocess.
type CommandBackend struct {
	name string
	path string
	args ArgsFunc
}

// NewCommandBackend returns a backend that runs path with the arguments
// produced by args.
func NewCommandBackend(name, path string, args ArgsFunc) *CommandBackend {
	return &CommandBackend{
		name: name,
		path: path,
		args: args,
	}
}

// NewMagickBackend returns a backend driving the ImageMagick CLI.
func NewMagickBackend(path string) *CommandBackend {
	if path == "" {
		path = MagickCommand
	}
	return NewCommandBackend(BackendMagick, path, MagickArgs)
}

// NewVipsBackend returns a backend driving the libvips CLI.
func NewVipsBackend(path string) *CommandBackend {
	if path == "" {
		path = VipsCommand
	}
	return NewCommandBackend(BackendVips, path, VipsArgs)
}

// Name implements Backend.
func (b *CommandBackend) Name() string {
	return b.name
}

// Path returns the executable run by the backend.
func (b *CommandBackend) Path() string {
	return b.path
}

// Convert implements Backend.
func (b *CommandBackend) Convert(ctx context.Context, src, dst string, format Format, quality int) error {
	cmd := exec.CommandContext(ctx, b.path, b.args(src, dst, format, quality)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %s", b.name, msg)
		}
		return fmt.Errorf("%s failed: %w", b.name, err)
	}
	return nil
}

// MagickArgs builds `magick SRC -quality Q CODER:DST`. The explicit coder
// prefix selects the encoder regardless of the output extension, so "jpg"
// goes through the JPEG coder.
func MagickArgs(src, dst string, format Format, quality int) []string {
	return []string{
		src,
		"-quality", strconv.Itoa(quality),
		magickCoder(format) + ":" + dst,
	}
}

// VipsArgs builds `vips copy SRC DST[options]`; vips picks the saver from
// the output extension.
func VipsArgs(src, dst string, format Format, quality int) []string {
	var opts string
	if format == FormatPNG {
		opts = fmt.Sprintf("[compression=%d]", pngZlibLevel(quality))
	} else {
		opts = fmt.Sprintf("[Q=%d]", quality)
	}
	return []string{"copy", src, dst + opts}
}

func magickCoder(format Format) string {
	switch format {
	case FormatJPG:
		return "JPEG"
	default:
		return strings.ToUpper(string(format))
	}
}

// BackendOptions holds executable paths for the command line backends.
type BackendOptions struct {
	MagickPath string
	VipsPath   string
}

// NewBackend returns the backend registered under name.
func NewBackend(name string, opts BackendOptions) (Backend, error) {
	switch name {
	case BackendImaging:
		return NewImagingBackend(), nil
	case BackendMagick:
		return NewMagickBackend(opts.MagickPath), nil
	case BackendVips:
		return NewVipsBackend(opts.VipsPath), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (valid: %s, %s, %s)", name, BackendImaging, BackendMagick, BackendVips)
	}
}
