package converter

import (
	"context"
	"fmt"
	"image/png"
	"os"

	"github.com/disintegration/imaging"

	// Registers the WebP decoder so WebP sources can be re-encoded.
	_ "golang.org/x/image/webp"
)

// ImagingBackend converts in-process with github.com/disintegration/imaging.
// It encodes JPEG and PNG only.
type ImagingBackend struct{}

// NewImagingBackend creates a new ImagingBackend instance.
func NewImagingBackend() *ImagingBackend {
	return &ImagingBackend{}
}

// Name implements Backend.
func (b *ImagingBackend) Name() string {
	return BackendImaging
}

// Convert implements Backend.
func (b *ImagingBackend) Convert(ctx context.Context, src, dst string, format Format, quality int) error {
	var (
		target imaging.Format
		opts   []imaging.EncodeOption
	)
	switch format {
	case FormatJPG:
		target = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(quality))
	case FormatPNG:
		target = imaging.PNG
		opts = append(opts, imaging.PNGCompressionLevel(pngCompressionLevel(quality)))
	default:
		return fmt.Errorf("imaging backend cannot encode %s", format)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open error: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := imaging.Encode(out, img, target, opts...); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode error: %w", err)
	}
	return out.Close()
}

// pngCompressionLevel maps a 1-100 quality onto zlib effort. PNG is lossless,
// so a lower quality buys a smaller file at the cost of encode time.
func pngCompressionLevel(quality int) png.CompressionLevel {
	switch {
	case quality <= 33:
		return png.BestCompression
	case quality <= 66:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}

// pngZlibLevel is pngCompressionLevel expressed as a 0-9 zlib level for
// command line tools.
func pngZlibLevel(quality int) int {
	switch pngCompressionLevel(quality) {
	case png.BestCompression:
		return 9
	case png.BestSpeed:
		return 1
	default:
		return 6
	}
}
