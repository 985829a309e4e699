// Package imageinfo reads basic properties of an image file.
package imageinfo

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"

	// Decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Info describes an image file.
type Info struct {
	Format      string `json:"format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        int64  `json:"size"`
	Orientation int    `json:"orientation,omitempty"`
}

// MetadataReader reads tags from files Go cannot decode.
type MetadataReader interface {
	ExtractMetadata(files ...string) []exiftool.FileMetadata
}

// Inspector reads image info, falling back to exiftool for formats without a
// Go decoder.
type Inspector struct {
	logger   *logrus.Logger
	fallback func() (MetadataReader, func(), error)
}

// NewInspector returns an Inspector that starts exiftool on demand.
func NewInspector(logger *logrus.Logger) *Inspector {
	return &Inspector{
		logger: logger,
		fallback: func() (MetadataReader, func(), error) {
			et, err := exiftool.NewExiftool()
			if err != nil {
				return nil, nil, err
			}
			return et, func() { _ = et.Close() }, nil
		},
	}
}

// Inspect returns the format, dimensions and size of the image at path.
func (i *Inspector) Inspect(path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("not a file: %s", path)
	}

	info, err := decodeConfig(path)
	if err != nil {
		i.logger.Debugf("Go decoders cannot read %s, trying exiftool: %v", path, err)
		info, err = i.inspectWithExiftool(path)
		if err != nil {
			return nil, err
		}
	}
	info.Size = stat.Size()
	info.Orientation = readOrientation(path)
	return info, nil
}

func decodeConfig(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	return &Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func (i *Inspector) inspectWithExiftool(path string) (*Info, error) {
	reader, closeFn, err := i.fallback()
	if err != nil {
		return nil, fmt.Errorf("exiftool unavailable: %w", err)
	}
	defer closeFn()

	files := reader.ExtractMetadata(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("no metadata for %s", path)
	}
	if files[0].Err != nil {
		return nil, fmt.Errorf("exiftool error: %w", files[0].Err)
	}

	fm := files[0]
	fileType, err := fm.GetString("FileType")
	if err != nil {
		return nil, fmt.Errorf("unknown image type: %w", err)
	}
	width, err := fm.GetInt("ImageWidth")
	if err != nil {
		return nil, fmt.Errorf("missing width: %w", err)
	}
	height, err := fm.GetInt("ImageHeight")
	if err != nil {
		return nil, fmt.Errorf("missing height: %w", err)
	}

	return &Info{
		Format: strings.ToLower(fileType),
		Width:  int(width),
		Height: int(height),
	}, nil
}

// readOrientation returns the EXIF orientation tag, or 0 when absent.
func readOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}
