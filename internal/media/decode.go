package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gwlsn/mediagrade/internal/quality"
)

var (
	// ErrUnsupportedFormat means no registered decoder recognized the file.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrImageTooLarge means the header reports more pixels than allowed.
	ErrImageTooLarge = errors.New("image too large")
)

// Info is the header-level description of an image.
type Info struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	BitDepth int    `json:"bit_depth"`
}

// ImageDecoder loads image files as pixel samples.
type ImageDecoder struct {
	// MaxPixels rejects images whose header reports a larger area; 0 means no limit.
	MaxPixels int
}

// NewImageDecoder returns a decoder with the given pixel limit.
func NewImageDecoder(maxPixels int) *ImageDecoder {
	return &ImageDecoder{MaxPixels: maxPixels}
}

// Pixels decodes path and returns its RGB sample and per-channel bit depth.
func (d *ImageDecoder) Pixels(ctx context.Context, path string) (quality.PixelSample, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return quality.PixelSample{}, 0, err
	}
	defer f.Close()

	info, err := readInfo(f)
	if err != nil {
		return quality.PixelSample{}, 0, fmt.Errorf("%s: %w", path, err)
	}
	if d.MaxPixels > 0 && info.Width*info.Height > d.MaxPixels {
		return quality.PixelSample{}, 0, fmt.Errorf("%w: %s is %dx%d", ErrImageTooLarge, path, info.Width, info.Height)
	}
	if err := ctx.Err(); err != nil {
		return quality.PixelSample{}, 0, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return quality.PixelSample{}, 0, err
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return quality.PixelSample{}, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	return quality.SampleFromImage(img), info.BitDepth, nil
}

// ImageInfo reads only the image header.
func ImageInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return readInfo(f)
}

func readInfo(r io.Reader) (Info, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Info{}, ErrUnsupportedFormat
		}
		return Info{}, err
	}
	return Info{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		BitDepth: BitDepth(cfg.ColorModel),
	}, nil
}

// BitDepth returns the bits per channel implied by a color model: 16 for
// the 16-bit models, 4 for paletted images and 8 otherwise.
func BitDepth(cm color.Model) int {
	switch cm {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		return 16
	}
	if _, ok := cm.(color.Palette); ok {
		return 4
	}
	return 8
}
