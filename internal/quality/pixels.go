package quality

import (
	"image"
	"image/color"
)

// BytesPerPixel is the number of channels stored per pixel (R, G, B).
const BytesPerPixel = 3

// PixelSample is a decoded image: 8-bit RGB triplets in row-major order.
// Scorers borrow it for one call and never modify or retain it.
type PixelSample struct {
	Width  int
	Height int
	Pix    []uint8 // len = Width * Height * BytesPerPixel
}

// NewPixelSample validates the buffer length against the dimensions.
func NewPixelSample(width, height int, pix []uint8) (PixelSample, error) {
	p := PixelSample{Width: width, Height: height, Pix: pix}
	if err := p.validate(); err != nil {
		return PixelSample{}, err
	}
	return p, nil
}

func (p PixelSample) validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return invalidInputError("zero-area pixel sample (%dx%d)", p.Width, p.Height)
	}
	if want := p.Width * p.Height * BytesPerPixel; len(p.Pix) < want {
		return invalidInputError("pixel buffer has %d bytes, want %d", len(p.Pix), want)
	}
	return nil
}

// Len returns the number of pixels.
func (p PixelSample) Len() int {
	return p.Width * p.Height
}

// gray returns round((R+G+B)/3) for the pixel at linear index i.
func (p PixelSample) gray(i int) int {
	off := i * BytesPerPixel
	sum := int(p.Pix[off]) + int(p.Pix[off+1]) + int(p.Pix[off+2])
	return (sum + 1) / 3
}

// ColorModel implements image.Image.
func (p PixelSample) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (p PixelSample) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// At implements image.Image so a sample can be handed to image scalers.
func (p PixelSample) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return color.RGBA{}
	}
	off := (y*p.Width + x) * BytesPerPixel
	return color.RGBA{R: p.Pix[off], G: p.Pix[off+1], B: p.Pix[off+2], A: 0xff}
}

// SampleFromImage copies img into a PixelSample. Alpha is ignored: channels
// are taken as stored (non-premultiplied) where the concrete type allows it.
func SampleFromImage(img image.Image) PixelSample {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	p := PixelSample{Width: w, Height: h, Pix: make([]uint8, w*h*BytesPerPixel)}
	if w <= 0 || h <= 0 {
		return p
	}

	dst := 0
	switch src := img.(type) {
	case PixelSample:
		copy(p.Pix, src.Pix)
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := y * src.Stride
			for x := 0; x < w; x++ {
				i := off + x*4
				p.Pix[dst], p.Pix[dst+1], p.Pix[dst+2] = src.Pix[i], src.Pix[i+1], src.Pix[i+2]
				dst += BytesPerPixel
			}
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			off := y * src.Stride
			for x := 0; x < w; x++ {
				i := off + x*4
				p.Pix[dst], p.Pix[dst+1], p.Pix[dst+2] = src.Pix[i], src.Pix[i+1], src.Pix[i+2]
				dst += BytesPerPixel
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := y * src.Stride
			for x := 0; x < w; x++ {
				v := src.Pix[off+x]
				p.Pix[dst], p.Pix[dst+1], p.Pix[dst+2] = v, v, v
				dst += BytesPerPixel
			}
		}
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := src.YCbCrAt(x, y)
				p.Pix[dst], p.Pix[dst+1], p.Pix[dst+2] = color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				dst += BytesPerPixel
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				p.Pix[dst], p.Pix[dst+1], p.Pix[dst+2] = c.R, c.G, c.B
				dst += BytesPerPixel
			}
		}
	}
	return p
}
