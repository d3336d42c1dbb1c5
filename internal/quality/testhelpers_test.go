package quality

import "context"

// makeUniform returns a w x h sample where every channel equals v.
func makeUniform(w, h int, v uint8) PixelSample {
	pix := make([]uint8, w*h*BytesPerPixel)
	for i := range pix {
		pix[i] = v
	}
	return PixelSample{Width: w, Height: h, Pix: pix}
}

// makeNoise fills a sample from a fixed LCG so results are reproducible.
func makeNoise(w, h int, seed uint32) PixelSample {
	pix := make([]uint8, w*h*BytesPerPixel)
	state := seed
	for i := range pix {
		state = state*1664525 + 1013904223
		pix[i] = uint8(state >> 24)
	}
	return PixelSample{Width: w, Height: h, Pix: pix}
}

// makeGray builds a sample from per-pixel gray levels.
func makeGray(w, h int, level func(x, y int) uint8) PixelSample {
	pix := make([]uint8, w*h*BytesPerPixel)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := level(x, y)
			off := (y*w + x) * BytesPerPixel
			pix[off], pix[off+1], pix[off+2] = v, v, v
		}
	}
	return PixelSample{Width: w, Height: h, Pix: pix}
}

// cancelAfter reports cancellation once Err has been called more than limit
// times, simulating a caller that gives up mid-scan.
type cancelAfter struct {
	context.Context
	calls int
	limit int
}

func newCancelAfter(limit int) *cancelAfter {
	return &cancelAfter{Context: context.Background(), limit: limit}
}

func (c *cancelAfter) Err() error {
	c.calls++
	if c.calls > c.limit {
		return context.Canceled
	}
	return nil
}
