package quality

import (
	"image"

	"golang.org/x/image/draw"
)

// downscale returns a bilinear-scaled copy of p whose larger side is exactly
// maxDim, preserving aspect ratio. p is returned unchanged when it already
// fits or maxDim <= 0.
func downscale(p PixelSample, maxDim int) PixelSample {
	if maxDim <= 0 || (p.Width <= maxDim && p.Height <= maxDim) {
		return p
	}

	w, h := maxDim, maxDim
	if p.Width >= p.Height {
		h = max(1, p.Height*maxDim/p.Width)
	} else {
		w = max(1, p.Width*maxDim/p.Height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), p, p.Bounds(), draw.Src, nil)
	return SampleFromImage(dst)
}
