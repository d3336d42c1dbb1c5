package quality

import "context"

// computeSharpness returns the mean edge energy over interior pixels visited
// at stride in both axes. Each pixel is compared with its left and top
// neighbours only. The result is 0 when no interior pixel was visited.
func computeSharpness(ctx context.Context, p PixelSample, stride int) (float64, error) {
	if stride < 1 {
		stride = 1
	}
	w, h := p.Width, p.Height

	var edge int64
	count := 0
	for y := 1; y < h-1; y += stride {
		for x := 1; x < w-1; x += stride {
			if count%cancelCheckInterval == 0 && ctx.Err() != nil {
				return 0, cancelledError(ctx)
			}
			idx := y*w + x
			g := p.gray(idx)
			edge += int64(absInt(g-p.gray(idx-1)) + absInt(g-p.gray(idx-w)))
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}
	return float64(edge) / float64(count), nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
