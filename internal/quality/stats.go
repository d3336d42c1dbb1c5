package quality

import (
	"context"
	"math"
)

// cancelCheckInterval is how many visited pixels pass between context checks.
const cancelCheckInterval = 4096

// metrics are the tonal statistics of a sample. They stay internal to the
// image scorer.
type metrics struct {
	brightness   float64
	contrast     float64
	entropy      float64
	dynamicRange float64
}

// computeMetrics scans every stride-th linear pixel of p and derives
// brightness, contrast (standard deviation), dynamic range and the Shannon
// entropy of the 256-level gray histogram.
func computeMetrics(ctx context.Context, p PixelSample, stride int) (metrics, error) {
	if stride < 1 {
		stride = 1
	}
	total := p.Len()
	if total <= 0 {
		return metrics{}, invalidInputError("no pixels to sample")
	}

	var (
		sum, sumSquares int64
		histogram       [256]int
		count           int
	)
	minGray, maxGray := 255, 0

	for i := 0; i < total; i += stride {
		if count%cancelCheckInterval == 0 && ctx.Err() != nil {
			return metrics{}, cancelledError(ctx)
		}
		g := p.gray(i)
		sum += int64(g)
		sumSquares += int64(g * g)
		histogram[g]++
		if g < minGray {
			minGray = g
		}
		if g > maxGray {
			maxGray = g
		}
		count++
	}

	n := float64(count)
	brightness := float64(sum) / n
	// Floating-point cancellation can leave variance slightly below zero.
	variance := float64(sumSquares)/n - brightness*brightness

	var entropy float64
	for _, c := range histogram {
		if c > 0 {
			pr := float64(c) / n
			entropy -= pr * math.Log2(pr)
		}
	}

	return metrics{
		brightness:   brightness,
		contrast:     math.Sqrt(math.Max(0, variance)),
		entropy:      entropy,
		dynamicRange: float64(maxGray - minGray),
	}, nil
}
