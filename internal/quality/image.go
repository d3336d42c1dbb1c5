package quality

import "context"

// Image scoring defaults.
const (
	DefaultStride       = 4    // sample every 4th pixel
	DefaultMaxDimension = 1024 // working copy limit in pixels
)

// ImageScorer scores decoded images. The zero value scans every pixel at full
// resolution; use NewImageScorer for the standard sampling policy.
type ImageScorer struct {
	// Stride is the sampling step for the statistics and sharpness scans.
	Stride int
	// MaxDimension bounds the working copy; 0 disables downscaling.
	MaxDimension int
}

// NewImageScorer returns a scorer with DefaultStride and DefaultMaxDimension.
func NewImageScorer() *ImageScorer {
	return &ImageScorer{
		Stride:       DefaultStride,
		MaxDimension: DefaultMaxDimension,
	}
}

// ImageBreakdown holds the points awarded per component.
type ImageBreakdown struct {
	Resolution   int `json:"resolution"`
	Contrast     int `json:"contrast"`
	DynamicRange int `json:"dynamic_range"`
	Entropy      int `json:"entropy"`
	Sharpness    int `json:"sharpness"`
	BitDepth     int `json:"bit_depth"`
}

// Total is the uncapped sum of all components.
func (b ImageBreakdown) Total() int {
	return b.Resolution + b.Contrast + b.DynamicRange + b.Entropy + b.Sharpness + b.BitDepth
}

// AnalyzeImage scores pixels with the default scorer.
func AnalyzeImage(ctx context.Context, pixels PixelSample, bitDepthPerChannel int) (QualityScore, error) {
	return NewImageScorer().Analyze(ctx, pixels, bitDepthPerChannel)
}

// Analyze scores pixels. It fails only with ErrInvalidInput (zero-area or
// short buffer) or ErrCancelled.
func (s *ImageScorer) Analyze(ctx context.Context, pixels PixelSample, bitDepthPerChannel int) (QualityScore, error) {
	score, _, err := s.AnalyzeBreakdown(ctx, pixels, bitDepthPerChannel)
	return score, err
}

// AnalyzeBreakdown is Analyze plus the per-component points.
func (s *ImageScorer) AnalyzeBreakdown(ctx context.Context, pixels PixelSample, bitDepthPerChannel int) (QualityScore, ImageBreakdown, error) {
	if err := pixels.validate(); err != nil {
		return QualityScore{}, ImageBreakdown{}, err
	}
	if ctx.Err() != nil {
		return QualityScore{}, ImageBreakdown{}, cancelledError(ctx)
	}

	// Resolution always comes from the original dimensions.
	b := ImageBreakdown{
		Resolution: imageResolutionPoints(pixels.Width, pixels.Height),
		BitDepth:   bitDepthPoints(bitDepthPerChannel),
	}

	work := downscale(pixels, s.MaxDimension)

	m, err := computeMetrics(ctx, work, s.Stride)
	if err != nil {
		return QualityScore{}, ImageBreakdown{}, err
	}
	sharpness, err := computeSharpness(ctx, work, s.Stride)
	if err != nil {
		return QualityScore{}, ImageBreakdown{}, err
	}

	b.Contrast = capPoints(m.contrast/5, 15)
	b.DynamicRange = capPoints(m.dynamicRange/10, 15)
	b.Entropy = capPoints(m.entropy*2, 10)
	b.Sharpness = capPoints(sharpness/10, 15)

	return NewQualityScore(b.Total()), b, nil
}

// imageResolutionPoints tiers the megapixel count.
func imageResolutionPoints(width, height int) int {
	mp := float64(width) * float64(height) / 1_000_000
	switch {
	case mp >= 24:
		return 25
	case mp >= 12:
		return 20
	case mp >= 8:
		return 15
	case mp >= 4:
		return 10
	default:
		return 5
	}
}

func bitDepthPoints(bitDepth int) int {
	switch {
	case bitDepth >= 16:
		return 15
	case bitDepth >= 8:
		return 10
	default:
		return 5
	}
}

// capPoints truncates v toward zero and caps it at limit.
func capPoints(v float64, limit int) int {
	if v <= 0 {
		return 0
	}
	return min(int(v), limit)
}
