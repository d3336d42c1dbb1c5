// Package analysis scores media files on disk. It connects the decoders and
// probers to the quality scorers and owns the fallback policy for files that
// cannot be read.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/mediagrade/internal/cache"
	"github.com/gwlsn/mediagrade/internal/logger"
	"github.com/gwlsn/mediagrade/internal/media"
	"github.com/gwlsn/mediagrade/internal/metrics"
	"github.com/gwlsn/mediagrade/internal/quality"
)

var (
	// ErrUnsupportedMedia is returned for files that are neither images nor videos.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNotAFile is returned for directories and other non-regular paths.
	ErrNotAFile = errors.New("not a regular file")
)

// PixelSource decodes an image file into pixels plus its per-channel bit depth.
type PixelSource interface {
	Pixels(ctx context.Context, path string) (quality.PixelSample, int, error)
}

// VideoMetadataSource reads the container metadata of a video file.
type VideoMetadataSource interface {
	VideoMetadata(ctx context.Context, path string) (quality.VideoMetadata, error)
}

// Options tunes a Service.
type Options struct {
	// Stride and MaxDimension configure the image scorer.
	Stride       int
	MaxDimension int
	// FallbackScore is reported when a file cannot be decoded or probed.
	FallbackScore int
	// CacheTTL bounds how long a result stays cached; 0 never expires.
	CacheTTL time.Duration
}

// DefaultOptions returns the standard scoring options.
func DefaultOptions() Options {
	return Options{
		Stride:        quality.DefaultStride,
		MaxDimension:  quality.DefaultMaxDimension,
		FallbackScore: 50,
		CacheTTL:      7 * 24 * time.Hour,
	}
}

// Service analyses files. It is safe for concurrent use.
type Service struct {
	images PixelSource
	videos VideoMetadataSource
	cache  cache.Cache // nil disables caching
	scorer *quality.ImageScorer
	opts   Options
}

// NewService creates a Service. c may be nil.
func NewService(images PixelSource, videos VideoMetadataSource, c cache.Cache, opts Options) *Service {
	return &Service{
		images: images,
		videos: videos,
		cache:  c,
		scorer: &quality.ImageScorer{Stride: opts.Stride, MaxDimension: opts.MaxDimension},
		opts:   opts,
	}
}

// Analyze scores the file at path. Decode and probe failures produce a
// fallback result rather than an error; cancellation and unusable paths
// are returned as errors.
func (s *Service) Analyze(ctx context.Context, path string) (*Result, error) {
	mediaType := media.Classify(path)
	if mediaType == media.TypeUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	key := cache.Key(path, info.Size(), info.ModTime())
	if cached := s.lookup(ctx, key); cached != nil {
		return cached, nil
	}

	start := time.Now()
	score, bd, dims, scoreErr := s.score(ctx, mediaType, path)
	elapsed := time.Since(start)

	if scoreErr != nil && (errors.Is(scoreErr, quality.ErrCancelled) || ctx.Err() != nil) {
		metrics.RecordAnalysis(string(mediaType), metrics.OutcomeCancelled, elapsed, 0)
		if !errors.Is(scoreErr, quality.ErrCancelled) {
			scoreErr = fmt.Errorf("%w: %w", quality.ErrCancelled, ctx.Err())
		}
		return nil, scoreErr
	}

	result := newResult(path, mediaType, info.Size())
	result.ElapsedMs = elapsed.Milliseconds()
	if scoreErr != nil {
		logger.Warn("Scoring failed, using fallback", "path", path, "error", scoreErr)
		result.setScore(quality.NewQualityScore(s.opts.FallbackScore))
		result.Fallback = true
		result.FallbackReason = scoreErr.Error()
		metrics.RecordAnalysis(string(mediaType), metrics.OutcomeFallback, elapsed, result.Percentage)
		return result, nil
	}

	result.setScore(score)
	result.Breakdown = bd
	result.Resolution = media.Resolution(dims.X, dims.Y)
	metrics.RecordAnalysis(string(mediaType), metrics.OutcomeScored, elapsed, result.Percentage)
	logger.Debug("Scored media", "path", path, "percentage", result.Percentage, "grade", result.Grade, "elapsed", elapsed)

	s.store(ctx, key, result)
	return result, nil
}

type dimensions struct{ X, Y int }

func (s *Service) score(ctx context.Context, mediaType media.Type, path string) (quality.QualityScore, map[string]int, dimensions, error) {
	switch mediaType {
	case media.TypeImage:
		if s.images == nil {
			return quality.QualityScore{}, nil, dimensions{}, errors.New("no image decoder configured")
		}
		pixels, bitDepth, err := s.images.Pixels(ctx, path)
		if err != nil {
			return quality.QualityScore{}, nil, dimensions{}, err
		}
		score, b, err := s.scorer.AnalyzeBreakdown(ctx, pixels, bitDepth)
		if err != nil {
			return quality.QualityScore{}, nil, dimensions{}, err
		}
		return score, map[string]int{
			"resolution":    b.Resolution,
			"contrast":      b.Contrast,
			"dynamic_range": b.DynamicRange,
			"entropy":       b.Entropy,
			"sharpness":     b.Sharpness,
			"bit_depth":     b.BitDepth,
		}, dimensions{pixels.Width, pixels.Height}, nil

	default:
		if s.videos == nil {
			return quality.QualityScore{}, nil, dimensions{}, errors.New("no video prober configured")
		}
		meta, err := s.videos.VideoMetadata(ctx, path)
		if err != nil {
			return quality.QualityScore{}, nil, dimensions{}, err
		}
		score, b, err := quality.AnalyzeVideoBreakdown(meta)
		if err != nil {
			return quality.QualityScore{}, nil, dimensions{}, err
		}
		return score, map[string]int{
			"resolution": b.Resolution,
			"bitrate":    b.Bitrate,
			"frame_rate": b.FrameRate,
			"codec":      b.Codec,
			"audio":      b.Audio,
		}, dimensions{int(meta.Width), int(meta.Height)}, nil
	}
}

func (s *Service) lookup(ctx context.Context, key string) *Result {
	if s.cache == nil {
		return nil
	}
	var cached Result
	ok, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn("Score cache lookup failed", "error", err)
	}
	metrics.RecordCacheLookup(ok)
	if !ok {
		return nil
	}
	// Each lookup is a new analysis event.
	cached.ID = uuid.NewString()
	cached.Cached = true
	return &cached
}

func (s *Service) store(ctx context.Context, key string, r *Result) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, key, r, s.opts.CacheTTL); err != nil {
		logger.Warn("Score cache write failed", "path", r.Path, "error", err)
	}
}

// AdviceFor builds the banding view for an arbitrary percentage.
func AdviceFor(percentage int) Advice {
	return Advice{
		Percentage: percentage,
		Grade:      quality.BandFor(percentage).Grade,
		Advice:     quality.Advice(percentage),
		Indicator:  string(quality.IndicatorFor(percentage)),
	}
}
