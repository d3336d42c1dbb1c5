package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/mediagrade/internal/media"
	"github.com/gwlsn/mediagrade/internal/quality"
)

// Result is the outcome of analysing one file.
type Result struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	MediaType  media.Type     `json:"media_type"`
	RawScore   int            `json:"raw_score"`
	MaxScore   int            `json:"max_score"`
	Percentage int            `json:"percentage"`
	Grade      string         `json:"grade"`
	Advice     string         `json:"advice"`
	Indicator  string         `json:"indicator"`
	Resolution string         `json:"resolution,omitempty"` // "W×H"
	FileSizeKB int64          `json:"file_size_kb"`
	Breakdown  map[string]int `json:"breakdown,omitempty"`

	// Fallback is set when the file could not be decoded or probed and the
	// fallback score was reported instead.
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Cached         bool   `json:"cached"`

	ElapsedMs  int64     `json:"elapsed_ms"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Advice is the banding view of a percentage.
type Advice struct {
	Percentage int    `json:"percentage"`
	Grade      string `json:"grade"`
	Advice     string `json:"advice"`
	Indicator  string `json:"indicator"`
}

func newResult(path string, mediaType media.Type, size int64) *Result {
	return &Result{
		ID:         uuid.NewString(),
		Path:       path,
		MediaType:  mediaType,
		FileSizeKB: size / 1024,
		AnalyzedAt: time.Now(),
	}
}

func (r *Result) setScore(score quality.QualityScore) {
	r.RawScore = score.RawScore
	r.MaxScore = score.MaxScore
	r.Percentage = score.Percentage()
	r.Grade = score.Grade()
	r.Advice = quality.Advice(r.Percentage)
	r.Indicator = string(quality.IndicatorFor(r.Percentage))
}

// Score returns the quality score the result was built from.
func (r *Result) Score() quality.QualityScore {
	return quality.QualityScore{RawScore: r.RawScore, MaxScore: r.MaxScore}
}
