// Package quality scores decoded images and video metadata on a 0-100 scale
// and maps the result to a grade and improvement advice. It performs no I/O.
package quality

import "github.com/goccy/go-json"

// MaxScore is the upper bound for every quality score.
const MaxScore = 100

// QualityScore is the result of scoring one image or video.
type QualityScore struct {
	RawScore int `json:"raw_score"`
	MaxScore int `json:"max_score"`
}

// NewQualityScore returns a score out of MaxScore, clamping raw into [0, MaxScore].
func NewQualityScore(raw int) QualityScore {
	if raw < 0 {
		raw = 0
	}
	if raw > MaxScore {
		raw = MaxScore
	}
	return QualityScore{RawScore: raw, MaxScore: MaxScore}
}

// Percentage returns floor(raw / max * 100).
func (s QualityScore) Percentage() int {
	if s.MaxScore <= 0 || s.RawScore <= 0 {
		return 0
	}
	return s.RawScore * 100 / s.MaxScore
}

// Grade returns the short label of the band the percentage falls into.
func (s QualityScore) Grade() string {
	return BandFor(s.Percentage()).Grade
}

// MarshalJSON includes the derived percentage and grade so API clients do not
// have to recompute them.
func (s QualityScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RawScore   int    `json:"raw_score"`
		MaxScore   int    `json:"max_score"`
		Percentage int    `json:"percentage"`
		Grade      string `json:"grade"`
	}{
		RawScore:   s.RawScore,
		MaxScore:   s.MaxScore,
		Percentage: s.Percentage(),
		Grade:      s.Grade(),
	})
}
