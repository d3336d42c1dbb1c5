package quality

import "strings"

// VideoMetadata is the container information needed to score a video.
// Zero BitrateBps and empty MimeType mean the field was not available.
type VideoMetadata struct {
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	BitrateBps uint64 `json:"bitrate_bps,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	HasAudio   bool   `json:"has_audio"`
}

// frameRatePoints is awarded to every video. Frame rate is not read from the
// container; the value assumes a standard 30fps capture.
const frameRatePoints = 15

// VideoBreakdown holds the points awarded per component.
type VideoBreakdown struct {
	Resolution int `json:"resolution"`
	Bitrate    int `json:"bitrate"`
	FrameRate  int `json:"frame_rate"`
	Codec      int `json:"codec"`
	Audio      int `json:"audio"`
}

// Total is the uncapped sum of all components.
func (b VideoBreakdown) Total() int {
	return b.Resolution + b.Bitrate + b.FrameRate + b.Codec + b.Audio
}

// AnalyzeVideo scores video metadata. Only zero dimensions are rejected;
// every other field has a fallback.
func AnalyzeVideo(meta VideoMetadata) (QualityScore, error) {
	score, _, err := AnalyzeVideoBreakdown(meta)
	return score, err
}

// AnalyzeVideoBreakdown is AnalyzeVideo plus the per-component points.
func AnalyzeVideoBreakdown(meta VideoMetadata) (QualityScore, VideoBreakdown, error) {
	if meta.Width == 0 || meta.Height == 0 {
		return QualityScore{}, VideoBreakdown{}, invalidInputError("zero video dimensions (%dx%d)", meta.Width, meta.Height)
	}

	pixels := uint64(meta.Width) * uint64(meta.Height)
	b := VideoBreakdown{
		Resolution: videoResolutionPoints(pixels),
		Bitrate:    bitratePoints(meta.BitrateBps, float64(pixels)/1_000_000),
		FrameRate:  frameRatePoints,
		Codec:      codecPoints(meta.MimeType),
	}
	if meta.HasAudio {
		b.Audio = 5
	}

	return NewQualityScore(b.Total()), b, nil
}

func videoResolutionPoints(pixels uint64) int {
	switch {
	case pixels >= 3840*2160:
		return 30
	case pixels >= 1920*1080:
		return 25
	case pixels >= 1280*720:
		return 15
	default:
		return 10
	}
}

// bitratePoints tiers the bitrate in Mbps per megapixel.
func bitratePoints(bitrateBps uint64, megapixels float64) int {
	if bitrateBps == 0 || megapixels <= 0 {
		return 5
	}
	perMP := float64(bitrateBps) / 1_000_000 / megapixels
	switch {
	case perMP >= 8:
		return 20
	case perMP >= 5:
		return 15
	case perMP >= 3:
		return 10
	default:
		return 5
	}
}

func codecPoints(mimeType string) int {
	mime := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mime, "hevc"), strings.Contains(mime, "h265"):
		return 15
	case strings.Contains(mime, "avc"), strings.Contains(mime, "h264"):
		return 12
	default:
		return 8
	}
}
