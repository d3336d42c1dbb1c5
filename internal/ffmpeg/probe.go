package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gwlsn/mediagrade/internal/quality"
)

// ErrNoVideoStream is returned when a file has no video stream to score.
var ErrNoVideoStream = errors.New("no video stream")

// ProbeResult contains metadata about a video file
type ProbeResult struct {
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	Format     string        `json:"format"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec,omitempty"`
	HasAudio   bool          `json:"has_audio"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Bitrate    int64         `json:"bitrate"` // bits per second, container first then stream
	FrameRate  float64       `json:"frame_rate"`
	MimeType   string        `json:"mime_type"` // e.g. "video/avc", "video/hevc"

	PixelFormat string `json:"pix_fmt"`   // e.g. "yuv420p10le"
	BitDepth    int    `json:"bit_depth"` // 8, 10, 12
	IsHDR       bool   `json:"is_hdr"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`

	PixelFormat      string `json:"pix_fmt"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	ColorTransfer    string `json:"color_transfer"`
	ColorPrimaries   string `json:"color_primaries"`
}

// Prober wraps ffprobe functionality
type Prober struct {
	ffprobePath string
}

// NewProber creates a new Prober with the given ffprobe path
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(path, output)
}

// VideoMetadata probes path and returns the fields the video scorer reads.
func (p *Prober) VideoMetadata(ctx context.Context, path string) (quality.VideoMetadata, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return quality.VideoMetadata{}, err
	}
	return result.Metadata(), nil
}

// Metadata converts the probe result for scoring. Negative values become
// zero, which the scorer treats as missing.
func (r *ProbeResult) Metadata() quality.VideoMetadata {
	meta := quality.VideoMetadata{
		MimeType: r.MimeType,
		HasAudio: r.HasAudio,
	}
	if r.Width > 0 {
		meta.Width = uint32(r.Width)
	}
	if r.Height > 0 {
		meta.Height = uint32(r.Height)
	}
	if r.Bitrate > 0 {
		meta.BitrateBps = uint64(r.Bitrate)
	}
	return meta
}

func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var probeOutput ffprobeOutput
	if err := json.Unmarshal(output, &probeOutput); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{
		Path:   path,
		Format: probeOutput.Format.FormatName,
	}

	// Parse format-level metadata
	if probeOutput.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(probeOutput.Format.Size, 10, 64)
	}
	if probeOutput.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(probeOutput.Format.BitRate, 10, 64)
	}
	if probeOutput.Format.Duration != "" {
		durationSec, _ := strconv.ParseFloat(probeOutput.Format.Duration, 64)
		result.Duration = time.Duration(durationSec * float64(time.Second))
	}

	var streamBitrate int64
	for i := range probeOutput.Streams {
		stream := &probeOutput.Streams[i]
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" { // Take first video stream
				result.VideoCodec = stream.CodecName
				result.MimeType = codecMimeType(stream.CodecName)
				result.Width = stream.Width
				result.Height = stream.Height
				result.FrameRate = parseFrameRate(stream.RFrameRate)
				if result.FrameRate == 0 {
					result.FrameRate = parseFrameRate(stream.AvgFrameRate)
				}
				if stream.BitRate != "" {
					streamBitrate, _ = strconv.ParseInt(stream.BitRate, 10, 64)
				}
				result.PixelFormat = stream.PixelFormat
				result.BitDepth, _ = strconv.Atoi(stream.BitsPerRawSample)
				if result.BitDepth <= 0 {
					result.BitDepth = pixFmtBitDepth(stream.PixelFormat)
				}
				result.IsHDR = isHDR(stream.ColorTransfer, stream.ColorPrimaries, result.BitDepth)
			}
		case "audio":
			result.HasAudio = true
			if result.AudioCodec == "" { // Take first audio stream
				result.AudioCodec = stream.CodecName
			}
		}
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	if result.Bitrate <= 0 {
		result.Bitrate = streamBitrate
	}

	return result, nil
}

// codecMimeType maps an ffprobe codec name to the mime type the scorer
// recognizes.
func codecMimeType(codec string) string {
	codec = strings.ToLower(codec)
	switch codec {
	case "":
		return ""
	case "h264", "avc", "avc1", "x264":
		return "video/avc"
	case "hevc", "h265", "x265", "hvc1":
		return "video/hevc"
	default:
		return "video/" + codec
	}
}

// pixFmtBitDepth reads the bit depth from a pixel format name such as
// "yuv420p10le" or "p010le". Unknown formats are 8-bit.
func pixFmtBitDepth(pixFmt string) int {
	switch {
	case strings.Contains(pixFmt, "12le"), strings.Contains(pixFmt, "12be"):
		return 12
	case strings.Contains(pixFmt, "10le"), strings.Contains(pixFmt, "10be"), strings.Contains(pixFmt, "p010"):
		return 10
	default:
		return 8
	}
}

// isHDR reports PQ or HLG transfer. Untagged 10-bit BT.2020 streams also count.
func isHDR(transfer, primaries string, bitDepth int) bool {
	switch strings.ToLower(transfer) {
	case "smpte2084", "arib-std-b67":
		return true
	case "":
		return bitDepth >= 10 && strings.EqualFold(primaries, "bt2020")
	default:
		return false
	}
}

// parseFrameRate parses a frame rate string like "30000/1001" or "30/1"
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	n, _ := strconv.ParseFloat(num, 64)
	d, _ := strconv.ParseFloat(den, 64)
	if d == 0 {
		return 0
	}
	return n / d
}
