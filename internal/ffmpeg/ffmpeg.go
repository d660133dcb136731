package ffmpeg

import (
	"encoding/json"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoMetadata is what ffprobe reports about a source file.
type VideoMetadata struct {
	Duration  float64
	Width     int
	Height    int
	Codec     string
	FrameRate float64
	HasAudio  bool
}

// Processor runs ffprobe and ffmpeg processes for one converter.
type Processor struct {
	logger *slog.Logger
}

func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger: logger,
	}
}

// GetVideoMetadata runs ffprobe on inputPath. Files without a video stream, a duration
// or dimensions are rejected.
func (p *Processor) GetVideoMetadata(inputPath string) (*VideoMetadata, error) {
	out, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading metadata of %s", inputPath)
	}
	meta, err := parseMetadata(out)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading metadata of %s", inputPath)
	}
	p.logger.Debug("read source metadata",
		slog.String("path", inputPath),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
		slog.String("codec", meta.Codec),
		slog.Float64("duration", meta.Duration),
		slog.Float64("fps", meta.FrameRate),
		slog.Bool("audio", meta.HasAudio),
	)
	return meta, nil
}

func parseMetadata(out string) (*VideoMetadata, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		return nil, errors.WithStack(err)
	}

	streams, ok := data["streams"].([]interface{})
	if !ok || len(streams) == 0 {
		return nil, errors.New("no streams found in video")
	}

	var videoStream map[string]interface{}
	hasAudio := false
	for _, stream := range streams {
		s, ok := stream.(map[string]interface{})
		if !ok {
			continue
		}
		switch s["codec_type"] {
		case "video":
			if videoStream == nil {
				videoStream = s
			}
		case "audio":
			hasAudio = true
		}
	}

	if videoStream == nil {
		return nil, errors.New("no video stream found")
	}

	frameRate := parseRate(stringField(videoStream, "avg_frame_rate"))
	if frameRate == 0 {
		frameRate = parseRate(stringField(videoStream, "r_frame_rate"))
	}

	// Stream duration, then container duration, then frames over rate.
	duration := parseSeconds(stringField(videoStream, "duration"))

	if duration == 0 {
		if format, ok := data["format"].(map[string]interface{}); ok {
			duration = parseSeconds(stringField(format, "duration"))
		}
	}

	if duration == 0 && frameRate > 0 {
		if frames, err := strconv.ParseFloat(stringField(videoStream, "nb_frames"), 64); err == nil {
			duration = frames / frameRate
		}
	}

	if duration == 0 {
		return nil, errors.New("could not determine video duration")
	}

	width, _ := videoStream["width"].(float64)
	height, _ := videoStream["height"].(float64)
	if width <= 0 || height <= 0 {
		return nil, errors.New("video stream has no dimensions")
	}

	return &VideoMetadata{
		Duration:  duration,
		Width:     int(width),
		Height:    int(height),
		Codec:     stringField(videoStream, "codec_name"),
		FrameRate: frameRate,
		HasAudio:  hasAudio,
	}, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// parseRate reads ffprobe's "num/den" rates.
func parseRate(rate string) float64 {
	nums := strings.Split(rate, "/")
	if len(nums) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// GetOptimalThreadCount leaves a quarter of the cores to the decoder and the
// compositor, which run alongside the encoder.
func GetOptimalThreadCount() int {
	return int(math.Max(1, float64(runtime.NumCPU())*0.75))
}
