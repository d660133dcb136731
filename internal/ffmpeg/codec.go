package ffmpeg

import (
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// CodecSettings are the encoder defaults for one container.
type CodecSettings struct {
	VideoCodec      string
	AudioCodec      string
	DefaultCRF      int
	ContainerFormat string
	FileExtension   string
	EncoderPresets  map[string]ffmpeg.KwArgs
}

const (
	// PresetRealtime keeps the encoder ahead of a live capture.
	PresetRealtime = "realtime"
	// PresetHighQuality trades encoder latency for smaller, cleaner output.
	PresetHighQuality = "high_quality"
)

var codecPresets = map[string]CodecSettings{
	"webm": {
		VideoCodec:      "libvpx-vp9",
		AudioCodec:      "libopus",
		DefaultCRF:      32,
		ContainerFormat: "webm",
		FileExtension:   ".webm",
		EncoderPresets: map[string]ffmpeg.KwArgs{
			PresetRealtime: {
				"deadline":      "realtime",
				"cpu-used":      8,
				"row-mt":        1,
				"tile-columns":  2,
				"lag-in-frames": 0,
			},
			PresetHighQuality: {
				"quality":        "best",
				"cpu-used":       2,
				"row-mt":         1,
				"tile-columns":   2,
				"frame-parallel": 1,
				"auto-alt-ref":   1,
				"lag-in-frames":  25,
			},
		},
	},
}

// GetCodecSettings falls back to webm for unknown formats.
func GetCodecSettings(outputFormat string) CodecSettings {
	if settings, ok := codecPresets[outputFormat]; ok {
		return settings
	}
	return codecPresets["webm"]
}

// HasPreset reports whether the container's encoder knows preset.
func HasPreset(outputFormat, preset string) bool {
	_, ok := GetCodecSettings(outputFormat).EncoderPresets[preset]
	return ok
}

// EnsureExtension swaps any video extension on filename for extension.
func EnsureExtension(filename, extension string) string {
	extensions := []string{".mp4", ".webm", ".mkv", ".avi", ".mov"}
	for _, ext := range extensions {
		filename = strings.TrimSuffix(filename, ext)
	}
	return filename + extension
}
