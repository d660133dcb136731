package platform

import (
	"sort"

	"github.com/pkg/errors"
)

// Profile describes one encoder output target.
type Profile interface {
	// GetName returns the profile name used on the command line and in config
	GetName() string

	// GetMaxDimensions returns the largest canvas the profile accepts
	GetMaxDimensions() (width, height int)

	// GetVideoCodec returns the ffmpeg video encoder
	GetVideoCodec() string

	// GetAudioCodec returns the ffmpeg audio encoder
	GetAudioCodec() string

	// GetVideoBitrate returns the target video bitrate
	GetVideoBitrate() string

	// GetAudioBitrate returns the target audio bitrate
	GetAudioBitrate() string

	// GetOutputFormat returns the container format (e.g., "webm")
	GetOutputFormat() string

	// GetMimeType returns the media type the encoded output is tagged with
	GetMimeType() string
}

var profiles = make(map[string]Profile)

// Register adds a profile to the registry
func Register(p Profile) {
	profiles[p.GetName()] = p
}

// Get returns a profile by name
func Get(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, errors.Errorf("unsupported output profile: %s", name)
	}
	return p, nil
}

// GetSupportedProfiles returns the registered profile names in sorted order
func GetSupportedProfiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
