package types

// PlaybackState is the state of the preview/render playback controller.
type PlaybackState string

const (
	PlaybackStateStopped PlaybackState = "stopped"
	PlaybackStatePlaying PlaybackState = "playing"
	PlaybackStatePaused  PlaybackState = "paused"
	PlaybackStateSeeking PlaybackState = "seeking"
)

// MimeTypeWebMVP9 is the media type of every rendered clip.
const MimeTypeWebMVP9 = "video/webm;codecs=vp9"
