// Package media is the decodable source video a converter composites from.
package media

import (
	"image"
	"time"

	"github.com/ZacxDev/clipnship/internal/capture"
)

// EventType enumerates the playback notifications a Source emits.
type EventType int

const (
	MetadataLoaded EventType = iota
	Play
	Pause
	Seeking
	Seeked
	Ended
)

func (e EventType) String() string {
	switch e {
	case MetadataLoaded:
		return "loadedmetadata"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Seeking:
		return "seeking"
	case Seeked:
		return "seeked"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on the event loop.
type Event struct {
	Type     EventType
	Position time.Duration
}

// Source is a playable video with a media clock. Every method must be
// called on the event loop, and events are delivered there too.
type Source interface {
	// Width and Height are the intrinsic frame size, 0 until metadata loads.
	Width() int
	Height() int

	// Frame is the frame at the current position, nil before the first
	// frame is decoded.
	Frame() image.Image

	Position() time.Duration
	Duration() time.Duration

	Play() error
	Pause()
	Seek(pos time.Duration)

	// Gain is the output volume in [0,1].
	Gain() float64
	SetGain(gain float64)

	// Subscribe registers fn for every future event.
	Subscribe(fn func(Event))

	// CaptureStream exposes the source's own tracks. Only its audio is
	// used when rendering.
	CaptureStream() *capture.Stream
}
