// Package capture turns the destination surface and the source's audio into
// tracks a Recorder can encode.
package capture

import (
	"image"
	"time"

	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/google/uuid"
)

// Kind distinguishes video from audio tracks.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is one media track of a Stream.
type Track interface {
	ID() string
	Kind() Kind
	Stop()
}

// Stream is an ordered set of tracks.
type Stream struct {
	tracks []Track
}

// NewStream groups tracks into a stream.
func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns every track in order.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// VideoTracks returns the video tracks in order.
func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

// AudioTracks returns the audio tracks in order.
func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

func (s *Stream) byKind(k Kind) []Track {
	var out []Track
	for _, t := range s.Tracks() {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Frame is one sampled surface image. Release hands the buffer back to the
// track once the consumer is done with it.
type Frame struct {
	Image *image.RGBA
	At    time.Duration

	free chan *image.RGBA
}

// Release returns the buffer for reuse. The frame must not be used after.
func (f *Frame) Release() {
	select {
	case f.free <- f.Image:
	default:
	}
}

// framePool is how many surface copies a video track keeps in flight.
const framePool = 4

// VideoTrack samples a surface at a fixed rate. Sampling happens on the
// event loop, so a frame is never a half-painted surface.
type VideoTrack struct {
	id      string
	fps     int
	surface *surface.Surface
	sched   eventloop.Scheduler

	timer   eventloop.Timer
	frames  chan *Frame
	free    chan *image.RGBA
	ticks   int
	dropped int
	stopped bool
}

// MaxFPS is the highest sampling rate whose period is still a whole
// millisecond.
const MaxFPS = 1000

// CaptureSurface creates a video track of s at fps frames per second, clamped
// to [1, MaxFPS]. No frames are produced until Start.
func CaptureSurface(s *surface.Surface, fps int, sched eventloop.Scheduler) *VideoTrack {
	fps = max(1, min(fps, MaxFPS))
	t := &VideoTrack{
		id:      uuid.NewString(),
		fps:     fps,
		surface: s,
		sched:   sched,
		frames:  make(chan *Frame, framePool),
		free:    make(chan *image.RGBA, framePool),
	}
	for i := 0; i < framePool; i++ {
		t.free <- nil
	}
	return t
}

func (t *VideoTrack) ID() string { return t.id }
func (t *VideoTrack) Kind() Kind { return KindVideo }

// FPS is the sampling rate.
func (t *VideoTrack) FPS() int { return t.fps }

// Size of every produced frame.
func (t *VideoTrack) Size() (width, height int) {
	s := t.surface.Size()
	return s.Width, s.Height
}

// Frames delivers sampled frames. It is closed by Stop.
func (t *VideoTrack) Frames() <-chan *Frame { return t.frames }

// Dropped counts samples skipped because the consumer fell behind.
func (t *VideoTrack) Dropped() int { return t.dropped }

// Start begins sampling. Call on the event loop.
func (t *VideoTrack) Start() {
	if t.timer != nil || t.stopped {
		return
	}
	t.sample()
	t.timer = t.sched.Every(time.Second/time.Duration(t.fps), t.sample)
}

func (t *VideoTrack) sample() {
	if t.stopped {
		return
	}
	at := time.Duration(t.ticks) * time.Second / time.Duration(t.fps)
	t.ticks++

	var buf *image.RGBA
	select {
	case buf = <-t.free:
	default:
		t.dropped++
		return
	}
	buf = t.surface.Snapshot(buf)
	t.frames <- &Frame{Image: buf, At: at, free: t.free}
}

// Stop ends sampling and closes Frames. Call on the event loop.
func (t *VideoTrack) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.frames)
}

// AudioTrack is the source's audio, read straight from the media file.
type AudioTrack struct {
	id     string
	Path   string
	Offset time.Duration
}

// NewAudioTrack references the audio of the file at path from offset on.
func NewAudioTrack(path string, offset time.Duration) *AudioTrack {
	return &AudioTrack{id: uuid.NewString(), Path: path, Offset: offset}
}

func (t *AudioTrack) ID() string { return t.id }
func (t *AudioTrack) Kind() Kind { return KindAudio }
func (t *AudioTrack) Stop()      {}

// Chunk is one flushed piece of encoded output.
type Chunk struct {
	Seq  int
	Data []byte
}

// Recorder encodes a Stream and flushes the encoded bytes periodically.
type Recorder interface {
	// Start begins encoding and flushes a Chunk every timeslice.
	Start(timeslice time.Duration) error
	// Stop finishes encoding. The last OnData call happens before OnStop.
	Stop()
	OnData(fn func(Chunk))
	OnStop(fn func())
	MimeType() string
	// Err reports an encoder failure once stopped.
	Err() error
}

// RecorderFactory builds a Recorder for a combined stream.
type RecorderFactory func(stream *Stream, profile platform.Profile) (Recorder, error)
