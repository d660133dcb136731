package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/media"
)

// Source is a scripted media.Source. Events are posted to the scheduler the
// same way the ffmpeg-backed source posts them.
type Source struct {
	Path string

	// PlayErr is returned by the next Play call.
	PlayErr error
	// Calls records play, pause and seek calls in order.
	Calls []string

	sched    eventloop.Scheduler
	width    int
	height   int
	duration time.Duration
	position time.Duration
	playing  bool
	gain     float64
	frame    *image.RGBA
	subs     []func(media.Event)
}

// NewSource builds a width x height source of the given duration filled
// with an opaque color.
func NewSource(sched eventloop.Scheduler, width, height int, duration time.Duration) *Source {
	s := &Source{
		Path:     "testdata/source.mp4",
		sched:    sched,
		width:    width,
		height:   height,
		duration: duration,
		gain:     1,
	}
	s.SetFrame(SolidFrame(width, height, color.RGBA{R: 200, G: 100, B: 50, A: 255}))
	return s
}

// SolidFrame returns a width x height image of one color.
func SolidFrame(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// SetFrame replaces the current frame.
func (s *Source) SetFrame(img *image.RGBA) {
	s.frame = img
	if img != nil {
		s.width = img.Rect.Dx()
		s.height = img.Rect.Dy()
	}
}

func (s *Source) Width() int  { return s.width }
func (s *Source) Height() int { return s.height }

func (s *Source) Frame() image.Image {
	if s.frame == nil {
		return nil
	}
	return s.frame
}

func (s *Source) Position() time.Duration { return s.position }
func (s *Source) Duration() time.Duration { return s.duration }

// Playing reports whether the media clock is running.
func (s *Source) Playing() bool { return s.playing }

func (s *Source) Play() error {
	s.Calls = append(s.Calls, "play")
	if err := s.PlayErr; err != nil {
		s.PlayErr = nil
		return err
	}
	if s.position >= s.duration {
		s.position = 0
	}
	s.playing = true
	s.emit(media.Play)
	return nil
}

func (s *Source) Pause() {
	s.Calls = append(s.Calls, "pause")
	if !s.playing {
		return
	}
	s.playing = false
	s.emit(media.Pause)
}

func (s *Source) Seek(pos time.Duration) {
	s.Calls = append(s.Calls, fmt.Sprintf("seek:%s", pos))
	if pos < 0 {
		pos = 0
	}
	if pos > s.duration {
		pos = s.duration
	}
	s.position = pos
	s.emit(media.Seeking)
	s.emit(media.Seeked)
}

func (s *Source) Gain() float64 { return s.gain }

func (s *Source) SetGain(gain float64) { s.gain = gain }

func (s *Source) Subscribe(fn func(media.Event)) {
	s.subs = append(s.subs, fn)
}

func (s *Source) CaptureStream() *capture.Stream {
	return capture.NewStream(capture.NewAudioTrack(s.Path, 0))
}

// LoadMetadata emits the metadata-loaded event.
func (s *Source) LoadMetadata() {
	s.emit(media.MetadataLoaded)
}

// Advance moves the clock forward while playing and ends playback at the
// duration.
func (s *Source) Advance(d time.Duration) {
	if !s.playing {
		return
	}
	s.position += d
	if s.position >= s.duration {
		s.position = s.duration
		s.playing = false
		s.emit(media.Ended)
	}
}

// Emit delivers an arbitrary event, for driving transitions directly.
func (s *Source) Emit(t media.EventType) {
	s.emit(t)
}

func (s *Source) emit(t media.EventType) {
	ev := media.Event{Type: t, Position: s.position}
	s.sched.Post(func() {
		for _, fn := range s.subs {
			fn(ev)
		}
	})
}

var _ media.Source = (*Source)(nil)
