package media

import (
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/ffmpeg"
)

const (
	fallbackFrameRate = 30
	framePool         = 3
)

// FrameDecoder yields consecutive frames into caller-owned buffers.
type FrameDecoder interface {
	ReadFrame(dst *image.RGBA) error
	Close() error
}

// Decoders is what a FileSource needs from ffmpeg.
type Decoders interface {
	GetVideoMetadata(path string) (*ffmpeg.VideoMetadata, error)
	StartDecoder(path string, opts ffmpeg.DecodeOptions) (FrameDecoder, error)
}

type processorDecoders struct {
	p *ffmpeg.Processor
}

func (d processorDecoders) GetVideoMetadata(path string) (*ffmpeg.VideoMetadata, error) {
	return d.p.GetVideoMetadata(path)
}

func (d processorDecoders) StartDecoder(path string, opts ffmpeg.DecodeOptions) (FrameDecoder, error) {
	return d.p.StartDecoder(path, opts)
}

// FromProcessor adapts an ffmpeg.Processor.
func FromProcessor(p *ffmpeg.Processor) Decoders {
	return processorDecoders{p: p}
}

// FileSource plays a media file by decoding it with ffmpeg in real time.
// Decoding runs on worker goroutines; frames and events reach the loop by
// posting, where every method must be called.
type FileSource struct {
	path     string
	sched    eventloop.Scheduler
	decoders Decoders
	logger   *slog.Logger

	width         int
	height        int
	duration      time.Duration
	frameInterval time.Duration
	hasAudio      bool

	position time.Duration
	frame    *image.RGBA
	playing  bool
	gain     float64
	subs     []func(Event)
	closed   bool

	// gen invalidates frames posted by decoders that have since been
	// stopped; seekGen does the same for superseded seeks. frameGen is the
	// gen of the decoder that produced frame.
	gen      int
	seekGen  int
	frameGen int
	dec      FrameDecoder
	stop     chan struct{}
	free     chan *image.RGBA
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *FileSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open reads the metadata of path and returns a paused source positioned at 0. The
// metadata-loaded event is posted to sched.
func Open(path string, sched eventloop.Scheduler, decoders Decoders, opts ...FileOption) (*FileSource, error) {
	meta, err := decoders.GetVideoMetadata(path)
	if err != nil {
		return nil, err
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, errors.Errorf("%s has no video stream", path)
	}

	s := &FileSource{
		path:     path,
		sched:    sched,
		decoders: decoders,
		logger:   slog.Default(),
		width:    meta.Width,
		height:   meta.Height,
		duration: time.Duration(meta.Duration * float64(time.Second)),
		hasAudio: meta.HasAudio,
		gain:     1,
		free:     make(chan *image.RGBA, framePool),
	}
	for _, opt := range opts {
		opt(s)
	}
	fps := meta.FrameRate
	if fps <= 0 {
		fps = fallbackFrameRate
	}
	s.frameInterval = time.Duration(float64(time.Second) / fps)
	for i := 0; i < framePool; i++ {
		s.free <- s.newFrame()
	}

	s.emit(MetadataLoaded)
	return s, nil
}

func (s *FileSource) newFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, s.width, s.height))
}

// Path is the file being played.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Width() int  { return s.width }
func (s *FileSource) Height() int { return s.height }

func (s *FileSource) Frame() image.Image {
	if s.frame == nil {
		return nil
	}
	return s.frame
}

func (s *FileSource) Position() time.Duration { return s.position }
func (s *FileSource) Duration() time.Duration { return s.duration }

// Gain has no audible effect: the source never plays sound itself and
// renders read audio from the file.
func (s *FileSource) Gain() float64 { return s.gain }

func (s *FileSource) SetGain(gain float64) {
	s.gain = min(max(gain, 0), 1)
}

func (s *FileSource) Subscribe(fn func(Event)) {
	s.subs = append(s.subs, fn)
}

// CaptureStream returns the file's audio, if any. The track always starts
// at the beginning of the file, which is where renders start.
func (s *FileSource) CaptureStream() *capture.Stream {
	if !s.hasAudio {
		return capture.NewStream()
	}
	return capture.NewStream(capture.NewAudioTrack(s.path, 0))
}

// Play starts real-time decoding from the current position, rewinding first
// if playback had reached the end.
func (s *FileSource) Play() error {
	if s.closed {
		return errors.New("source is closed")
	}
	if s.playing {
		return nil
	}
	if s.position >= s.duration {
		s.position = 0
	}
	if err := s.startDecoding(); err != nil {
		return err
	}
	s.playing = true
	s.emit(Play)
	return nil
}

func (s *FileSource) Pause() {
	if !s.playing {
		return
	}
	s.stopDecoding()
	s.playing = false
	s.emit(Pause)
}

// Seek clamps pos to the media, decodes the frame there and resumes
// playback afterwards if it was running.
func (s *FileSource) Seek(pos time.Duration) {
	if s.closed {
		return
	}
	pos = min(max(pos, 0), s.duration)
	s.stopDecoding()
	s.position = pos
	s.emit(Seeking)

	s.seekGen++
	gen := s.seekGen
	dst := s.newFrame()
	go func() {
		err := s.decodeOne(pos, dst)
		s.sched.Post(func() {
			if gen != s.seekGen || s.closed {
				return
			}
			switch {
			case err != nil:
				s.logger.Warn("seek decode failed", slog.Duration("position", pos), slog.String("error", err.Error()))
			case s.dec != nil && s.frameGen == s.gen:
				// Playback restarted from pos and already showed a later frame.
			default:
				s.swap(dst)
			}
			s.emit(Seeked)
			if s.playing && s.dec == nil {
				if err := s.startDecoding(); err != nil {
					s.logger.Error("failed to resume after seek", slog.String("error", err.Error()))
					s.playing = false
					s.emit(Pause)
				}
			}
		})
	}()
}

func (s *FileSource) decodeOne(pos time.Duration, dst *image.RGBA) error {
	dec, err := s.decoders.StartDecoder(s.path, ffmpeg.DecodeOptions{
		Start:  pos,
		Frames: 1,
		Width:  s.width,
		Height: s.height,
	})
	if err != nil {
		return err
	}
	defer dec.Close()
	return dec.ReadFrame(dst)
}

// Close stops decoding. Events still queued are dropped.
func (s *FileSource) Close() {
	if s.closed {
		return
	}
	s.stopDecoding()
	s.playing = false
	s.closed = true
}

func (s *FileSource) startDecoding() error {
	s.stopDecoding()
	dec, err := s.decoders.StartDecoder(s.path, ffmpeg.DecodeOptions{
		Start:    s.position,
		Realtime: true,
		Width:    s.width,
		Height:   s.height,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start playback")
	}
	s.dec = dec
	s.stop = make(chan struct{})
	go s.read(s.gen, dec, s.stop, s.position)
	return nil
}

func (s *FileSource) stopDecoding() {
	s.gen++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if dec := s.dec; dec != nil {
		s.dec = nil
		go dec.Close()
	}
}

// read runs on its own goroutine and only touches buffers taken from free.
func (s *FileSource) read(gen int, dec FrameDecoder, stop <-chan struct{}, start time.Duration) {
	for n := 1; ; n++ {
		var buf *image.RGBA
		select {
		case buf = <-s.free:
		case <-stop:
			return
		}
		if err := dec.ReadFrame(buf); err != nil {
			s.recycle(buf)
			s.sched.Post(func() { s.decodeFinished(gen, err) })
			return
		}
		pos := start + time.Duration(n)*s.frameInterval
		s.sched.Post(func() {
			if gen != s.gen {
				s.recycle(buf)
				return
			}
			s.swap(buf)
			s.frameGen = gen
			s.position = min(pos, s.duration)
		})
	}
}

func (s *FileSource) decodeFinished(gen int, err error) {
	if gen != s.gen {
		return
	}
	s.stopDecoding()
	s.playing = false
	if errors.Is(err, io.EOF) {
		s.position = s.duration
		s.emit(Ended)
		return
	}
	s.logger.Error("decoder failed", slog.String("path", s.path), slog.String("error", err.Error()))
	s.emit(Pause)
}

func (s *FileSource) swap(img *image.RGBA) {
	old := s.frame
	s.frame = img
	if old != nil {
		s.recycle(old)
	}
}

func (s *FileSource) recycle(img *image.RGBA) {
	select {
	case s.free <- img:
	default:
	}
}

func (s *FileSource) emit(t EventType) {
	ev := Event{Type: t, Position: s.position}
	s.sched.Post(func() {
		if s.closed {
			return
		}
		for _, fn := range s.subs {
			fn(ev)
		}
	})
}

var _ Source = (*FileSource)(nil)
