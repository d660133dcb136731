package media

import (
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/ffmpeg"
	"github.com/ZacxDev/clipnship/internal/logging"
)

type fakeDecoder struct {
	remaining int
	value     byte
	gate      chan struct{}
	block     chan struct{}
	closeOnce sync.Once
}

func (d *fakeDecoder) ReadFrame(dst *image.RGBA) error {
	if d.gate != nil {
		<-d.gate
	}
	if d.remaining == 0 {
		if d.block != nil {
			<-d.block
			return errors.New("decoder killed")
		}
		return io.EOF
	}
	d.remaining--
	for i := range dst.Pix {
		dst.Pix[i] = d.value
	}
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closeOnce.Do(func() {
		if d.block != nil {
			close(d.block)
		}
	})
	return nil
}

type fakeDecoders struct {
	mu      sync.Mutex
	meta    *ffmpeg.VideoMetadata
	openErr error
	// frames per playback decoder; -1 delivers live frames, then blocks
	// until closed.
	frames int
	live   int
	// seekGate holds one-frame seek decodes until closed.
	seekGate chan struct{}
	starts   []ffmpeg.DecodeOptions
}

func (f *fakeDecoders) GetVideoMetadata(string) (*ffmpeg.VideoMetadata, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.meta, nil
}

func (f *fakeDecoders) StartDecoder(_ string, opts ffmpeg.DecodeOptions) (FrameDecoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, opts)
	if opts.Frames == 1 {
		return &fakeDecoder{remaining: 1, value: 0x40, gate: f.seekGate}, nil
	}
	if f.frames < 0 {
		return &fakeDecoder{remaining: f.live, value: 0x80, block: make(chan struct{})}, nil
	}
	return &fakeDecoder{remaining: f.frames, value: 0x80}, nil
}

func (f *fakeDecoders) started() []ffmpeg.DecodeOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ffmpeg.DecodeOptions(nil), f.starts...)
}

type harness struct {
	loop   *eventloop.Loop
	dec    *fakeDecoders
	source *FileSource
	events chan EventType
}

func newHarness(t *testing.T, frames int) *harness {
	t.Helper()
	h := &harness{
		loop: eventloop.New(),
		dec: &fakeDecoders{
			meta:   &ffmpeg.VideoMetadata{Width: 8, Height: 4, Duration: 0.5, FrameRate: 10, HasAudio: true},
			frames: frames,
		},
		events: make(chan EventType, 64),
	}
	t.Cleanup(h.loop.Close)

	var err error
	h.do(t, func() {
		h.source, err = Open("clip.mp4", h.loop, h.dec, WithFileLogger(logging.NewNop()))
		if err == nil {
			h.source.Subscribe(func(ev Event) { h.events <- ev.Type })
		}
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h
}

func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	if err := h.loop.Do(fn); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) expect(t *testing.T, want ...EventType) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-h.events:
			if got != w {
				t.Fatalf("event = %s, want %s", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", w)
		}
	}
}

func (h *harness) quiet(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.events:
		t.Fatalf("unexpected event %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOpenLoadsMetadata(t *testing.T) {
	h := newHarness(t, 0)
	h.expect(t, MetadataLoaded)

	h.do(t, func() {
		s := h.source
		if s.Width() != 8 || s.Height() != 4 || s.Duration() != 500*time.Millisecond {
			t.Errorf("metadata = %dx%d %s", s.Width(), s.Height(), s.Duration())
		}
		if s.Frame() != nil || s.Position() != 0 || s.Gain() != 1 {
			t.Error("fresh source is not rewound")
		}
	})
}

func TestOpenErrors(t *testing.T) {
	loop := eventloop.New()
	defer loop.Close()

	if _, err := Open("x", loop, &fakeDecoders{openErr: errors.New("no such file")}); err == nil {
		t.Fatal("open failure ignored")
	}
	if _, err := Open("x", loop, &fakeDecoders{meta: &ffmpeg.VideoMetadata{Duration: 3}}); err == nil {
		t.Fatal("audio-only file accepted")
	}
}

func TestSeekDecodesFrame(t *testing.T) {
	h := newHarness(t, 0)
	h.expect(t, MetadataLoaded)

	h.do(t, func() { h.source.Seek(time.Hour) })
	h.expect(t, Seeking, Seeked)

	h.do(t, func() {
		if h.source.Position() != 500*time.Millisecond {
			t.Errorf("position = %s, want clamp to duration", h.source.Position())
		}
		img, ok := h.source.Frame().(*image.RGBA)
		if !ok || img.Pix[0] != 0x40 {
			t.Error("seek did not decode a frame")
		}
	})
	starts := h.dec.started()
	if len(starts) != 1 || starts[0].Frames != 1 || starts[0].Start != 500*time.Millisecond {
		t.Fatalf("decoder starts = %+v", starts)
	}
}

func TestPlayRunsToEnd(t *testing.T) {
	h := newHarness(t, 5)
	h.expect(t, MetadataLoaded)

	h.do(t, func() {
		if err := h.source.Play(); err != nil {
			t.Error(err)
		}
	})
	h.expect(t, Play, Ended)

	h.do(t, func() {
		if h.source.Position() != h.source.Duration() {
			t.Errorf("position = %s at end", h.source.Position())
		}
		img, ok := h.source.Frame().(*image.RGBA)
		if !ok || img.Pix[0] != 0x80 {
			t.Error("played frames never reached the source")
		}
		// Playing again rewinds.
		if err := h.source.Play(); err != nil {
			t.Error(err)
		}
	})
	h.expect(t, Play, Ended)

	starts := h.dec.started()
	if len(starts) != 2 || !starts[1].Realtime || starts[1].Start != 0 {
		t.Fatalf("decoder starts = %+v", starts)
	}
}

func TestPauseStopsDecoder(t *testing.T) {
	h := newHarness(t, -1)
	h.expect(t, MetadataLoaded)

	h.do(t, func() { _ = h.source.Play() })
	h.expect(t, Play)
	h.do(t, func() {
		h.source.Pause()
		h.source.Pause()
	})
	h.expect(t, Pause)
	h.quiet(t)
}

func TestSeekWhilePlayingResumes(t *testing.T) {
	h := newHarness(t, -1)
	h.expect(t, MetadataLoaded)

	h.do(t, func() { _ = h.source.Play() })
	h.expect(t, Play)
	h.do(t, func() { h.source.Seek(200 * time.Millisecond) })
	h.expect(t, Seeking, Seeked)

	// The decoder restarts before Seeked reaches subscribers.
	starts := h.dec.started()
	last := starts[len(starts)-1]
	if !last.Realtime || last.Start != 200*time.Millisecond {
		t.Fatalf("playback not resumed from the seek target: %+v", starts)
	}
}

func TestSlowSeekKeepsNewerPlaybackFrame(t *testing.T) {
	h := newHarness(t, -1)
	h.expect(t, MetadataLoaded)
	h.dec.live = 1
	h.dec.seekGate = make(chan struct{})

	// Reset followed by an immediate Play, as a render does.
	h.do(t, func() {
		h.source.Seek(0)
		if err := h.source.Play(); err != nil {
			t.Error(err)
		}
	})
	h.expect(t, Seeking, Play)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var v byte
		h.do(t, func() {
			if h.source.frame != nil {
				v = h.source.frame.Pix[0]
			}
		})
		if v == 0x80 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("playback never delivered a frame")
		}
		time.Sleep(time.Millisecond)
	}

	close(h.dec.seekGate)
	h.expect(t, Seeked)
	h.do(t, func() {
		if got := h.source.frame.Pix[0]; got != 0x80 {
			t.Errorf("frame = %#x after late seek, want playback frame 0x80", got)
		}
	})
}

func TestGainIsClamped(t *testing.T) {
	h := newHarness(t, 0)
	h.do(t, func() {
		h.source.SetGain(3)
		if h.source.Gain() != 1 {
			t.Errorf("gain = %v", h.source.Gain())
		}
		h.source.SetGain(0.001)
		if h.source.Gain() != 0.001 {
			t.Errorf("gain = %v", h.source.Gain())
		}
	})
}

func TestCaptureStream(t *testing.T) {
	h := newHarness(t, 0)
	h.do(t, func() {
		if n := len(h.source.CaptureStream().AudioTracks()); n != 1 {
			t.Errorf("audio tracks = %d", n)
		}
		h.source.hasAudio = false
		if n := len(h.source.CaptureStream().Tracks()); n != 0 {
			t.Errorf("silent file exposes %d tracks", n)
		}
	})
}

func TestClosedSourceRefusesPlay(t *testing.T) {
	h := newHarness(t, 0)
	h.do(t, func() {
		h.source.Close()
		if err := h.source.Play(); err == nil {
			t.Error("Play on closed source succeeded")
		}
	})
}
