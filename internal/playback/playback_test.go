package playback

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ZacxDev/clipnship/internal/media"
	"github.com/ZacxDev/clipnship/internal/testsupport"
	"github.com/ZacxDev/clipnship/pkg/types"
)

type fixture struct {
	loop   *testsupport.Loop
	source *testsupport.Source
	ctrl   *Controller
	draws  int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{loop: testsupport.NewLoop()}
	f.source = testsupport.NewSource(f.loop, 1920, 1080, 10*time.Second)
	f.ctrl = New(f.source, f.loop, func() { f.draws++ }, opts...)
	return f
}

func TestStartsStopped(t *testing.T) {
	f := newFixture(t)
	if f.ctrl.State() != types.PlaybackStateStopped || f.ctrl.Ticking() {
		t.Fatalf("initial state = %s ticking=%v", f.ctrl.State(), f.ctrl.Ticking())
	}
}

func TestPlayArmsOneTick(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.Play(); err != nil {
		t.Fatal(err)
	}
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStatePlaying {
		t.Fatalf("state = %s, want playing", f.ctrl.State())
	}
	if n := f.loop.ActiveTimers(); n != 1 {
		t.Fatalf("active ticks = %d, want 1", n)
	}
	if iv := f.loop.Timers()[0].Interval; iv != time.Second/60 {
		t.Fatalf("tick interval = %s, want ~16.67ms", iv)
	}

	f.loop.Tick(3)
	if f.draws != 3 {
		t.Fatalf("draws = %d, want 3", f.draws)
	}
}

func TestRepeatedPlayKeepsOneTick(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		if err := f.ctrl.Play(); err != nil {
			t.Fatal(err)
		}
		f.loop.RunPending()
		if n := f.loop.ActiveTimers(); n != 1 {
			t.Fatalf("after play #%d active ticks = %d", i+1, n)
		}
	}
	f.loop.Tick(1)
	if f.draws != 1 {
		t.Fatalf("one tick round drew %d frames", f.draws)
	}
}

func TestPauseCancelsTick(t *testing.T) {
	f := newFixture(t)
	_ = f.ctrl.Play()
	f.loop.RunPending()
	f.ctrl.Pause()
	f.loop.RunPending()

	if f.ctrl.State() != types.PlaybackStatePaused {
		t.Fatalf("state = %s, want paused", f.ctrl.State())
	}
	if f.loop.ActiveTimers() != 0 {
		t.Fatal("tick still armed after pause")
	}
	f.loop.Tick(2)
	if f.draws != 0 {
		t.Fatalf("drew %d frames while paused", f.draws)
	}
}

func TestPauseFromStoppedStaysStopped(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Pause()
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStateStopped {
		t.Fatalf("state = %s, want stopped", f.ctrl.State())
	}
}

func TestEndedStopsAndRunsHooksOnce(t *testing.T) {
	f := newFixture(t)
	ended := 0
	f.ctrl.OnEnded(func() { ended++ })

	_ = f.ctrl.Play()
	f.loop.RunPending()
	f.source.Advance(11 * time.Second)
	f.loop.RunPending()

	if f.ctrl.State() != types.PlaybackStateStopped {
		t.Fatalf("state = %s, want stopped", f.ctrl.State())
	}
	if f.loop.ActiveTimers() != 0 {
		t.Fatal("tick still armed after end")
	}
	if ended != 1 {
		t.Fatalf("ended hooks ran %d times", ended)
	}

	_ = f.ctrl.Play()
	f.loop.RunPending()
	f.source.Advance(11 * time.Second)
	f.loop.RunPending()
	if ended != 1 {
		t.Fatalf("one-shot hook ran again: %d", ended)
	}
}

func TestResetPausesThenSeeks(t *testing.T) {
	f := newFixture(t)
	_ = f.ctrl.Play()
	f.loop.RunPending()
	f.source.Advance(3 * time.Second)
	f.source.Calls = nil

	f.ctrl.Reset()
	if got := strings.Join(f.source.Calls, ","); got != "pause,seek:0s" {
		t.Fatalf("calls = %s, want pause then seek", got)
	}
	if f.ctrl.State() != types.PlaybackStatePaused {
		t.Fatalf("state right after Reset = %s", f.ctrl.State())
	}
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStatePaused {
		t.Fatalf("state after seek events = %s, want paused", f.ctrl.State())
	}
	if f.source.Position() != 0 {
		t.Fatalf("position = %s", f.source.Position())
	}
	if f.loop.ActiveTimers() != 0 {
		t.Fatal("tick armed after reset")
	}
}

func TestResetFromStopped(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Reset()
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStatePaused {
		t.Fatalf("state = %s, want paused", f.ctrl.State())
	}
}

func TestSeekedDrawsOnceInAnyState(t *testing.T) {
	for _, playing := range []bool{false, true} {
		f := newFixture(t)
		if playing {
			_ = f.ctrl.Play()
			f.loop.RunPending()
		}
		f.ctrl.Seek(2 * time.Second)

		f.source.Emit(media.Seeking)
		f.loop.RunPending()
		// Only seeked schedules a frame; the extra seeking adds none.
		if f.loop.PendingFrames() != 1 {
			t.Fatalf("playing=%v pending frames = %d, want 1", playing, f.loop.PendingFrames())
		}
		before := f.draws
		f.loop.RunFrame()
		if f.draws-before != 1 {
			t.Fatalf("playing=%v seek drew %d frames", playing, f.draws-before)
		}
	}
}

func TestSeekingRestoresPriorState(t *testing.T) {
	f := newFixture(t)
	_ = f.ctrl.Play()
	f.loop.RunPending()

	f.source.Emit(media.Seeking)
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStateSeeking {
		t.Fatalf("state = %s, want seeking", f.ctrl.State())
	}
	f.source.Emit(media.Seeked)
	f.loop.RunPending()
	if f.ctrl.State() != types.PlaybackStatePlaying {
		t.Fatalf("state = %s, want playing", f.ctrl.State())
	}
	if f.loop.ActiveTimers() != 1 {
		t.Fatal("seek disturbed the tick")
	}
}

func TestMetadataRewindsOnce(t *testing.T) {
	f := newFixture(t)
	f.source.LoadMetadata()
	f.loop.RunPending()
	f.source.LoadMetadata()
	f.loop.RunPending()

	seeks := 0
	for _, c := range f.source.Calls {
		if c == "seek:0s" {
			seeks++
		}
	}
	if seeks != 1 {
		t.Fatalf("metadata triggered %d seeks, want 1", seeks)
	}
}

func TestPlayError(t *testing.T) {
	f := newFixture(t)
	f.source.PlayErr = errors.New("decoder missing")
	if err := f.ctrl.Play(); err == nil {
		t.Fatal("Play succeeded")
	}
	if f.ctrl.Ticking() || f.ctrl.State() != types.PlaybackStateStopped {
		t.Fatal("failed play changed state")
	}
}

func TestTickRateOption(t *testing.T) {
	f := newFixture(t, WithTickRate(30))
	_ = f.ctrl.Play()
	if iv := f.loop.Timers()[0].Interval; iv != time.Second/30 {
		t.Fatalf("interval = %s", iv)
	}
}
