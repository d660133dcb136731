package testsupport

import (
	"time"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/platform"
)

// Recorder is a capture.Recorder that produces whatever the test emits.
type Recorder struct {
	Stream    *capture.Stream
	Profile   platform.Profile
	Timeslice time.Duration
	Started   bool
	Stopped   bool
	StartErr  error
	StopErr   error

	sched  eventloop.Scheduler
	seq    int
	onData func(capture.Chunk)
	onStop func()
}

// NewRecorder builds a fake bound to sched.
func NewRecorder(sched eventloop.Scheduler, stream *capture.Stream, profile platform.Profile) *Recorder {
	return &Recorder{Stream: stream, Profile: profile, sched: sched}
}

// RecorderFactory returns a capture.RecorderFactory that hands out fakes and
// records them in *made.
func RecorderFactory(sched eventloop.Scheduler, made *[]*Recorder) capture.RecorderFactory {
	return func(stream *capture.Stream, profile platform.Profile) (capture.Recorder, error) {
		r := NewRecorder(sched, stream, profile)
		*made = append(*made, r)
		return r, nil
	}
}

func (r *Recorder) Start(timeslice time.Duration) error {
	if r.StartErr != nil {
		return r.StartErr
	}
	r.Started = true
	r.Timeslice = timeslice
	return nil
}

// Stop posts the stop notification like a real encoder draining.
func (r *Recorder) Stop() {
	if r.Stopped {
		return
	}
	r.Stopped = true
	r.sched.Post(func() {
		if r.onStop != nil {
			r.onStop()
		}
	})
}

// Emit delivers one chunk synchronously.
func (r *Recorder) Emit(data []byte) {
	r.seq++
	if r.onData != nil {
		r.onData(capture.Chunk{Seq: r.seq, Data: data})
	}
}

func (r *Recorder) OnData(fn func(capture.Chunk)) { r.onData = fn }
func (r *Recorder) OnStop(fn func())              { r.onStop = fn }

func (r *Recorder) MimeType() string {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.GetMimeType()
}

func (r *Recorder) Err() error { return r.StopErr }

var _ capture.Recorder = (*Recorder)(nil)
