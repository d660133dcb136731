// Package render records the live composite plus the source audio into an
// encoded clip.
package render

import (
	"bytes"
	"log/slog"
	"math"
	"time"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/logging"
	"github.com/ZacxDev/clipnship/internal/media"
	"github.com/ZacxDev/clipnship/internal/metrics"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DefaultTimeslice is how often encoded data is flushed and progress
	// reported.
	DefaultTimeslice = 500 * time.Millisecond
	// DefaultMutedGain keeps the source audible to capture but quiet.
	DefaultMutedGain = 0.001
)

// ErrRenderInProgress is returned when Render is called before the previous
// render has finished.
var ErrRenderInProgress = errors.New("render already in progress")

// ErrAborted completes a job whose render was stopped by Abort.
var ErrAborted = errors.New("render aborted")

// ErrInvalidFPS is returned for a render rate outside [1, capture.MaxFPS].
var ErrInvalidFPS = errors.New("render fps out of range")

// Output is an encoded clip.
type Output struct {
	MimeType string
	Data     []byte
}

// Size is the encoded length in bytes.
func (o *Output) Size() int {
	if o == nil {
		return 0
	}
	return len(o.Data)
}

// Playback is the part of the playback controller a render drives.
type Playback interface {
	Reset()
	Play() error
	OnEnded(fn func())
}

// Pipeline runs one render at a time.
type Pipeline struct {
	surface     *surface.Surface
	source      media.Source
	playback    Playback
	sched       eventloop.Scheduler
	newRecorder capture.RecorderFactory

	profile   platform.Profile
	timeslice time.Duration
	mutedGain float64
	metrics   *metrics.Metrics
	logger    *slog.Logger

	active *session
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProfile selects the output profile.
func WithProfile(p platform.Profile) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.profile = p
		}
	}
}

// WithTimeslice sets the encoder flush interval.
func WithTimeslice(d time.Duration) Option {
	return func(pl *Pipeline) {
		if d > 0 {
			pl.timeslice = d
		}
	}
}

// WithMutedGain sets the source gain held during a render.
func WithMutedGain(g float64) Option {
	return func(pl *Pipeline) {
		if g >= 0 && g <= 1 {
			pl.mutedGain = g
		}
	}
}

// WithMetrics records render counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(pl *Pipeline) {
		if logger != nil {
			pl.logger = logger
		}
	}
}

// New builds a pipeline. newRecorder constructs the encoder for each render.
func New(s *surface.Surface, source media.Source, pb Playback, sched eventloop.Scheduler, newRecorder capture.RecorderFactory, opts ...Option) (*Pipeline, error) {
	profile, err := platform.Get(platform.DefaultProfile)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		surface:     s,
		source:      source,
		playback:    pb,
		sched:       sched,
		newRecorder: newRecorder,
		profile:     profile,
		timeslice:   DefaultTimeslice,
		mutedGain:   DefaultMutedGain,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Active reports whether a render is in flight.
func (p *Pipeline) Active() bool {
	return p.active != nil
}

type session struct {
	id       string
	rec      capture.Recorder
	job      *Job
	chunks   [][]byte
	size     int
	progress float64
	sampler  *logging.ProgressSampler
	finished bool
}

// Abort stops the active render without delivering its output. The job
// completes with ErrAborted.
func (p *Pipeline) Abort() {
	sess := p.active
	if sess == nil {
		return
	}
	sess.finished = true
	p.active = nil
	p.source.SetGain(1)
	sess.rec.Stop()
	sess.job.finish(nil, ErrAborted)
	p.logger.Warn("render aborted", slog.String("render_id", sess.id))
}

// Render starts recording. It returns once capture and playback are armed;
// onFinish is called on the event loop when the source ends and the encoder
// has drained. onProgress, if set, is called with a value in [0,1] after
// every flushed chunk and never decreases. Must be called on the loop.
func (p *Pipeline) Render(fps int, onFinish func(*Output), onProgress func(float64)) (*Job, error) {
	if p.active != nil {
		return nil, ErrRenderInProgress
	}
	if fps <= 0 || fps > capture.MaxFPS {
		return nil, errors.Wrapf(ErrInvalidFPS, "fps %d, want 1 to %d", fps, capture.MaxFPS)
	}
	if onFinish == nil {
		return nil, errors.New("render needs an onFinish callback")
	}

	videoStream := capture.NewStream(capture.CaptureSurface(p.surface, fps, p.sched))
	audioStream := p.source.CaptureStream()
	combined := capture.NewStream(append(videoStream.VideoTracks(), audioStream.AudioTracks()...)...)

	rec, err := p.newRecorder(combined, p.profile)
	if err != nil {
		combined.Stop()
		return nil, errors.Wrap(err, "failed to create recorder")
	}

	sess := &session{
		rec:     rec,
		id:      uuid.NewString(),
		sampler: logging.NewProgressSampler(10),
	}
	sess.job = newJob(sess.id)
	logger := p.logger.With(slog.String("render_id", sess.id))

	rec.OnData(func(c capture.Chunk) {
		if sess.finished {
			return
		}
		sess.chunks = append(sess.chunks, c.Data)
		sess.size += len(c.Data)
		p.metrics.ChunkFlushed(len(c.Data))

		sess.progress = math.Max(sess.progress, p.progress())
		sess.job.setProgress(sess.progress)
		if sess.sampler.ShouldLog(sess.progress) {
			logger.Info("render progress",
				slog.Float64("percent", math.Round(sess.progress*1000)/10),
				slog.String("encoded", humanize.Bytes(uint64(sess.size))),
			)
		}
		if onProgress != nil {
			onProgress(sess.progress)
		}
	})

	rec.OnStop(func() {
		if sess.finished {
			return
		}
		sess.finished = true
		p.source.SetGain(1)
		if p.active == sess {
			p.active = nil
		}

		out := &Output{MimeType: rec.MimeType(), Data: bytes.Join(sess.chunks, nil)}
		recErr := rec.Err()
		p.metrics.RenderFinished(recErr != nil)
		if recErr != nil {
			logger.Error("encoder failed, delivering partial output", slog.String("error", recErr.Error()))
		}
		logger.Info("render finished",
			slog.Int("chunks", len(sess.chunks)),
			slog.String("size", humanize.Bytes(uint64(out.Size()))),
		)

		onFinish(out)
		sess.job.finish(out, recErr)
	})

	p.playback.Reset()
	p.source.SetGain(p.mutedGain)

	if err := rec.Start(p.timeslice); err != nil {
		sess.finished = true
		p.source.SetGain(1)
		combined.Stop()
		return nil, errors.Wrap(err, "failed to start recorder")
	}
	p.active = sess
	p.metrics.RenderStarted()
	p.playback.OnEnded(rec.Stop)

	if err := p.playback.Play(); err != nil {
		// Abandon the session; the recorder drains without delivering.
		sess.finished = true
		p.active = nil
		p.source.SetGain(1)
		rec.Stop()
		return nil, err
	}

	logger.Info("render started",
		slog.Int("fps", fps),
		slog.String("profile", p.profile.GetName()),
		slog.Duration("duration", p.source.Duration()),
	)
	return sess.job, nil
}

// progress is the source position as a fraction of its duration, 0 when
// the duration is unknown.
func (p *Pipeline) progress() float64 {
	d := p.source.Duration()
	if d <= 0 {
		return 0
	}
	v := float64(p.source.Position()) / float64(d)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
