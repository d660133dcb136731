// Package clipconverter composites one source video through an ordered
// stack of scaled, filtered layers onto a portrait canvas and records the
// result, with the source's audio, as a WebM clip.
//
// A Converter owns an event loop. Every method hops onto that loop and
// returns once the work is done, so methods are safe to call from any
// goroutine except from inside onFinish and onProgress callbacks, which
// already run on the loop.
package clipconverter

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/compositor"
	"github.com/ZacxDev/clipnship/internal/config"
	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/ffmpeg"
	"github.com/ZacxDev/clipnship/internal/filter"
	"github.com/ZacxDev/clipnship/internal/geometry"
	"github.com/ZacxDev/clipnship/internal/layer"
	"github.com/ZacxDev/clipnship/internal/media"
	"github.com/ZacxDev/clipnship/internal/metrics"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/internal/playback"
	"github.com/ZacxDev/clipnship/internal/render"
	"github.com/ZacxDev/clipnship/internal/surface"
	"github.com/ZacxDev/clipnship/pkg/types"
)

type (
	Layer               = layer.Layer
	DuplicateLayerError = layer.DuplicateLayerError
	LayerNotFoundError  = layer.NotFoundError
	InvalidScaleError   = layer.InvalidScaleError
	FilterSyntaxError   = filter.SyntaxError
	Output              = render.Output
	Job                 = render.Job
	Preview             = surface.Preview
)

var (
	// ErrRenderInProgress is returned by Render while a render is running.
	ErrRenderInProgress = render.ErrRenderInProgress
	// ErrInvalidFPS is returned by Render for a rate above capture.MaxFPS.
	ErrInvalidFPS = render.ErrInvalidFPS
	// ErrClosed is returned by every method after Close.
	ErrClosed = eventloop.ErrClosed
)

// ConstructionError reports a converter that could not be built.
type ConstructionError struct {
	Source string
	Err    error
}

func (e *ConstructionError) Error() string {
	if e.Err == nil {
		return "clipconverter: a source video is required"
	}
	return "clipconverter: cannot open " + e.Source + ": " + e.Err.Error()
}

func (e *ConstructionError) Unwrap() error { return e.Err }

type settings struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures New.
type Option func(*settings)

// WithConfig replaces the defaults wholesale.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) {
		if cfg != nil {
			s.cfg = *cfg
		}
	}
}

// WithCanvasSize overrides the output canvas, 1080x1920 by default.
func WithCanvasSize(width, height int) Option {
	return func(s *settings) {
		s.cfg.Canvas = config.Canvas{Width: width, Height: height}
	}
}

// WithLogger replaces slog.Default. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records frames, layers and renders into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{cfg: config.Default(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid converter config")
	}
	return s, nil
}

// deps are the collaborators a Converter drives. New builds real ones;
// tests substitute fakes.
type deps struct {
	sched       eventloop.Scheduler
	run         func(func()) error
	source      media.Source
	newRecorder capture.RecorderFactory
	close       func()
}

// Converter is the public face of one compositing session.
type Converter struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	run       func(func()) error
	close     func()
	closeOnce sync.Once
	closed    bool
	source    media.Source
	surface   *surface.Surface
	store     *layer.Store
	comp      *compositor.Compositor
	player    *playback.Controller
	render    *render.Pipeline

	// seekWaiters are released on the next Seeked, after it is drawn.
	seekWaiters []chan struct{}
}

// New opens source and prepares an empty layer stack over it.
func New(source string, opts ...Option) (*Converter, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &ConstructionError{}
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, &ConstructionError{Source: source, Err: err}
	}

	loop := eventloop.New(eventloop.WithLogger(s.logger))
	proc := ffmpeg.NewProcessor(s.logger)

	// Build on the loop so every subscription exists before the source's
	// first event is delivered.
	var conv *Converter
	var buildErr error
	if err := loop.Do(func() {
		src, err := media.Open(source, loop, media.FromProcessor(proc), media.WithFileLogger(s.logger))
		if err != nil {
			buildErr = err
			return
		}
		conv, buildErr = newWithDeps(s, deps{
			sched:  loop,
			run:    loop.Do,
			source: src,
			newRecorder: func(stream *capture.Stream, profile platform.Profile) (capture.Recorder, error) {
				return proc.NewRecorder(stream, profile, loop, ffmpeg.WithPreset(s.cfg.Render.Preset))
			},
			close: func() {
				_ = loop.Do(src.Close)
				loop.Close()
			},
		})
		if buildErr != nil {
			src.Close()
		}
	}); err != nil {
		buildErr = err
	}
	if buildErr != nil {
		loop.Close()
		var ce *ConstructionError
		if errors.As(buildErr, &ce) {
			ce.Source = source
			return nil, ce
		}
		return nil, &ConstructionError{Source: source, Err: buildErr}
	}
	return conv, nil
}

func newWithDeps(s *settings, d deps) (*Converter, error) {
	size := geometry.Size{Width: s.cfg.Canvas.Width, Height: s.cfg.Canvas.Height}
	surf, err := surface.New(size, surface.WithGuard(d.run))
	if err != nil {
		return nil, &ConstructionError{Err: err}
	}
	profile, err := platform.Get(s.cfg.Render.Profile)
	if err != nil {
		return nil, &ConstructionError{Err: err}
	}

	c := &Converter{
		cfg:     s.cfg,
		logger:  s.logger,
		metrics: s.metrics,
		run:     d.run,
		close:   d.close,
		source:  d.source,
		surface: surf,
	}
	d.source.Subscribe(c.handleSource)
	c.store = layer.NewStore(d.source, d.sched)
	c.comp = compositor.New(c.store, surf, compositor.WithObserver(s.metrics))
	c.store.OnRedraw(c.comp.DrawFrame)
	c.store.OnChange(s.metrics.SetLayers)

	c.player = playback.New(d.source, d.sched, c.comp.DrawFrame,
		playback.WithTickRate(s.cfg.Playback.TickRate),
		playback.WithLogger(s.logger),
	)
	c.render, err = render.New(surf, d.source, c.player, d.sched, d.newRecorder,
		render.WithProfile(profile),
		render.WithTimeslice(s.cfg.Render.FlushInterval()),
		render.WithMutedGain(s.cfg.Render.MutedGain),
		render.WithMetrics(s.metrics),
		render.WithLogger(s.logger),
	)
	if err != nil {
		return nil, &ConstructionError{Err: err}
	}
	return c, nil
}

func (c *Converter) do(fn func()) error {
	closed := false
	if err := c.run(func() {
		if c.closed {
			closed = true
			return
		}
		fn()
	}); err != nil {
		return err
	}
	if closed {
		return ErrClosed
	}
	return nil
}

func (c *Converter) handleSource(ev media.Event) {
	if ev.Type != media.Seeked || len(c.seekWaiters) == 0 {
		return
	}
	c.comp.DrawFrame()
	for _, ch := range c.seekWaiters {
		close(ch)
	}
	c.seekWaiters = nil
}

// Config is the configuration the converter was built with.
func (c *Converter) Config() config.Config { return c.cfg }

// Metrics may be nil.
func (c *Converter) Metrics() *metrics.Metrics { return c.metrics }

// CanvasSize is the output size in pixels.
func (c *Converter) CanvasSize() geometry.Size { return c.surface.Size() }

// AddLayer appends a layer drawing the source at scale through filters and
// returns the updated stack.
func (c *Converter) AddLayer(name string, scale float64, filters ...string) ([]Layer, error) {
	var out []Layer
	var err error
	if runErr := c.do(func() {
		if err = c.store.Add(name, scale, filters...); err == nil {
			out = c.store.List()
		}
	}); runErr != nil {
		return nil, runErr
	}
	return out, err
}

// RemoveLayer drops name if present. Removing a missing layer is not an
// error.
func (c *Converter) RemoveLayer(name string) ([]Layer, error) {
	var out []Layer
	err := c.do(func() {
		c.store.Remove(name)
		out = c.store.List()
	})
	return out, err
}

// GetLayer returns a copy of the named layer.
func (c *Converter) GetLayer(name string) (Layer, bool) {
	var l Layer
	var ok bool
	_ = c.do(func() { l, ok = c.store.Get(name) })
	return l, ok
}

// GetLayers returns copies of every layer, bottom first.
func (c *Converter) GetLayers() []Layer {
	var out []Layer
	_ = c.do(func() { out = c.store.List() })
	return out
}

// UpdateLayerScale sets one layer's scale and returns the stack. Other layers
// are untouched.
func (c *Converter) UpdateLayerScale(name string, scale float64) ([]Layer, error) {
	var out []Layer
	var err error
	if runErr := c.do(func() {
		if err = c.store.UpdateScale(name, scale); err == nil {
			out = c.store.List()
		}
	}); runErr != nil {
		return nil, runErr
	}
	return out, err
}

// UpdateLayerFilter replaces one layer's filter. An invalid filter leaves the
// layer as it was.
func (c *Converter) UpdateLayerFilter(name string, filters ...string) ([]Layer, error) {
	var out []Layer
	var err error
	if runErr := c.do(func() {
		if err = c.store.UpdateFilter(name, filters...); err == nil {
			out = c.store.List()
		}
	}); runErr != nil {
		return nil, runErr
	}
	return out, err
}

// PreviewPlay starts playback and the preview draw tick.
func (c *Converter) PreviewPlay() error {
	var err error
	if runErr := c.do(func() { err = c.player.Play() }); runErr != nil {
		return runErr
	}
	return err
}

// PreviewPause stops playback and the draw tick.
func (c *Converter) PreviewPause() error {
	return c.do(c.player.Pause)
}

// PreviewReset pauses and rewinds to the first frame.
func (c *Converter) PreviewReset() error {
	return c.do(c.player.Reset)
}

// PreviewSeek moves playback to pos, clamped to the source.
func (c *Converter) PreviewSeek(pos time.Duration) error {
	return c.do(func() { c.player.Seek(pos) })
}

// State is the playback controller state.
func (c *Converter) State() types.PlaybackState {
	state := types.PlaybackStateStopped
	_ = c.do(func() { state = c.player.State() })
	return state
}

// Position is the source clock.
func (c *Converter) Position() time.Duration {
	var pos time.Duration
	_ = c.do(func() { pos = c.source.Position() })
	return pos
}

// Duration is the source length.
func (c *Converter) Duration() time.Duration {
	var d time.Duration
	_ = c.do(func() { d = c.source.Duration() })
	return d
}

// SeekFrame moves playback to pos and blocks until the frame there has been
// composited onto the canvas.
func (c *Converter) SeekFrame(ctx context.Context, pos time.Duration) error {
	done := make(chan struct{})
	if err := c.do(func() {
		c.seekWaiters = append(c.seekWaiters, done)
		c.player.Seek(pos)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SourceSize is the intrinsic size of the source video.
func (c *Converter) SourceSize() geometry.Size {
	var size geometry.Size
	_ = c.do(func() { size = geometry.Size{Width: c.source.Width(), Height: c.source.Height()} })
	return size
}

// Redraw composites the current frame immediately.
func (c *Converter) Redraw() error {
	return c.do(c.comp.DrawFrame)
}

// Preview returns a view of the canvas scaled to widthSpec: an absolute CSS
// length, a percentage of the canvas width, or "" for the configured default.
func (c *Converter) Preview(widthSpec string) (*Preview, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(widthSpec) == "" {
		widthSpec = c.cfg.Preview.Width
	}
	return c.surface.Preview(widthSpec)
}

func (c *Converter) isClosed() bool {
	closed := true
	_ = c.run(func() { closed = c.closed })
	return closed
}

// Render records the composite from the first frame to the end of the source
// and calls onFinish with the encoded clip. fps <= 0 uses the configured
// rate. It returns as soon as recording has started.
func (c *Converter) Render(fps int, onFinish func(*Output), onProgress func(float64)) (*Job, error) {
	if fps <= 0 {
		fps = c.cfg.Render.FPS
	}
	var job *Job
	var err error
	if runErr := c.do(func() { job, err = c.render.Render(fps, onFinish, onProgress) }); runErr != nil {
		return nil, runErr
	}
	return job, err
}

// Close stops playback and releases the source. A render in flight is
// abandoned without calling its onFinish.
func (c *Converter) Close() error {
	c.closeOnce.Do(func() {
		_ = c.run(func() {
			c.render.Abort()
			c.player.Pause()
			c.closed = true
		})
		if c.close != nil {
			c.close()
		}
	})
	return nil
}
