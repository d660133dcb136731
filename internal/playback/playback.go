// Package playback drives the draw tick from the source's play, pause, seek
// and end events.
package playback

import (
	"log/slog"
	"time"

	"github.com/ZacxDev/clipnship/internal/eventloop"
	"github.com/ZacxDev/clipnship/internal/media"
	"github.com/ZacxDev/clipnship/pkg/types"
	"github.com/pkg/errors"
)

// DefaultTickRate is the draw rate while playing, in Hz.
const DefaultTickRate = 60

// Controller owns the periodic draw tick. At most one tick is active at a
// time; arming a tick always cancels the previous one.
type Controller struct {
	source   media.Source
	sched    eventloop.Scheduler
	draw     func()
	interval time.Duration
	logger   *slog.Logger

	state        types.PlaybackState
	resume       types.PlaybackState
	tick         eventloop.Timer
	metadataSeen bool
	onEnded      []func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickRate sets the draw rate in Hz.
func WithTickRate(hz int) Option {
	return func(c *Controller) {
		if hz > 0 {
			c.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithLogger sets the logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New subscribes a controller to source. draw is called on every tick and
// after every completed seek.
func New(source media.Source, sched eventloop.Scheduler, draw func(), opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		sched:    sched,
		draw:     draw,
		interval: time.Second / DefaultTickRate,
		logger:   slog.Default(),
		state:    types.PlaybackStateStopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	source.Subscribe(c.handle)
	return c
}

// State is the current playback state.
func (c *Controller) State() types.PlaybackState {
	return c.state
}

// Ticking reports whether a draw tick is armed.
func (c *Controller) Ticking() bool {
	return c.tick != nil
}

// OnEnded registers fn to run once, the next time the source ends.
func (c *Controller) OnEnded(fn func()) {
	c.onEnded = append(c.onEnded, fn)
}

// Play starts the source and arms the draw tick.
func (c *Controller) Play() error {
	if err := c.source.Play(); err != nil {
		return errors.Wrap(err, "failed to start playback")
	}
	c.playing()
	return nil
}

// Pause stops the source and the draw tick.
func (c *Controller) Pause() {
	c.source.Pause()
	c.paused()
}

// Reset pauses and rewinds to the start.
func (c *Controller) Reset() {
	c.Pause()
	c.setState(types.PlaybackStatePaused)
	c.source.Seek(0)
}

// Seek moves the source to pos without changing play state.
func (c *Controller) Seek(pos time.Duration) {
	c.source.Seek(pos)
}

func (c *Controller) playing() {
	c.arm()
	if c.state == types.PlaybackStateSeeking {
		c.resume = types.PlaybackStatePlaying
		return
	}
	c.setState(types.PlaybackStatePlaying)
}

func (c *Controller) paused() {
	c.cancel()
	switch c.state {
	case types.PlaybackStatePlaying:
		c.setState(types.PlaybackStatePaused)
	case types.PlaybackStateSeeking:
		if c.resume == types.PlaybackStatePlaying {
			c.resume = types.PlaybackStatePaused
		}
	}
}

func (c *Controller) arm() {
	c.cancel()
	c.tick = c.sched.Every(c.interval, c.draw)
}

func (c *Controller) cancel() {
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
}

func (c *Controller) setState(s types.PlaybackState) {
	if c.state == s {
		return
	}
	c.logger.Debug("playback state", slog.String("from", string(c.state)), slog.String("to", string(s)))
	c.state = s
}

func (c *Controller) handle(ev media.Event) {
	switch ev.Type {
	case media.MetadataLoaded:
		if !c.metadataSeen {
			c.metadataSeen = true
			c.source.Seek(0)
		}

	case media.Play:
		c.playing()

	case media.Pause:
		c.paused()

	case media.Seeking:
		if c.state != types.PlaybackStateSeeking {
			c.resume = c.state
		}
		c.setState(types.PlaybackStateSeeking)

	case media.Seeked:
		if c.state == types.PlaybackStateSeeking {
			c.setState(c.resume)
		}
		c.sched.NextFrame(c.draw)

	case media.Ended:
		c.cancel()
		c.setState(types.PlaybackStateStopped)
		hooks := c.onEnded
		c.onEnded = nil
		for _, fn := range hooks {
			fn()
		}
	}
}
