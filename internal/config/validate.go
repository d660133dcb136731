package config

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/ZacxDev/clipnship/internal/capture"
	"github.com/ZacxDev/clipnship/internal/ffmpeg"
	"github.com/ZacxDev/clipnship/internal/platform"
	"github.com/ZacxDev/clipnship/internal/surface"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return errors.Errorf("canvas size must be positive, got %dx%d", c.Canvas.Width, c.Canvas.Height)
	}
	if c.Playback.TickRate <= 0 {
		return errors.Errorf("playback.tick_rate must be positive, got %d", c.Playback.TickRate)
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if _, err := surface.PreviewWidth(c.Preview.Width, c.Canvas.Width); err != nil {
		return errors.Wrap(err, "preview.width")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errors.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server.bind must be set")
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.FPS <= 0 || r.FPS > capture.MaxFPS {
		return errors.Errorf("render.fps must be between 1 and %d, got %d", capture.MaxFPS, r.FPS)
	}
	if r.FlushIntervalMS <= 0 {
		return errors.Errorf("render.flush_interval_ms must be positive, got %d", r.FlushIntervalMS)
	}
	if r.MutedGain < 0 || r.MutedGain > 1 {
		return errors.Errorf("render.muted_gain must be between 0 and 1, got %v", r.MutedGain)
	}
	profile, err := platform.Get(r.Profile)
	if err != nil {
		return errors.Wrap(err, "render.profile")
	}
	if !ffmpeg.HasPreset(profile.GetOutputFormat(), r.Preset) {
		return errors.Errorf("render.preset %q is not known for %s", r.Preset, profile.GetOutputFormat())
	}
	maxW, maxH := profile.GetMaxDimensions()
	if (maxW > 0 && c.Canvas.Width > maxW) || (maxH > 0 && c.Canvas.Height > maxH) {
		return errors.Errorf("canvas %dx%d exceeds %s limit %dx%d", c.Canvas.Width, c.Canvas.Height, r.Profile, maxW, maxH)
	}
	return nil
}
